package cli

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/cleo"
	"github.com/lab47/ent"
	"github.com/mitchellh/cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sys/unix"
)

type CLI struct {
	log hclog.Logger
	ui  cli.Ui

	lc *cli.CLI
}

type Global struct {
	Config string `short:"c" long:"config" description:"configuration file"`
	Debug  bool   `short:"D" long:"debug" description:"enable debug mode"`
}

func NewCLI(log hclog.Logger, args []string) (*CLI, error) {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	return newCLI(log, ui, args)
}

func newCLI(log hclog.Logger, ui cli.Ui, args []string) (*CLI, error) {
	c := &CLI{
		log: log,
		ui:  ui,
		lc:  cli.NewCLI("ent", "0.1.0"),
	}

	err := c.setupCommands()
	if err != nil {
		return nil, err
	}

	c.lc.Args = c.defaultArgs(args)
	c.lc.HelpWriter = os.Stderr

	return c, nil
}

func (c *CLI) Run() (int, error) {
	return c.lc.Run()
}

// defaultArgs lets `ent <path>` stand in for `ent analyze <path>`. A path
// that is also a command name runs the command, so such files need the
// explicit `ent analyze <path>` form.
func (c *CLI) defaultArgs(args []string) []string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return args
	}

	if _, ok := c.lc.Commands[args[0]]; ok {
		return args
	}

	for name := range c.lc.Commands {
		if strings.HasPrefix(name, args[0]+" ") {
			return args
		}
	}

	return append([]string{"analyze"}, args...)
}

func (c *CLI) setupCommands() error {
	c.lc.Commands = map[string]cli.CommandFactory{
		"analyze": func() (cli.Command, error) {
			return &analyzeCommand{log: c.log, ui: c.ui}, nil
		},
		"history": func() (cli.Command, error) {
			return cleo.Infer("history", "list previously analyzed files", c.history), nil
		},
		"serve": func() (cli.Command, error) {
			return cleo.Infer("serve", "answer analyze requests over NATS", c.serve), nil
		},
	}

	return nil
}

func (c *CLI) history(ctx context.Context, opts struct {
	Path  string `short:"H" long:"history" description:"path to the history database" required:"true"`
	Limit int    `short:"n" long:"limit" description:"show at most this many reports"`
}) error {
	h, err := ent.OpenHistory(opts.Path)
	if err != nil {
		return err
	}

	defer h.Close()

	reports, err := h.List(opts.Limit)
	if err != nil {
		return err
	}

	var sb strings.Builder

	tr := tabwriter.NewWriter(&sb, 2, 2, 1, ' ', 0)

	fmt.Fprintf(tr, "ID\tANALYZED\tENTROPY\tCLASS\tSIZE\tPATH\n")

	for _, rep := range reports {
		fmt.Fprintf(tr, "%s\t%s\t%.4f\t%s\t%s\t%s\n",
			rep.ID, rep.AnalyzedAt.Format(time.RFC3339), rep.Entropy, rep.Class,
			niceSize(rep.Size), rep.Path)
	}

	if err := tr.Flush(); err != nil {
		return err
	}

	c.ui.Output(strings.TrimSuffix(sb.String(), "\n"))

	return nil
}

func (c *CLI) serve(ctx context.Context, opts struct {
	Global
	ID          string `long:"id" description:"name to use in NATS subjects"`
	MetricsAddr string `long:"metrics" description:"address to expose metrics on"`
}) error {
	log := c.log

	if opts.Debug {
		log.SetLevel(hclog.Trace)
	}

	if opts.Config == "" {
		return fmt.Errorf("serve requires a configuration file (-c)")
	}

	cfg, err := ent.LoadConfig(opts.Config)
	if err != nil {
		log.Error("error loading configuration", "error", err)
		return err
	}

	if cfg.NATS == nil || cfg.NATS.URL == "" {
		return fmt.Errorf("configuration has no nats block")
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer cancel()

	a, h, err := buildAnalyzer(ctx, log, cfg, false)
	if err != nil {
		return err
	}

	if h != nil {
		defer h.Close()
	}

	id := opts.ID
	if id == "" {
		id = cfg.NATS.ID
	}
	if id == "" {
		id = "default"
	}

	nc, err := ent.NewNATSConnector(log, a, cfg.NATS.URL, id)
	if err != nil {
		log.Error("error connecting to NATS", "error", err, "url", cfg.NATS.URL)
		return err
	}

	defer nc.Close()

	a.SetPublisher(nc)

	err = nc.Start(ctx)
	if err != nil {
		return err
	}

	ch := make(chan os.Signal, 1)

	go func() {
		for range ch {
			log.Info("purging result cache by signal request")
			a.PurgeCache()
		}
	}()

	signal.Notify(ch, unix.SIGHUP)
	defer signal.Stop(ch)

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	if metricsAddr != "" {
		http.Handle("/metrics", promhttp.Handler())
		// Will also include pprof via the init() in net/http/pprof
		go http.ListenAndServe(metricsAddr, nil)
	}

	log.Info("waiting for analyze requests", "id", id, "metrics", metricsAddr)

	<-ctx.Done()

	log.Info("shutting down")

	return nil
}

// buildAnalyzer wires the analyzer described by cfg. The returned History,
// if any, must be closed by the caller.
func buildAnalyzer(ctx context.Context, log hclog.Logger, cfg *ent.Config, expand bool) (*ent.Analyzer, *ent.History, error) {
	src, err := cfg.Source(ctx, log)
	if err != nil {
		log.Error("error configuring storage", "error", err)
		return nil, nil, err
	}

	options := []ent.Option{
		ent.WithSource(src),
		ent.WithExpand(expand || cfg.Expand),
		ent.WithMaxExpandedSize(cfg.MaxExpanded),
		ent.WithCacheSize(cfg.CacheSize),
	}

	var h *ent.History

	if cfg.HistoryPath != "" {
		h, err = ent.OpenHistory(cfg.HistoryPath)
		if err != nil {
			log.Error("error opening history", "error", err)
			return nil, nil, err
		}

		options = append(options, ent.WithHistory(h))
	}

	a, err := ent.NewAnalyzer(log, options...)
	if err != nil {
		if h != nil {
			h.Close()
		}
		return nil, nil, err
	}

	return a, h, nil
}

const (
	kilo = 1000
	mega = kilo * 1000
	giga = mega * 1000
	tera = giga * 1000
	peta = tera * 1000
)

func niceSize(sz int64) string {
	cases := []struct {
		f float64
		s string
	}{
		{peta, "PB"},
		{tera, "TB"},
		{giga, "GB"},
		{mega, "MB"},
		{kilo, "KB"},
	}

	x := float64(sz)

	for _, c := range cases {
		sub := x / c.f
		if sub >= 1.0 {
			return fmt.Sprintf("%.3f%s", sub, c.s)
		}
	}

	return fmt.Sprintf("%db", sz)
}
