package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/jessevdk/go-flags"
	"github.com/lab47/ent"
	"github.com/lab47/ent/pkg/entropy"
	"github.com/mitchellh/cli"
)

type analyzeOpts struct {
	Global
	Expand  bool   `long:"expand" description:"analyze the contents of lz4 frames and qcow2 images"`
	History string `long:"history" description:"record the result in this history database"`

	Args struct {
		Path string `positional-arg-name:"path" description:"file to analyze"`
	} `positional-args:"yes" required:"yes"`
}

// analyzeCommand takes a positional path, which cleo's inferred commands
// do not, so it implements cli.Command directly.
type analyzeCommand struct {
	log hclog.Logger
	ui  cli.Ui
}

var _ cli.Command = (*analyzeCommand)(nil)

func (a *analyzeCommand) Synopsis() string {
	return "calculate the entropy of a file"
}

func (a *analyzeCommand) parser(opts *analyzeOpts) *flags.Parser {
	p := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	p.Name = "ent analyze"
	return p
}

func (a *analyzeCommand) Help() string {
	var (
		opts analyzeOpts
		sb   strings.Builder
	)

	a.parser(&opts).WriteHelp(&sb)
	return sb.String()
}

func (a *analyzeCommand) Run(args []string) int {
	var opts analyzeOpts

	rest, err := a.parser(&opts).ParseArgs(args)
	if err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			a.ui.Output(fe.Message)
			return 0
		}

		a.ui.Error(err.Error())
		return 1
	}

	if len(rest) > 0 {
		a.ui.Error("only one file may be analyzed at a time, extra arguments: " + strings.Join(rest, " "))
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	return a.analyze(ctx, &opts)
}

var classColors = map[entropy.Class]*color.Color{
	entropy.High:   color.New(color.FgHiRed),
	entropy.Medium: color.New(color.FgHiYellow),
	entropy.Low:    color.New(color.FgHiGreen),
}

func (a *analyzeCommand) analyze(ctx context.Context, opts *analyzeOpts) int {
	log := a.log

	if opts.Debug {
		log.SetLevel(hclog.Trace)
	}

	cfg := &ent.Config{}

	if opts.Config != "" {
		var err error

		cfg, err = ent.LoadConfig(opts.Config)
		if err != nil {
			log.Error("error loading configuration", "error", err)
			return 1
		}
	}

	if opts.History != "" {
		cfg.HistoryPath = opts.History
	}

	an, h, err := buildAnalyzer(ctx, log, cfg, opts.Expand)
	if err != nil {
		return 1
	}

	if h != nil {
		defer h.Close()
	}

	rep, err := an.Analyze(ctx, opts.Args.Path)
	if err != nil {
		// already logged by the analyzer
		return 1
	}

	a.ui.Output(rep.Headline())

	desc := rep.Class.Description()
	if col, ok := classColors[rep.Class]; ok {
		desc = col.Sprint(desc)
	}

	a.ui.Output(desc)

	return 0
}
