package ent

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lab47/ent/pkg/entropy"
	"github.com/lab47/mode"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

type Analyzer struct {
	log hclog.Logger
	src Source

	expand    bool
	maxExpand int64
	history   *History
	pub       Publisher
	seqGen    func() ulid.ULID

	cache *lru.Cache[string, float64]
}

func NewAnalyzer(log hclog.Logger, options ...Option) (*Analyzer, error) {
	var o opts
	for _, opt := range options {
		opt(&o)
	}

	if o.src == nil {
		o.src = &LocalFileAccess{}
	}

	if o.seqGen == nil {
		o.seqGen = newReportID
	}

	if o.maxExpand <= 0 {
		o.maxExpand = DefaultMaxExpandedSize
	}

	a := &Analyzer{
		log:     log,
		src:     o.src,
		expand:    o.expand,
		maxExpand: o.maxExpand,
		history:   o.history,
		pub:       o.pub,
		seqGen:    o.seqGen,
	}

	if o.cacheSize > 0 {
		c, err := lru.New[string, float64](o.cacheSize)
		if err != nil {
			return nil, err
		}

		a.cache = c
	}

	return a, nil
}

// SetPublisher attaches p after construction, for publishers that need the
// Analyzer themselves.
func (a *Analyzer) SetPublisher(p Publisher) {
	a.pub = p
}

// PurgeCache drops all remembered results.
func (a *Analyzer) PurgeCache() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

func (a *Analyzer) Analyze(ctx context.Context, name string) (*Report, error) {
	data, err := a.src.ReadAll(ctx, name)
	if err != nil {
		a.log.Error("unable to read input", "path", name, "error", err)
		a.countError(err)
		return nil, err
	}

	rep := &Report{
		Path:   name,
		Source: a.src.Kind(),
	}

	if a.expand {
		out, format, err := ExpandLimit(data, a.maxExpand)
		if err != nil {
			err = &SourceError{Kind: ReadFailure, Path: name, Err: err}
			a.log.Error("unable to expand input", "path", name, "format", format, "error", err)
			a.countError(err)
			return nil, err
		}

		if format != "" {
			a.log.Debug("expanded input", "path", name, "format", format,
				"size", len(data), "expanded-size", len(out))
			rep.Expanded = format
		}

		data = out
	}

	rep.Size = int64(len(data))
	rep.Sum = contentSum(data)

	if len(data) == 0 {
		a.log.Warn("file is empty, entropy is 0", "path", name)
		rep.Empty = true
	}

	rep.Entropy = a.compute(rep.Sum, data)
	rep.Class = entropy.Classify(rep.Entropy)
	rep.ID = a.seqGen()
	rep.AnalyzedAt = time.Now()

	filesAnalyzed.Inc()
	bytesAnalyzed.Add(float64(len(data)))
	entropyBits.Observe(rep.Entropy)
	classifications.WithLabelValues(rep.Class.String()).Inc()

	a.log.Debug("analyzed input", "path", name, "size", rep.Size, "entropy", rep.Entropy, "class", rep.Class)

	if a.history != nil {
		if err := a.history.Add(rep); err != nil {
			a.log.Error("error recording report in history", "error", err, "id", rep.ID)
		}
	}

	if a.pub != nil {
		if err := a.pub.PublishReport(rep); err != nil {
			a.log.Error("error publishing report", "error", err, "id", rep.ID)
		}
	}

	return rep, nil
}

// compute keys the cache on the content sum, which every report carries
// anyway. A hit saves only the byte count; it mainly feeds ent_cache_hits.
func (a *Analyzer) compute(sum string, data []byte) float64 {
	if a.cache != nil {
		if e, ok := a.cache.Get(sum); ok {
			cacheHits.Inc()
			a.log.Trace("reusing cached entropy", "sum", sum)
			return e
		}
	}

	var e float64

	if mode.Debug() {
		ft := entropy.Count(data)
		if ft.Total() != len(data) {
			panic(errors.Errorf("frequency table total mismatch (%d != %d)", ft.Total(), len(data)))
		}

		e = ft.Entropy()
		if e < 0 || e > entropy.MaxEntropy {
			panic(errors.Errorf("entropy out of range: %f", e))
		}
	} else {
		e = entropy.Shannon(data)
	}

	if a.cache != nil {
		a.cache.Add(sum, e)
	}

	return e
}

func (a *Analyzer) countError(err error) {
	kind := KindOf(err)
	if kind == 0 {
		analysisErrors.WithLabelValues("other").Inc()
		return
	}

	analysisErrors.WithLabelValues(kind.String()).Inc()
}
