package ent

import "github.com/oklog/ulid/v2"

// Publisher receives every report the Analyzer produces.
type Publisher interface {
	PublishReport(rep *Report) error
}

type opts struct {
	src       Source
	expand    bool
	maxExpand int64
	history   *History
	cacheSize int
	seqGen    func() ulid.ULID
	pub       Publisher
}

type Option func(o *opts)

func WithSource(src Source) Option {
	return func(o *opts) {
		o.src = src
	}
}

// WithExpand decodes lz4 and qcow2 input before analysis.
func WithExpand(ok bool) Option {
	return func(o *opts) {
		o.expand = ok
	}
}

// WithMaxExpandedSize caps the size of expanded input. Larger containers
// fail as read failures.
func WithMaxExpandedSize(n int64) Option {
	return func(o *opts) {
		o.maxExpand = n
	}
}

func WithHistory(h *History) Option {
	return func(o *opts) {
		o.history = h
	}
}

// WithCacheSize sets how many results are remembered by content sum. Zero
// disables the cache.
func WithCacheSize(n int) Option {
	return func(o *opts) {
		o.cacheSize = n
	}
}

func WithSeqGen(f func() ulid.ULID) Option {
	return func(o *opts) {
		o.seqGen = f
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *opts) {
		o.pub = p
	}
}
