package ent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	filesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ent_files_analyzed",
		Help: "The total number of files analyzed",
	})

	bytesAnalyzed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ent_bytes_analyzed",
		Help: "The total number of bytes analyzed",
	})

	analysisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ent_analysis_errors",
		Help: "The number of files that could not be analyzed, by kind",
	}, []string{"kind"})

	classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ent_classifications",
		Help: "The number of analyzed files per entropy class",
	}, []string{"class"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ent_cache_hits",
		Help: "Number of times a prior result was reused for identical content",
	})

	entropyBits = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ent_entropy_bits",
		Help:    "Distribution of entropy values in bits per byte",
		Buckets: prometheus.LinearBuckets(0, 1, 9),
	})
)

func counterValue(c prometheus.Counter) int64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}

	return int64(m.GetCounter().GetValue())
}
