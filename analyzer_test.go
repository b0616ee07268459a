package ent

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/lab47/ent/pkg/entropy"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	reports []*Report
}

func (c *capturePublisher) PublishReport(rep *Report) error {
	c.reports = append(c.reports, rep)
	return nil
}

func testLogger(buf *bytes.Buffer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "analyzer",
		Level:  hclog.Trace,
		Output: buf,
	})
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestAnalyzer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	t.Run("analyzes files", func(t *testing.T) {
		cases := []struct {
			name    string
			data    []byte
			entropy float64
			class   entropy.Class
		}{
			{"zeros", []byte{0, 0, 0, 0}, 0, entropy.Low},
			{"four", []byte{0, 1, 2, 3}, 2, entropy.Low},
			{"all", all, 8, entropy.High},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				r := require.New(t)

				var buf bytes.Buffer

				a, err := NewAnalyzer(testLogger(&buf))
				r.NoError(err)

				path := writeFile(t, dir, c.name, c.data)

				rep, err := a.Analyze(ctx, path)
				r.NoError(err)

				r.InDelta(c.entropy, rep.Entropy, 1e-9)
				r.Equal(c.class, rep.Class)
				r.Equal(int64(len(c.data)), rep.Size)
				r.Equal(path, rep.Path)
				r.Equal("file", rep.Source)
				r.False(rep.Empty)
				r.NotEqual("0", rep.Sum)
				r.False(rep.AnalyzedAt.IsZero())

				r.NotContains(buf.String(), "file is empty")
			})
		}
	})

	t.Run("empty files warn and report zero", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		a, err := NewAnalyzer(testLogger(&buf))
		r.NoError(err)

		path := writeFile(t, dir, "empty", nil)

		rep, err := a.Analyze(ctx, path)
		r.NoError(err)

		r.Equal(0.0, rep.Entropy)
		r.Equal(entropy.Low, rep.Class)
		r.True(rep.Empty)
		r.Equal("0", rep.Sum)

		r.Contains(buf.String(), "[WARN]")
		r.Contains(buf.String(), "file is empty, entropy is 0")

		r.Equal("Entropy of "+path+": 0.0000", rep.Headline())
	})

	t.Run("missing and non regular inputs produce no report", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		pub := &capturePublisher{}

		a, err := NewAnalyzer(testLogger(&buf), WithPublisher(pub))
		r.NoError(err)

		rep, err := a.Analyze(ctx, filepath.Join(dir, "nope"))
		r.Error(err)
		r.Nil(rep)
		r.True(IsNotFound(err))

		rep, err = a.Analyze(ctx, dir)
		r.Error(err)
		r.Nil(rep)
		r.True(IsNotAFile(err))

		r.Contains(buf.String(), "[ERROR]")
		r.Empty(pub.reports)
	})

	t.Run("expands lz4 input when asked", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		data := bytes.Repeat([]byte{0, 1, 2, 3}, 2048)
		path := writeFile(t, dir, "data.lz4", lz4Frame(t, data))

		plain, err := NewAnalyzer(testLogger(&buf))
		r.NoError(err)

		rep, err := plain.Analyze(ctx, path)
		r.NoError(err)
		r.Equal("", rep.Expanded)

		a, err := NewAnalyzer(testLogger(&buf), WithExpand(true))
		r.NoError(err)

		rep, err = a.Analyze(ctx, path)
		r.NoError(err)

		r.Equal(FormatLZ4, rep.Expanded)
		r.Equal(int64(len(data)), rep.Size)
		r.InDelta(2.0, rep.Entropy, 1e-9)
	})

	t.Run("broken containers are read failures", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		path := writeFile(t, dir, "broken.qcow2", []byte{'Q', 'F', 'I', 0xfb, 0, 0})

		a, err := NewAnalyzer(testLogger(&buf), WithExpand(true))
		r.NoError(err)

		_, err = a.Analyze(ctx, path)
		r.Error(err)
		r.True(IsReadFailure(err))
	})

	t.Run("oversized expansions are read failures", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		path := writeFile(t, dir, "big.lz4", lz4Frame(t, make([]byte, 256*1024)))

		a, err := NewAnalyzer(testLogger(&buf), WithExpand(true), WithMaxExpandedSize(64*1024))
		r.NoError(err)

		_, err = a.Analyze(ctx, path)
		r.Error(err)
		r.True(IsReadFailure(err))
		r.ErrorIs(err, ErrExpandedTooLarge)

		path = writeFile(t, dir, "huge.qcow2", qcow2Image(t, 1<<40))

		_, err = a.Analyze(ctx, path)
		r.True(IsReadFailure(err))
		r.ErrorIs(err, ErrExpandedTooLarge)
	})

	t.Run("records history and publishes", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		h, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
		r.NoError(err)

		defer h.Close()

		var ur UlidRecall
		pub := &capturePublisher{}

		a, err := NewAnalyzer(testLogger(&buf),
			WithHistory(h),
			WithPublisher(pub),
			WithSeqGen(ur.Gen),
		)
		r.NoError(err)

		path := writeFile(t, dir, "recorded", []byte("some text to record"))

		rep, err := a.Analyze(ctx, path)
		r.NoError(err)

		r.Equal(ur.First(), rep.ID)

		stored, err := h.Get(ur.First())
		r.NoError(err)

		r.Equal(rep.Entropy, stored.Entropy)
		r.Equal(rep.Sum, stored.Sum)

		r.Len(pub.reports, 1)
		r.Equal(rep.ID, pub.reports[0].ID)
	})

	t.Run("identical content reuses cached results", func(t *testing.T) {
		r := require.New(t)

		var buf bytes.Buffer

		a, err := NewAnalyzer(testLogger(&buf), WithCacheSize(10))
		r.NoError(err)

		data := []byte("repeated content")
		p1 := writeFile(t, dir, "one", data)
		p2 := writeFile(t, dir, "two", data)

		before := counterValue(cacheHits)

		rep1, err := a.Analyze(ctx, p1)
		r.NoError(err)

		rep2, err := a.Analyze(ctx, p2)
		r.NoError(err)

		r.Equal(rep1.Entropy, rep2.Entropy)
		r.Equal(rep1.Sum, rep2.Sum)
		r.NotEqual(rep1.ID, rep2.ID)
		r.Equal(before+1, counterValue(cacheHits))

		a.PurgeCache()

		_, err = a.Analyze(ctx, p1)
		r.NoError(err)
		r.Equal(before+1, counterValue(cacheHits))
	})
}
