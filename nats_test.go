package ent

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/lab47/ent/pkg/entropy"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestNATS(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("nats url not specified")
	}

	log := hclog.New(&hclog.LoggerOptions{
		Name:  "nats",
		Level: hclog.Trace,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()

	path := filepath.Join(dir, "four")
	require.NoError(t, os.WriteFile(path, []byte{0, 1, 2, 3}, 0644))

	t.Run("answers analyze requests and publishes reports", func(t *testing.T) {
		r := require.New(t)

		a, err := NewAnalyzer(log)
		r.NoError(err)

		nc, err := NewNATSConnector(log, a, url, "test")
		r.NoError(err)

		defer nc.Close()

		a.SetPublisher(nc)

		r.NoError(nc.Start(ctx))

		conn, err := nats.Connect(url)
		r.NoError(err)

		defer conn.Close()

		reports := make(chan *Report, 1)

		_, err = conn.Subscribe("ent.test.reports", func(msg *nats.Msg) {
			var rep Report
			if err := cbor.Unmarshal(msg.Data, &rep); err == nil {
				reports <- &rep
			}
		})
		r.NoError(err)

		r.NoError(conn.Flush())

		req, err := json.Marshal(&AnalyzeRequest{Path: path})
		r.NoError(err)

		msg, err := conn.Request("ent.test.analyze", req, 5*time.Second)
		r.NoError(err)

		var resp AnalyzeResponse
		r.NoError(json.Unmarshal(msg.Data, &resp))

		r.Empty(resp.Error)
		r.NotNil(resp.Report)
		r.InDelta(2.0, resp.Report.Entropy, 1e-9)
		r.Equal(entropy.Low, resp.Report.Class)

		select {
		case <-ctx.Done():
			r.NoError(ctx.Err())
		case rep := <-reports:
			r.Equal(resp.Report.ID, rep.ID)
		}

		req, err = json.Marshal(&AnalyzeRequest{Path: filepath.Join(dir, "missing")})
		r.NoError(err)

		msg, err = conn.Request("ent.test.analyze", req, 5*time.Second)
		r.NoError(err)

		resp = AnalyzeResponse{}
		r.NoError(json.Unmarshal(msg.Data, &resp))

		r.Nil(resp.Report)
		r.Equal("not-found", resp.Kind)
	})

	t.Run("publishes stats", func(t *testing.T) {
		r := require.New(t)

		a, err := NewAnalyzer(log)
		r.NoError(err)

		nc, err := NewNATSConnector(log, a, url, "test")
		r.NoError(err)

		defer nc.Close()

		conn, err := nats.Connect(url)
		r.NoError(err)

		defer conn.Close()

		done := make(chan StatsMessage, 1)

		b := time.Now()

		_, err = conn.Subscribe("ent.test.stats", func(msg *nats.Msg) {
			var stats StatsMessage
			if err := json.Unmarshal(msg.Data, &stats); err == nil {
				done <- stats
			}
		})
		r.NoError(err)

		r.NoError(conn.Flush())

		r.NoError(nc.publishStats())

		select {
		case <-ctx.Done():
			r.NoError(ctx.Err())
		case stats := <-done:
			r.Equal("test", stats.Id)
			r.InDelta(0, stats.PublishTime.Sub(b).Seconds(), 1)
		}
	})
}

func TestHandleAnalyze(t *testing.T) {
	r := require.New(t)

	a, err := NewAnalyzer(hclog.NewNullLogger())
	r.NoError(err)

	n := &NATSConnector{log: hclog.NewNullLogger(), a: a, id: "local"}

	resp := n.handleAnalyze(context.Background(), []byte("not json"))
	r.Contains(resp.Error, "invalid request")

	resp = n.handleAnalyze(context.Background(), []byte(`{"path": ""}`))
	r.Equal("path must not be empty", resp.Error)

	dir := t.TempDir()

	resp = n.handleAnalyze(context.Background(), []byte(`{"path": "`+dir+`"}`))
	r.Equal("not-a-file", resp.Kind)
	r.Nil(resp.Report)

	resp = n.handleAnalyze(context.Background(), []byte(`{"path": "`+filepath.Join(dir, "missing")+`"}`))
	r.Equal("not-found", resp.Kind)
	r.Contains(resp.Error, "does not exist")

	path := filepath.Join(dir, "four")
	r.NoError(os.WriteFile(path, []byte{0, 1, 2, 3}, 0644))

	req, err := json.Marshal(&AnalyzeRequest{Path: path})
	r.NoError(err)

	resp = n.handleAnalyze(context.Background(), req)
	r.Empty(resp.Error)
	r.Empty(resp.Kind)
	r.NotNil(resp.Report)
	r.InDelta(2.0, resp.Report.Entropy, 1e-9)
	r.Equal(path, resp.Report.Path)

	r.Equal("ent.local.reports", n.subj("reports"))
}
