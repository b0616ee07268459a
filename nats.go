package ent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
)

// NATSConnector publishes reports and answers analyze requests over NATS.
type NATSConnector struct {
	log  hclog.Logger
	a    *Analyzer
	id   string
	conn *nats.Conn

	analyzeSub *nats.Subscription
}

func NewNATSConnector(log hclog.Logger, a *Analyzer, url, id string) (*NATSConnector, error) {
	conn, err := nats.Connect(url, nats.Name("ent-"+id))
	if err != nil {
		return nil, err
	}

	nc := &NATSConnector{
		log:  log,
		a:    a,
		id:   id,
		conn: conn,
	}

	return nc, nil
}

func (n *NATSConnector) Close() {
	n.conn.Close()
}

func (n *NATSConnector) Start(ctx context.Context) error {
	go n.startPeriodic(ctx, 1*time.Minute)
	return n.startAnalyzeInput(ctx)
}

func (n *NATSConnector) startPeriodic(ctx context.Context, dur time.Duration) {
	ticker := time.NewTicker(dur)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := n.publishStats()
			if err != nil {
				n.log.Error("error publishing periodic stats", "error", err)
			}
		}
	}
}

func (n *NATSConnector) subj(which string) string {
	return fmt.Sprintf("ent.%s.%s", n.id, which)
}

func (n *NATSConnector) publishStats() error {
	data, err := json.Marshal(&StatsMessage{
		Id:          n.id,
		PublishTime: time.Now(),
		Files:       counterValue(filesAnalyzed),
		Bytes:       counterValue(bytesAnalyzed),
		CacheHits:   counterValue(cacheHits),
	})

	if err != nil {
		return err
	}

	return n.conn.Publish(n.subj("stats"), data)
}

// PublishReport sends rep, CBOR encoded, on the reports subject.
func (n *NATSConnector) PublishReport(rep *Report) error {
	return n.publish(n.subj("reports"), rep)
}

func (n *NATSConnector) publish(subject string, value any) error {
	data, err := reportEncoding.Marshal(value)
	if err != nil {
		return err
	}

	return n.conn.Publish(subject, data)
}

type StatsMessage struct {
	Id          string    `json:"id" cbor:"10,keyasint"`
	PublishTime time.Time `json:"published_at" cbor:"1,keyasint"`
	Files       int64     `json:"files" cbor:"2,keyasint"`
	Bytes       int64     `json:"bytes" cbor:"3,keyasint"`
	CacheHits   int64     `json:"cache_hits" cbor:"4,keyasint"`
}

type AnalyzeRequest struct {
	Path string `json:"path"`
}

type AnalyzeResponse struct {
	Report *Report `json:"report,omitempty"`
	Error  string  `json:"error,omitempty"`
	Kind   string  `json:"kind,omitempty"`
}

func (n *NATSConnector) handleAnalyze(ctx context.Context, data []byte) AnalyzeResponse {
	var req AnalyzeRequest

	err := json.Unmarshal(data, &req)
	if err != nil {
		n.log.Error("error decoding analyze request", "error", err)
		return AnalyzeResponse{Error: "invalid request: " + err.Error()}
	}

	n.log.Debug("recieved analyze request via NATS", "path", req.Path)

	if req.Path == "" {
		return AnalyzeResponse{Error: "path must not be empty"}
	}

	rep, err := n.a.Analyze(ctx, req.Path)
	if err != nil {
		resp := AnalyzeResponse{Error: err.Error()}
		if kind := KindOf(err); kind != 0 {
			resp.Kind = kind.String()
		}
		return resp
	}

	return AnalyzeResponse{Report: rep}
}

func (n *NATSConnector) startAnalyzeInput(ctx context.Context) error {
	sub, err := n.conn.Subscribe(n.subj("analyze"), func(msg *nats.Msg) {
		resp := n.handleAnalyze(ctx, msg.Data)

		data, err := json.Marshal(&resp)
		if err != nil {
			n.log.Error("error encoding analyze response", "error", err)
			return
		}

		if msg.Reply == "" {
			return
		}

		if err := msg.Respond(data); err != nil {
			n.log.Error("error responding to analyze request", "error", err)
		}
	})

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	n.analyzeSub = sub

	return nil
}
