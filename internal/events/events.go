package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects for the document processing lifecycle.
const (
	// SubjectDocumentStored announces a document registered and ready for
	// extraction.
	SubjectDocumentStored = "dramatis.document.stored"
	// SubjectPipelineProgress carries per-unit progress during a run.
	SubjectPipelineProgress = "dramatis.pipeline.progress"
	// SubjectPipelineComplete announces a finished run with its totals.
	SubjectPipelineComplete = "dramatis.pipeline.complete"
	// SubjectPipelineFailed announces a run that could not start or finish.
	SubjectPipelineFailed = "dramatis.pipeline.failed"
)

// DocumentStored is emitted when a document lands in the store.
type DocumentStored struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Pages      int    `json:"pages"`
}

// PipelineProgress is emitted after every completed unit of work.
type PipelineProgress struct {
	DocumentID string `json:"document_id"`
	Stage      string `json:"stage"`
	Unit       int    `json:"unit"`
	Units      int    `json:"units"`
}

// PipelineComplete is emitted once a document's cast has been extracted.
type PipelineComplete struct {
	DocumentID     string `json:"document_id"`
	Characters     int    `json:"characters"`
	DialogueLines  int    `json:"dialogue_lines"`
	NarrationLines int    `json:"narration_lines"`
	Pages          int    `json:"pages"`
}

// PipelineFailed is emitted when a run ends without a result.
type PipelineFailed struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(ctx context.Context, url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
