package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/fablecast/dramatis/internal/events"
	"github.com/fablecast/dramatis/internal/pipeline"
	"github.com/fablecast/dramatis/internal/source"
	"github.com/fablecast/dramatis/internal/store"
)

// Processor drives document runs end to end: load the text, run the
// extraction pipeline, persist the cast, announce the outcome. Concurrent
// triggers for the same document collapse into a single run.
type Processor struct {
	store  *store.Store
	coord  *pipeline.Coordinator
	bus    *events.Client
	logger *slog.Logger

	group singleflight.Group
}

func New(s *store.Store, coord *pipeline.Coordinator, bus *events.Client, logger *slog.Logger) *Processor {
	return &Processor{
		store:  s,
		coord:  coord,
		bus:    bus,
		logger: logger,
	}
}

// HandleDocumentStored is the NATS handler for dramatis.document.stored.
func (p *Processor) HandleDocumentStored(subject string, data []byte) {
	ctx := context.Background()

	var evt events.DocumentStored
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse document event", "error", err)
		return
	}
	if evt.DocumentID == "" {
		p.logger.Error("document event missing id")
		return
	}

	p.logger.Info("processing document", "document_id", evt.DocumentID, "title", evt.Title)

	if _, err := p.ProcessDocument(ctx, evt.DocumentID); err != nil {
		p.logger.Error("document processing failed", "document_id", evt.DocumentID, "error", err)
	}
}

// ProcessDocument runs extraction for a document already registered in the
// store. A second call for the same id while a run is in flight joins the
// existing run instead of starting another.
func (p *Processor) ProcessDocument(ctx context.Context, documentID string) (*pipeline.Result, error) {
	v, err, _ := p.group.Do(documentID, func() (any, error) {
		return p.process(ctx, documentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*pipeline.Result), nil
}

func (p *Processor) process(ctx context.Context, documentID string) (*pipeline.Result, error) {
	if p.store == nil {
		return nil, fmt.Errorf("no store configured, cannot load document %s", documentID)
	}

	row, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	pages, err := p.store.GetDocumentPages(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document pages %s: %w", documentID, err)
	}
	doc := source.Document{ID: row.ID, Title: row.Title, Pages: pages, Hash: row.ContentHash}

	if err := p.store.UpdateDocumentStatus(ctx, documentID, "processing"); err != nil {
		p.logger.Error("failed to mark document processing", "document_id", documentID, "error", err)
	}

	result, err := p.coord.Run(ctx, doc)
	if err != nil {
		p.fail(ctx, documentID, err)
		return nil, err
	}

	if err := p.store.SaveResult(ctx, result); err != nil {
		p.fail(ctx, documentID, err)
		return nil, fmt.Errorf("persist result: %w", err)
	}

	p.announce(result)
	p.logger.Info("document processed",
		"document_id", documentID,
		"characters", result.Stats.Characters,
		"dialogue_lines", result.Stats.DialogueLines,
	)
	return result, nil
}

// ProcessFile extracts a document straight from disk. The document and its
// result are persisted when a store is configured, so the one-shot path and
// the event-driven path leave the same rows behind.
func (p *Processor) ProcessFile(ctx context.Context, path string, pageSize int) (*pipeline.Result, error) {
	doc, err := source.Load(path, pageSize)
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		if err := p.store.CreateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("register document: %w", err)
		}
		if err := p.store.UpdateDocumentStatus(ctx, doc.ID, "processing"); err != nil {
			p.logger.Error("failed to mark document processing", "document_id", doc.ID, "error", err)
		}
	}

	result, err := p.coord.Run(ctx, doc)
	if err != nil {
		if p.store != nil {
			p.fail(ctx, doc.ID, err)
		}
		return nil, err
	}

	if p.store != nil {
		if err := p.store.SaveResult(ctx, result); err != nil {
			p.fail(ctx, doc.ID, err)
			return nil, fmt.Errorf("persist result: %w", err)
		}
	}

	p.announce(result)
	p.logger.Info("file processed",
		"path", path,
		"document_id", doc.ID,
		"characters", result.Stats.Characters,
		"dialogue_lines", result.Stats.DialogueLines,
	)
	return result, nil
}

func (p *Processor) fail(ctx context.Context, documentID string, cause error) {
	if p.store != nil {
		if err := p.store.UpdateDocumentStatus(ctx, documentID, "failed"); err != nil {
			p.logger.Error("failed to mark document failed", "document_id", documentID, "error", err)
		}
	}
	if p.bus != nil {
		if err := p.bus.Publish(events.SubjectPipelineFailed, events.PipelineFailed{
			DocumentID: documentID,
			Error:      cause.Error(),
		}); err != nil {
			p.logger.Error("failed to publish pipeline failed", "error", err)
		}
	}
}

func (p *Processor) announce(result *pipeline.Result) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(events.SubjectPipelineComplete, events.PipelineComplete{
		DocumentID:     result.DocumentID,
		Characters:     result.Stats.Characters,
		DialogueLines:  result.Stats.DialogueLines,
		NarrationLines: result.Stats.NarrationLines,
		Pages:          result.Stats.Pages,
	}); err != nil {
		p.logger.Error("failed to publish pipeline complete", "error", err)
	}
}
