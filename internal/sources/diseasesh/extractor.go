package diseasesh

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/config"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/ratelimit"
)

// Extractor fetches, audits and normalizes source payloads.
type Extractor struct {
	client      *Client
	audit       *AuditStore
	transformer *Transformer
	log         *slog.Logger
}

// NewExtractor wires the client, audit store and transformer from cfg.
func NewExtractor(src config.SourceConfig, audit config.AuditConfig, clock clockwork.Clock, log *slog.Logger) *Extractor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	limiter := ratelimit.NewLimiter(src.RateLimit, clock)
	return &Extractor{
		client:      NewClient(src, limiter),
		audit:       NewAuditStore(audit.Dir, clock),
		transformer: NewTransformer(src.DataSource, src.Projection == config.ProjectionStrict, clock),
		log:         log,
	}
}

// Fetch retrieves the payload for kind and persists it before returning it.
// An audit failure is reported even though the fetch succeeded.
func (e *Extractor) Fetch(ctx context.Context, kind Kind) ([]byte, error) {
	u, _ := e.client.URL(kind)
	e.log.Info("fetching data", "kind", kind, "url", u)

	payload, err := e.client.Fetch(ctx, kind)
	if err != nil {
		e.log.Error("fetch failed", "kind", kind, "error", err)
		return nil, err
	}

	path, err := e.audit.Save(kind, payload)
	if err != nil {
		e.log.Error("saving raw data failed", "kind", kind, "bytes", len(payload), "error", err)
		return nil, err
	}
	e.log.Info("raw data saved", "path", path, "bytes", len(payload))
	return payload, nil
}

// Transform normalizes a payload.
func (e *Extractor) Transform(payload []byte) (models.Table[models.NormalizedRecord], error) {
	table, err := e.transformer.Transform(payload)
	if err != nil {
		e.log.Error("transform failed", "error", err)
		return table, err
	}
	e.log.Info("transformed raw data", "rows", table.Len(), "columns", len(table.Columns))
	return table, nil
}

// ExtractAndTransform composes Fetch and Transform.
func (e *Extractor) ExtractAndTransform(ctx context.Context, kind Kind) (models.Table[models.NormalizedRecord], error) {
	payload, err := e.Fetch(ctx, kind)
	if err != nil {
		return models.Table[models.NormalizedRecord]{}, err
	}
	return e.Transform(payload)
}
