package service

import (
	"context"
	"time"

	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
	"stockledger-api/pkg/uid"

	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// AuditPublisher forwards audit entries to an external consumer.
type AuditPublisher interface {
	Name() string
	Publish(ctx context.Context, entry model.AuditEntry) error
	Close() error
}

// AuditLog records accepted mutations. Writes are best effort: sink
// failures are logged and counted, never returned.
type AuditLog struct {
	repo       repository.AuditRepository
	publishers []AuditPublisher
	recorder   Recorder
	timeout    time.Duration
	now        func() time.Time
}

// NewAuditLog creates an audit log. repo may be nil when no audit store is configured.
func NewAuditLog(repo repository.AuditRepository, timeout time.Duration, recorder Recorder, publishers ...AuditPublisher) *AuditLog {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &AuditLog{
		repo:       repo,
		publishers: publishers,
		recorder:   recorder,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Append stores entry in every sink. It is detached from ctx cancellation
// so a completed write is still recorded when the caller has gone away.
func (a *AuditLog) Append(ctx context.Context, entry model.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = a.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = uid.RequestID(ctx)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if a.repo != nil {
		if err := a.repo.Append(ctx, &entry); err != nil {
			a.fail("store", entry, err)
		}
	}
	for _, p := range a.publishers {
		if err := p.Publish(ctx, entry); err != nil {
			a.fail(p.Name(), entry, err)
		}
	}
}

func (a *AuditLog) fail(sink string, entry model.AuditEntry, err error) {
	a.recorder.AuditFailure(sink)
	log.Error().
		Err(err).
		Str("component", "AuditLog").
		Str("sink", sink).
		Int64("product_id", entry.ProductID).
		Str("kind", string(entry.Kind)).
		Str("entry_id", entry.ID).
		Msg("failed to record audit entry")
}

// History returns a page of entries for productID, newest first, and the total count.
// page is 1-based; kind "" matches all kinds.
func (a *AuditLog) History(ctx context.Context, productID int64, kind model.AuditKind, page, limit int) ([]model.AuditEntry, int64, error) {
	if productID <= 0 {
		return nil, 0, invalidArgument(productID, "product id must be positive")
	}
	if kind != "" && !kind.Valid() {
		return nil, 0, invalidArgument(productID, "unknown audit kind %q", kind)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if a.repo == nil {
		return []model.AuditEntry{}, 0, nil
	}

	entries, total, err := a.repo.List(ctx, repository.AuditFilter{
		ProductID: productID,
		Kind:      kind,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return nil, 0, storeUnavailable(productID, err)
	}
	return entries, total, nil
}

// Close closes the repository and every publisher.
func (a *AuditLog) Close() error {
	var first error
	for _, p := range a.publishers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
