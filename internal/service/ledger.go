package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"stockledger-api/internal/guard"
	"stockledger-api/internal/model"
	"stockledger-api/internal/product"
	"stockledger-api/internal/repository"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ledger operation names used in metrics, spans and logs.
const (
	OpQuery    = "query"
	OpSet      = "set"
	OpIncrease = "increase"
	OpDecrease = "decrease"
)

// FallbackPolicy decides how a mutation proceeds when product existence is unknown.
type FallbackPolicy string

const (
	// FallbackUnavailable rejects the mutation with DependencyUnavailable.
	FallbackUnavailable FallbackPolicy = "unavailable"
	// FallbackNotFound treats the product as nonexistent.
	FallbackNotFound FallbackPolicy = "not_found"
)

// Recorder receives ledger measurements.
type Recorder interface {
	LedgerOperation(operation, outcome string)
	CASConflict(operation string)
	AuditFailure(sink string)
	InventoryStats(stats model.InventoryStats)
}

type nopRecorder struct{}

func (nopRecorder) LedgerOperation(string, string)      {}
func (nopRecorder) CASConflict(string)                  {}
func (nopRecorder) AuditFailure(string)                 {}
func (nopRecorder) InventoryStats(model.InventoryStats) {}

// ProductGuard is the guarded view of the product service.
type ProductGuard interface {
	Exists(ctx context.Context, productID int64) (guard.Existence, error)
	Fetch(ctx context.Context, productID int64) (*model.Product, error)
	FetchBatch(ctx context.Context, productIDs []int64) ([]model.Product, error)
}

// LedgerConfig holds ledger tuning.
type LedgerConfig struct {
	MaxCASAttempts    int
	FallbackPolicy    FallbackPolicy
	LowStockThreshold int64
}

// Inventory is a quantity record with the product metadata available at read time.
// Product is nil when the product service could not be reached.
type Inventory struct {
	Record  model.QuantityRecord
	Product *model.Product
}

// LedgerService owns every write to the quantity store.
type LedgerService struct {
	store    repository.QuantityStore
	products ProductGuard
	audit    *AuditLog
	recorder Recorder
	cfg      LedgerConfig
	tracer   trace.Tracer
}

// NewLedgerService creates a ledger. recorder may be nil.
func NewLedgerService(store repository.QuantityStore, products ProductGuard, audit *AuditLog, cfg LedgerConfig, recorder Recorder) *LedgerService {
	if cfg.MaxCASAttempts < 1 {
		cfg.MaxCASAttempts = 5
	}
	if cfg.FallbackPolicy == "" {
		cfg.FallbackPolicy = FallbackUnavailable
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 10
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if audit == nil {
		audit = NewAuditLog(nil, 0, recorder)
	}
	return &LedgerService{
		store:    store,
		products: products,
		audit:    audit,
		recorder: recorder,
		cfg:      cfg,
		tracer:   otel.Tracer("stockledger-api/ledger"),
	}
}

// LowStockThreshold returns the default threshold used by reports.
func (s *LedgerService) LowStockThreshold() int64 {
	return s.cfg.LowStockThreshold
}

// Query returns the current record for productID. It never writes.
func (s *LedgerService) Query(ctx context.Context, productID int64) (*Inventory, error) {
	ctx, span := s.startSpan(ctx, OpQuery, productID)
	defer span.End()

	inv, err := s.query(ctx, productID)
	s.finish(span, OpQuery, err)
	return inv, err
}

func (s *LedgerService) query(ctx context.Context, productID int64) (*Inventory, error) {
	if productID <= 0 {
		return nil, invalidArgument(productID, "product id must be positive")
	}

	rec, err := s.store.Get(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, newError(KindNotFound, productID, "no inventory record", nil)
	}
	if err != nil {
		return nil, storeUnavailable(productID, err)
	}
	return &Inventory{Record: *rec, Product: s.describe(ctx, productID)}, nil
}

// SetQuantity overwrites the quantity of productID, creating the record if needed.
func (s *LedgerService) SetQuantity(ctx context.Context, productID, quantity int64) (*Inventory, error) {
	if quantity < 0 {
		return s.reject(ctx, OpSet, productID, invalidArgument(productID, "quantity must not be negative"))
	}
	return s.mutate(ctx, productID, mutation{
		op:     OpSet,
		kind:   model.AuditSet,
		create: true,
		compute: func(int64) (int64, error) {
			return quantity, nil
		},
	})
}

// Increase adds amount to productID's quantity. unitPrice is optional.
func (s *LedgerService) Increase(ctx context.Context, productID, amount int64, unitPrice *decimal.Decimal) (*Inventory, error) {
	if err := validateAmount(productID, amount, unitPrice); err != nil {
		return s.reject(ctx, OpIncrease, productID, err)
	}
	return s.mutate(ctx, productID, mutation{
		op:        OpIncrease,
		kind:      model.AuditIncrease,
		create:    true,
		amount:    amount,
		unitPrice: unitPrice,
		compute: func(current int64) (int64, error) {
			if current > math.MaxInt64-amount {
				return 0, invalidArgument(productID, "quantity would overflow")
			}
			return current + amount, nil
		},
	})
}

// Decrease removes amount from productID's quantity. It fails with
// InsufficientStock, without writing, when fewer than amount units are on hand.
func (s *LedgerService) Decrease(ctx context.Context, productID, amount int64, unitPrice *decimal.Decimal) (*Inventory, error) {
	if err := validateAmount(productID, amount, unitPrice); err != nil {
		return s.reject(ctx, OpDecrease, productID, err)
	}
	return s.mutate(ctx, productID, mutation{
		op:        OpDecrease,
		kind:      model.AuditDecrease,
		amount:    amount,
		unitPrice: unitPrice,
		compute: func(current int64) (int64, error) {
			if current < amount {
				return 0, newError(KindInsufficientStock, productID,
					fmt.Sprintf("insufficient stock: available %d, requested %d", current, amount), nil)
			}
			return current - amount, nil
		},
	})
}

func validateAmount(productID, amount int64, unitPrice *decimal.Decimal) error {
	if amount <= 0 {
		return invalidArgument(productID, "amount must be positive")
	}
	if unitPrice != nil && unitPrice.IsNegative() {
		return invalidArgument(productID, "unit price must not be negative")
	}
	return nil
}

type mutation struct {
	op        string
	kind      model.AuditKind
	create    bool
	amount    int64
	unitPrice *decimal.Decimal
	compute   func(current int64) (int64, error)
}

func (s *LedgerService) reject(ctx context.Context, op string, productID int64, err error) (*Inventory, error) {
	_, span := s.startSpan(ctx, op, productID)
	defer span.End()
	s.finish(span, op, err)
	return nil, err
}

func (s *LedgerService) mutate(ctx context.Context, productID int64, m mutation) (*Inventory, error) {
	ctx, span := s.startSpan(ctx, m.op, productID)
	defer span.End()

	inv, err := s.apply(ctx, span, productID, m)
	s.finish(span, m.op, err)
	return inv, err
}

// apply runs the read-compute-swap loop for one mutation.
func (s *LedgerService) apply(ctx context.Context, span trace.Span, productID int64, m mutation) (*Inventory, error) {
	if productID <= 0 {
		return nil, invalidArgument(productID, "product id must be positive")
	}
	if err := s.checkProduct(ctx, productID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.cfg.MaxCASAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int("cas.attempts", attempt))

		current, err := s.load(ctx, productID, m)
		if err != nil {
			return nil, err
		}

		next, err := m.compute(current.Quantity)
		if err != nil {
			return nil, err
		}

		updated, err := s.store.CompareAndSwap(ctx, productID, current.Version, next)
		switch {
		case err == nil:
			s.record(ctx, m, current.Quantity, updated)
			return &Inventory{Record: *updated, Product: s.describe(ctx, productID)}, nil
		case errors.Is(err, repository.ErrConflict):
			s.recorder.CASConflict(m.op)
			log.Debug().
				Str("component", "LedgerService").
				Str("operation", m.op).
				Int64("product_id", productID).
				Int("attempt", attempt).
				Msg("version conflict, retrying")
			continue
		case errors.Is(err, repository.ErrNegativeQuantity):
			return nil, newError(KindInsufficientStock, productID, "quantity must not become negative", err)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, storeUnavailable(productID, err)
		}
	}

	return nil, newError(KindConflict, productID,
		fmt.Sprintf("gave up after %d concurrent modifications", s.cfg.MaxCASAttempts), repository.ErrConflict)
}

// checkProduct gates every mutation on the product service's answer.
func (s *LedgerService) checkProduct(ctx context.Context, productID int64) error {
	existence, err := s.products.Exists(ctx, productID)
	if err != nil {
		return err
	}

	switch existence {
	case guard.ExistencePresent:
		return nil
	case guard.ExistenceAbsent:
		return newError(KindProductNotFound, productID, "product does not exist", product.ErrProductNotFound)
	}

	if s.cfg.FallbackPolicy == FallbackNotFound {
		return newError(KindProductNotFound, productID, "product existence could not be confirmed", guard.ErrDependencyUnavailable)
	}
	return newError(KindDependencyUnavailable, productID, "product existence could not be confirmed", guard.ErrDependencyUnavailable)
}

// load reads the record to mutate. Decrease never creates one: an absent
// record is offered to compute as quantity 0, which always fails.
func (s *LedgerService) load(ctx context.Context, productID int64, m mutation) (*model.QuantityRecord, error) {
	var (
		rec *model.QuantityRecord
		err error
	)
	if m.create {
		rec, err = s.store.CreateIfAbsent(ctx, productID)
	} else {
		rec, err = s.store.Get(ctx, productID)
	}

	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, repository.ErrNotFound):
		if _, cerr := m.compute(0); cerr != nil {
			return nil, cerr
		}
		return nil, newError(KindNotFound, productID, "no inventory record", err)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	}
	return nil, storeUnavailable(productID, err)
}

func (s *LedgerService) record(ctx context.Context, m mutation, previous int64, updated *model.QuantityRecord) {
	entry := model.AuditEntry{
		ProductID:         updated.ProductID,
		Kind:              m.kind,
		Quantity:          m.amount,
		PreviousQuantity:  previous,
		ResultingQuantity: updated.Quantity,
	}
	if m.kind == model.AuditSet {
		diff := updated.Quantity - previous
		if diff < 0 {
			diff = -diff
		}
		entry.Quantity = diff
		entry.Note = fmt.Sprintf("adjusted %d -> %d", previous, updated.Quantity)
	}
	if m.unitPrice != nil {
		price := *m.unitPrice
		total := price.Mul(decimal.NewFromInt(m.amount))
		entry.UnitPrice = &price
		entry.TotalPrice = &total
	}
	s.audit.Append(ctx, entry)
}

// describe fetches product metadata, returning nil on any failure.
func (s *LedgerService) describe(ctx context.Context, productID int64) *model.Product {
	p, err := s.products.Fetch(ctx, productID)
	if err != nil {
		log.Debug().
			Err(err).
			Str("component", "LedgerService").
			Int64("product_id", productID).
			Msg("product metadata unavailable")
		return nil
	}
	return p
}

// Stats summarises every record using the configured low-stock threshold.
func (s *LedgerService) Stats(ctx context.Context) (*model.InventoryStats, error) {
	stats, err := s.store.Stats(ctx, s.cfg.LowStockThreshold)
	if err != nil {
		return nil, storeUnavailable(0, err)
	}
	return stats, nil
}

// LowStock lists records with quantity strictly below threshold, lowest first.
// A zero threshold uses the configured default.
func (s *LedgerService) LowStock(ctx context.Context, threshold int64) ([]Inventory, error) {
	if threshold < 0 {
		return nil, invalidArgument(0, "threshold must not be negative")
	}
	if threshold == 0 {
		threshold = s.cfg.LowStockThreshold
	}
	records, err := s.store.ListBelow(ctx, threshold)
	if err != nil {
		return nil, storeUnavailable(0, err)
	}
	return s.describeAll(ctx, records), nil
}

// OutOfStock lists records with zero quantity.
func (s *LedgerService) OutOfStock(ctx context.Context) ([]Inventory, error) {
	records, err := s.store.ListOutOfStock(ctx)
	if err != nil {
		return nil, storeUnavailable(0, err)
	}
	return s.describeAll(ctx, records), nil
}

// describeAll attaches product metadata from one batch lookup. Records keep
// a nil Product when the lookup fails or the product is unknown.
func (s *LedgerService) describeAll(ctx context.Context, records []model.QuantityRecord) []Inventory {
	out := make([]Inventory, len(records))
	if len(records) == 0 {
		return out
	}

	ids := make([]int64, len(records))
	for i, rec := range records {
		ids[i] = rec.ProductID
	}
	byID := make(map[int64]*model.Product, len(records))
	products, err := s.products.FetchBatch(ctx, ids)
	if err != nil {
		log.Debug().
			Err(err).
			Str("component", "LedgerService").
			Int("count", len(ids)).
			Msg("product metadata unavailable")
	}
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	for i, rec := range records {
		out[i] = Inventory{Record: rec, Product: byID[rec.ProductID]}
	}
	return out
}

// History returns a page of audit entries for productID, newest first.
func (s *LedgerService) History(ctx context.Context, productID int64, kind model.AuditKind, page, limit int) ([]model.AuditEntry, int64, error) {
	return s.audit.History(ctx, productID, kind, page, limit)
}

// Ping checks the quantity store.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *LedgerService) startSpan(ctx context.Context, op string, productID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.Int64("product.id", productID),
	))
}

func (s *LedgerService) finish(span trace.Span, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(KindOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.recorder.LedgerOperation(op, outcome)
}
