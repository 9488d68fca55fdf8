package service

import (
	"context"
	"sync"
	"time"

	"stockledger-api/internal/model"

	"github.com/rs/zerolog/log"
)

// ReportingConfig holds configuration for the reporting scheduler.
type ReportingConfig struct {
	// Interval is how often the inventory report runs.
	// Default: 1 minute
	Interval time.Duration

	// Timeout bounds a single report.
	// Default: 30 seconds
	Timeout time.Duration
}

// ReportingScheduler periodically summarises inventory, publishes the
// summary to the recorder and logs low and out-of-stock counts.
type ReportingScheduler struct {
	ledger    *LedgerService
	recorder  Recorder
	config    ReportingConfig
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex

	lastMu sync.RWMutex
	last   *model.InventoryStats
	lastAt time.Time
}

// NewReportingScheduler creates a new reporting scheduler.
func NewReportingScheduler(ledger *LedgerService, recorder Recorder, config ReportingConfig) *ReportingScheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &ReportingScheduler{
		ledger:   ledger,
		recorder: recorder,
		config:   config,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one report immediately and then every interval.
func (s *ReportingScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	log.Info().
		Str("component", "ReportingScheduler").
		Dur("interval", s.config.Interval).
		Msg("started")

	go func() {
		_, _ = s.RunNow()
		s.run()
	}()
}

func (s *ReportingScheduler) run() {
	for {
		select {
		case <-s.ticker.C:
			_, _ = s.RunNow()
		case <-s.stopCh:
			log.Info().Str("component", "ReportingScheduler").Msg("stopped")
			return
		}
	}
}

// RunNow produces a report immediately and returns it.
func (s *ReportingScheduler) RunNow() (*model.InventoryStats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Str("component", "ReportingScheduler").Msg("inventory report failed")
		return nil, err
	}

	s.recorder.InventoryStats(*stats)

	s.lastMu.Lock()
	s.last = stats
	s.lastAt = time.Now()
	s.lastMu.Unlock()

	ev := log.Info()
	if stats.OutOfStock > 0 || stats.LowStock > 0 {
		ev = log.Warn()
	}
	ev.Str("component", "ReportingScheduler").
		Int64("records", stats.TotalRecords).
		Int64("total_quantity", stats.TotalQuantity).
		Int64("low_stock", stats.LowStock).
		Int64("out_of_stock", stats.OutOfStock).
		Int64("threshold", stats.LowStockThreshold).
		Msg("inventory report")
	return stats, nil
}

// Last returns the most recent report and when it was taken, or nil.
func (s *ReportingScheduler) Last() (*model.InventoryStats, time.Time) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last, s.lastAt
}

// Stop stops the scheduler.
func (s *ReportingScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}
