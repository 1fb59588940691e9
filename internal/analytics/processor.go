package analytics

import (
	"QRLinks-Backend/internal/domain"
	"QRLinks-Backend/internal/repository"
	"QRLinks-Backend/pkg/useragent"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ScanEvent is one redirect observed by the HTTP layer
type ScanEvent struct {
	Slug          string
	ClientAddress string
	UserAgent     string
	Referer       string
	Timestamp     time.Time
}

// ScanAppender is the part of the link store the recorders need
type ScanAppender interface {
	AppendScan(ctx context.Context, slug string, scan *domain.Scan) error
}

// ProcessorConfig holds configuration for the scan processor
type ProcessorConfig struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the job queue buffer
	RetryAttempts   int           // Number of attempts per scan
	RetryDelay      time.Duration // Base delay between retries
	AttemptTimeout  time.Duration // Timeout of a single store write
	ShutdownTimeout time.Duration // Time to wait for the queue to drain on Stop
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:     3,
		BufferSize:      1000,
		RetryAttempts:   3,
		RetryDelay:      500 * time.Millisecond,
		AttemptTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Processor records scans asynchronously: a bounded queue served by a worker pool.
// A full queue drops the scan and logs it; the redirect itself is never delayed.
type Processor struct {
	config   ProcessorConfig
	store    ScanAppender
	parser   *useragent.Parser
	log      *zap.Logger
	jobQueue chan ScanEvent
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex

	recorded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewProcessor creates a new scan processor. parser may be nil.
func NewProcessor(store ScanAppender, parser *useragent.Parser, log *zap.Logger, config ProcessorConfig) *Processor {
	if config.AttemptTimeout <= 0 {
		config.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:   config,
		store:    store,
		parser:   parser,
		log:      log,
		jobQueue: make(chan ScanEvent, config.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing scans
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("processor already started")
	}

	p.log.Info("starting scan processor",
		zap.Int("workers", p.config.WorkerCount),
		zap.Int("buffer_size", p.config.BufferSize),
		zap.Int("retry_attempts", p.config.RetryAttempts),
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	return nil
}

// Stop closes the queue and waits for workers to drain it.
// Scans still queued when ShutdownTimeout expires are abandoned.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return fmt.Errorf("processor not started")
	}

	p.log.Info("stopping scan processor", zap.Int("queued", len(p.jobQueue)))
	close(p.jobQueue)
	p.started = false

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info("scan processor stopped gracefully")
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.cancel()
		p.log.Warn("scan processor shutdown timeout reached", zap.Int("abandoned", len(p.jobQueue)))
		return fmt.Errorf("shutdown timeout reached")
	}
}

// Record queues a scan. It never blocks and never fails the caller.
func (p *Processor) Record(_ context.Context, ev ScanEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		p.dropped.Add(1)
		p.log.Warn("scan processor not running, dropping scan", zap.String("slug", ev.Slug))
		return
	}

	select {
	case p.jobQueue <- ev:
		p.log.Debug("scan submitted for processing", zap.String("slug", ev.Slug))
	default:
		p.dropped.Add(1)
		p.log.Error("scan queue is full, dropping scan",
			zap.String("slug", ev.Slug),
			zap.Int("queue_size", len(p.jobQueue)),
		)
	}
}

// worker processes queued scans until the queue is closed
func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", workerID))
	log.Debug("scan worker started")

	for ev := range p.jobQueue {
		p.processWithRetry(log, ev)
	}
	log.Debug("scan worker stopped")
}

// processWithRetry appends a single scan with exponential backoff between attempts
func (p *Processor) processWithRetry(log *zap.Logger, ev ScanEvent) {
	scan := BuildScan(p.parser, ev)
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(p.ctx, p.config.AttemptTimeout)
		err := p.store.AppendScan(ctx, ev.Slug, scan)
		cancel()

		if err == nil {
			p.recorded.Add(1)
			if attempt > 1 {
				log.Info("scan recorded after retry",
					zap.String("slug", ev.Slug),
					zap.Int("attempt", attempt),
				)
			}
			return
		}

		lastErr = err
		if errors.Is(err, repository.ErrSlugNotFound) {
			// Ссылку удалили или переименовали между редиректом и записью
			break
		}

		log.Warn("scan recording failed",
			zap.String("slug", ev.Slug),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)

		if attempt == p.config.RetryAttempts {
			break
		}

		delay := p.config.RetryDelay * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			log.Info("worker shutdown during retry delay")
			p.failed.Add(1)
			return
		}
	}

	p.failed.Add(1)
	log.Error("scan dropped after all attempts",
		zap.String("slug", ev.Slug),
		zap.Error(lastErr),
	)
}

// GetStats returns processor statistics
func (p *Processor) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"started":        p.started,
		"queue_length":   len(p.jobQueue),
		"queue_capacity": cap(p.jobQueue),
		"worker_count":   p.config.WorkerCount,
		"recorded":       p.recorded.Load(),
		"failed":         p.failed.Load(),
		"dropped":        p.dropped.Load(),
	}
}

// BuildScan turns a redirect event into a stored scan, enriching it with device info
func BuildScan(parser *useragent.Parser, ev ScanEvent) *domain.Scan {
	info := parser.ParseUserAgent(ev.UserAgent)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &domain.Scan{
		LinkSlug:      ev.Slug,
		ClientAddress: ev.ClientAddress,
		UserAgent:     ev.UserAgent,
		Referer:       ev.Referer,
		DeviceType:    info.DeviceType,
		Browser:       info.Browser,
		OS:            info.OS,
		Timestamp:     ts,
	}
}
