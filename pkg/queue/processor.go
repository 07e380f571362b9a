// Package queue moves queued jobs from the Redis work stream to the handler for their type.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var ErrProcessorAlreadyRunning = errors.New("processor already running")

const (
	DefaultStream        = "fern:jobs"
	DefaultConsumerGroup = "fern-workers"
	DefaultBatchSize     = 10
	DefaultBlockTimeout  = 5 * time.Second
	DefaultMaxRetries    = 3
	DefaultClaimInterval = 30 * time.Second
	DefaultClaimMinIdle  = 60 * time.Second
)

// Streams is the subset of the Redis stream client the processor needs.
type Streams interface {
	CreateConsumerGroup(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Pending(ctx context.Context, stream, group string, count int64) ([]redis.PendingMessage, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error)
	Touch(ctx context.Context, stream, group, consumer string, ids ...string) error
}

// Handler runs one job to a terminal state. A returned error leaves the message pending for redelivery.
type Handler interface {
	Handle(ctx context.Context, jobID string) error
}

type HandlerFunc func(ctx context.Context, jobID string) error

func (f HandlerFunc) Handle(ctx context.Context, jobID string) error {
	return f(ctx, jobID)
}

// Abandoner settles a job whose message ran out of deliveries.
type Abandoner interface {
	Abandon(ctx context.Context, id, message string) error
}

type ProcessorConfig struct {
	Stream        string
	ConsumerGroup string
	// ConsumerName must be unique per worker instance.
	ConsumerName  string
	BatchSize     int64
	BlockTimeout  time.Duration
	MaxRetries    int
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	WorkerCount   int
}

func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        DefaultStream,
		ConsumerGroup: DefaultConsumerGroup,
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
	}
}

type Processor struct {
	streams   Streams
	handlers  map[models.JobType]Handler
	abandoner Abandoner
	config    ProcessorConfig
	logger    ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	running bool
	mu      sync.RWMutex

	// inFlight holds the ids of messages a local worker is handling.
	inFlight   map[string]struct{}
	inFlightMu sync.Mutex
}

func NewProcessor(streams Streams, abandoner Abandoner, config ProcessorConfig, logger ectologger.Logger) *Processor {
	defaults := DefaultProcessorConfig()
	if config.Stream == "" {
		config.Stream = defaults.Stream
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaults.ConsumerGroup
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Processor{
		streams:   streams,
		handlers:  map[models.JobType]Handler{},
		abandoner: abandoner,
		config:    config,
		logger:    logger,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
		jobsCh:    make(chan redis.StreamMessage, config.BatchSize*2),
		inFlight:  map[string]struct{}{},
	}
}

// Register routes jobs of jobType to handler. Call before Start.
func (p *Processor) Register(jobType models.JobType, handler Handler) *Processor {
	p.handlers[jobType] = handler
	return p
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProcessorAlreadyRunning
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithContext(ctx).Infof("Starting job processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var workers sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		workers.Add(1)
		go p.worker(ctx, &workers, i)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.consumeLoop(ctx, &readers)
	go p.claimLoop(ctx, &readers)

	go func() {
		<-p.stopCh
		readers.Wait()
		close(p.jobsCh)
		workers.Wait()
		close(p.stoppedC)
	}()

	return nil
}

// Stop waits for in-flight jobs to finish or for ctx to expire.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping job processor...")
	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Job processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Job processor shutdown timed out")
		return ctx.Err()
	}
}

func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.BatchSize, p.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			select {
			case <-time.After(time.Second):
			case <-p.stopCh:
				return
			}
			continue
		}

		if !p.dispatch(ctx, messages, true) {
			return
		}
	}
}

func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.claimPending(ctx)
		}
	}
}

// claimPending takes over messages another consumer left idle and abandons those past MaxRetries.
func (p *Processor) claimPending(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "queue.Processor.claimPending")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	var stale, exhausted []string
	for _, msg := range pending {
		if msg.Idle < p.config.ClaimMinIdle || p.isInFlight(msg.ID) {
			continue
		}
		if msg.RetryCount > int64(p.config.MaxRetries) {
			exhausted = append(exhausted, msg.ID)
		} else {
			stale = append(stale, msg.ID)
		}
	}

	if len(exhausted) > 0 {
		p.abandon(ctx, exhausted)
	}
	if len(stale) == 0 {
		return
	}

	p.logger.WithContext(ctx).Infof("Claiming %d stale pending messages", len(stale))
	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, stale...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return
	}
	p.dispatch(ctx, claimed, false)
}

func (p *Processor) abandon(ctx context.Context, ids []string) {
	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, ids...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim exhausted messages")
		return
	}

	for _, msg := range claimed {
		if msg.Job != nil {
			p.logger.WithContext(ctx).Warnf("Job %s exceeded %d deliveries, abandoning", msg.Job.JobID, p.config.MaxRetries)
			if p.abandoner != nil {
				if err := p.abandoner.Abandon(ctx, msg.Job.JobID, "Job exceeded maximum retry count"); err != nil {
					p.logger.WithContext(ctx).WithError(err).Warnf("Failed to abandon job %s", msg.Job.JobID)
					continue
				}
			}
			metrics.RecordQueueJob(msg.Job.Type, "abandoned")
		}
		p.ack(ctx, msg.ID)
	}
}

// dispatch hands decodable messages to the workers and acks the rest. When block is false a full
// channel skips the message until the next claim pass. It reports false once the processor stops.
func (p *Processor) dispatch(ctx context.Context, messages []redis.StreamMessage, block bool) bool {
	for _, msg := range messages {
		if msg.Job == nil || msg.Job.JobID == "" {
			p.logger.WithContext(ctx).Warnf("Dropping undecodable message %s", msg.ID)
			p.ack(ctx, msg.ID)
			continue
		}

		if !block {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return false
			default:
			}
			continue
		}

		select {
		case p.jobsCh <- msg:
		case <-p.stopCh:
			return false
		}
	}
	return true
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)
	for msg := range p.jobsCh {
		if p.process(ctx, msg) {
			p.ack(ctx, msg.ID)
		}
	}
	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// process runs the handler for msg and reports whether the message can be acknowledged.
func (p *Processor) process(ctx context.Context, msg redis.StreamMessage) bool {
	job := msg.Job
	ctx = appctx.SetJobID(ctx, job.JobID)
	ctx = appctx.SetProjectID(ctx, job.ProjectID)
	ctx = appctx.SetRequestID(ctx, job.ID)

	ctx, span := tracing.StartSpan(ctx, "queue.Processor.process")
	defer span.End()

	logger := p.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx))

	handler, ok := p.handlers[models.JobType(job.Type)]
	if !ok {
		logger.Warnf("No handler for job type %s", job.Type)
		if p.abandoner != nil {
			if err := p.abandoner.Abandon(ctx, job.JobID, fmt.Sprintf("Unsupported job type: %s", job.Type)); err != nil {
				logger.WithError(err).Warn("Failed to abandon unsupported job")
			}
		}
		metrics.RecordQueueJob(job.Type, "unsupported")
		return true
	}

	metrics.QueueJobsInFlight.Inc()
	defer metrics.QueueJobsInFlight.Dec()

	p.markInFlight(msg.ID)
	defer p.clearInFlight(msg.ID)

	stopHeartbeat := p.heartbeat(ctx, msg.ID)
	defer stopHeartbeat()

	start := time.Now()
	logger.Infof("Processing job %s: type=%s", job.JobID, job.Type)

	if err := handler.Handle(ctx, job.JobID); err != nil {
		tracing.RecordError(ctx, err)
		logger.WithError(err).Warnf("Job %s failed after %s, will be retried", job.JobID, time.Since(start))
		metrics.RecordQueueJob(job.Type, "error")
		return false
	}

	logger.Infof("Job %s handled in %s", job.JobID, time.Since(start))
	metrics.RecordQueueJob(job.Type, "ok")
	return true
}

// heartbeat keeps msg owned by this consumer and below ClaimMinIdle until the returned func is called,
// so a long job is not claimed away while it is still being worked.
func (p *Processor) heartbeat(ctx context.Context, id string) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.config.ClaimMinIdle / 3)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.streams.Touch(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, id); err != nil {
					p.logger.WithContext(ctx).WithError(err).Warnf("Failed to refresh message %s", id)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (p *Processor) markInFlight(id string) {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	p.inFlight[id] = struct{}{}
}

func (p *Processor) clearInFlight(id string) {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	delete(p.inFlight, id)
}

func (p *Processor) isInFlight(id string) bool {
	p.inFlightMu.Lock()
	defer p.inFlightMu.Unlock()
	_, ok := p.inFlight[id]
	return ok
}

func (p *Processor) ack(ctx context.Context, id string) {
	if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, id); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", id)
	}
}
