// Package poller owns the polling cadence and per-message fan-out.
//
// A single coordinator goroutine drives the timer, runs cycles and owns
// every mutable counter; the control surface (status, pause, resume,
// force-cycle) talks to it exclusively through a command channel, so no
// state is ever read concurrently.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mdon/mailtrack/internal/logging"
	"github.com/mdon/mailtrack/internal/metrics"
	"github.com/mdon/mailtrack/internal/processor"
	"github.com/mdon/mailtrack/internal/queue"
)

// State names the coordinator's position in its cycle state machine.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingBatch State = "awaiting-batch"
	StateDispatching   State = "dispatching"
)

// Config configures the poller.
type Config struct {
	Enabled           bool
	Interval          time.Duration
	MaxBatchSize      int
	VisibilityTimeout time.Duration
	// WaitTime is the long-poll duration per receive call.
	WaitTime time.Duration
	// JoinTimeout bounds how long a cycle waits for its per-message tasks.
	// Tasks still running at the deadline are abandoned for the cycle;
	// their messages are simply not deleted and come back after the
	// visibility timeout.
	JoinTimeout time.Duration
}

// Status is a point-in-time snapshot of the coordinator state.
type Status struct {
	Running           bool          `json:"running"`
	Enabled           bool          `json:"enabled"`
	Paused            bool          `json:"paused"`
	State             State         `json:"state"`
	QueueURL          string        `json:"queue_url"`
	Interval          time.Duration `json:"interval"`
	MaxBatchSize      int           `json:"max_batch_size"`
	VisibilityTimeout time.Duration `json:"visibility_timeout"`
	MessagesProcessed int64         `json:"messages_processed"`
	ErrorsCount       int64         `json:"errors_count"`
	CyclesCompleted   int64         `json:"cycles_completed"`
	LastPoll          time.Time     `json:"last_poll"`
	ProcessingTime    time.Duration `json:"processing_time"`
	StartedAt         time.Time     `json:"started_at"`
}

// counters is the coordinator-owned mutable state. Only the run loop
// touches it.
type counters struct {
	paused            bool
	state             State
	messagesProcessed int64
	errorsCount       int64
	cyclesCompleted   int64
	lastPoll          time.Time
	processingTime    time.Duration
	startedAt         time.Time
}

type cmdKind int

const (
	cmdStatus cmdKind = iota
	cmdPause
	cmdResume
	cmdForceCycle
)

type command struct {
	kind cmdKind
	// ctx bounds the work a forced cycle does; unset for other kinds.
	ctx         context.Context
	statusReply chan Status
	errReply    chan error
}

type taskResult struct {
	msg queue.Message
	err error
}

// Poller polls the main queue and fans messages out through the processor.
type Poller struct {
	queue queue.Queue
	proc  *processor.Processor
	log   *logging.Logger
	cfg   Config

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	commands chan command
	// snapshot holds the last known status for when the loop is not
	// running.
	snapshot Status
}

// New creates a Poller. Start must be called before it does anything.
func New(q queue.Queue, proc *processor.Processor, log *logging.Logger, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 10
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 30 * time.Second
	}

	p := &Poller{
		queue:    q,
		proc:     proc,
		log:      log,
		cfg:      cfg,
		commands: make(chan command),
	}
	p.snapshot = Status{
		Enabled:           cfg.Enabled,
		State:             StateIdle,
		QueueURL:          q.URL(),
		Interval:          cfg.Interval,
		MaxBatchSize:      cfg.MaxBatchSize,
		VisibilityTimeout: cfg.VisibilityTimeout,
	}
	return p
}

// Start launches the coordinator goroutine.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("poller already running")
	}
	p.running = true
	p.stopChan = make(chan struct{})

	p.log.InfoContext(ctx, "poller starting",
		"queue_url", p.queue.URL(),
		"interval", p.cfg.Interval,
		"max_batch_size", p.cfg.MaxBatchSize,
		"enabled", p.cfg.Enabled)

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop cancels the pending timer and returns once the coordinator exits.
// In-flight per-message tasks are not waited for beyond the join deadline
// of the current cycle.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller not running")
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Info("poller stopped")
	return nil
}

// Status returns a snapshot of the coordinator state. Never blocks past
// the end of the current cycle.
func (p *Poller) Status() Status {
	p.mu.Lock()
	if !p.running {
		defer p.mu.Unlock()
		return p.snapshot
	}
	stop := p.stopChan
	p.mu.Unlock()

	reply := make(chan Status, 1)
	select {
	case p.commands <- command{kind: cmdStatus, statusReply: reply}:
		return <-reply
	case <-stop:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.snapshot
	}
}

// Pause stops cycle scheduling. In-flight work is unaffected.
func (p *Poller) Pause() error {
	return p.send(command{kind: cmdPause, errReply: make(chan error, 1)})
}

// Resume restarts cycle scheduling.
func (p *Poller) Resume() error {
	return p.send(command{kind: cmdResume, errReply: make(chan error, 1)})
}

// ForceCycle runs one polling cycle immediately, bypassing the timer and
// the paused flag.
func (p *Poller) ForceCycle(ctx context.Context) error {
	return p.send(command{kind: cmdForceCycle, ctx: ctx, errReply: make(chan error, 1)})
}

func (p *Poller) send(cmd command) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller not running")
	}
	stop := p.stopChan
	p.mu.Unlock()

	select {
	case p.commands <- cmd:
		return <-cmd.errReply
	case <-stop:
		return fmt.Errorf("poller not running")
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	c := &counters{state: StateIdle, startedAt: time.Now().UTC()}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.saveSnapshot(c)
			return
		case <-p.stopChan:
			p.saveSnapshot(c)
			return
		case cmd := <-p.commands:
			p.handle(ctx, cmd, c)
		case <-ticker.C:
			if p.cfg.Enabled && !c.paused {
				p.cycle(ctx, c)
			}
		}
	}
}

func (p *Poller) handle(ctx context.Context, cmd command, c *counters) {
	switch cmd.kind {
	case cmdStatus:
		cmd.statusReply <- p.statusFrom(c, true)
	case cmdPause:
		c.paused = true
		p.log.Info("poller paused")
		cmd.errReply <- nil
	case cmdResume:
		c.paused = false
		p.log.Info("poller resumed")
		cmd.errReply <- nil
	case cmdForceCycle:
		// A forced cycle runs under the caller's context so the caller
		// can cancel the receive it asked for.
		cycleCtx := cmd.ctx
		if cycleCtx == nil {
			cycleCtx = ctx
		}
		cmd.errReply <- p.cycle(cycleCtx, c)
	}
}

// cycle runs one receive/dispatch/delete pass. Never re-entrant: only the
// coordinator calls it.
func (p *Poller) cycle(ctx context.Context, c *counters) error {
	c.state = StateAwaitingBatch
	defer func() { c.state = StateIdle }()

	msgs, err := p.queue.Receive(ctx, queue.ReceiveOptions{
		MaxMessages:       p.cfg.MaxBatchSize,
		WaitTime:          p.cfg.WaitTime,
		VisibilityTimeout: p.cfg.VisibilityTimeout,
	})
	c.lastPoll = time.Now().UTC()
	if err != nil {
		// Non-fatal: counted and retried next interval.
		c.errorsCount++
		metrics.PollReceiveErrors.Inc()
		p.log.ErrorContext(ctx, "queue receive failed", "error", err)
		return fmt.Errorf("queue receive failed: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	c.state = StateDispatching
	start := time.Now()

	results := make(chan taskResult, len(msgs))
	for _, msg := range msgs {
		go func(m queue.Message) {
			_, err := p.proc.ProcessMessage(ctx, m.Body)
			results <- taskResult{msg: m, err: err}
		}(msg)
	}

	deadline := time.NewTimer(p.cfg.JoinTimeout)
	defer deadline.Stop()

	received := 0
join:
	for received < len(msgs) {
		select {
		case r := <-results:
			received++
			if r.err != nil {
				// Left undeleted; the message revisits the queue after the
				// visibility timeout.
				c.errorsCount++
				metrics.MessagesFailed.Inc()
				p.log.ErrorContext(ctx, "message processing failed",
					"message_id", r.msg.ID, "error", r.err)
				continue
			}
			if err := p.queue.Delete(ctx, r.msg.ReceiptHandle); err != nil {
				// Logged and ignored; redelivery is handled by the dedup
				// rules downstream.
				metrics.DeleteFailures.Inc()
				p.log.WarnContext(ctx, "message delete failed",
					"message_id", r.msg.ID, "error", err)
			}
			c.messagesProcessed++
			metrics.MessagesProcessed.Inc()
		case <-deadline.C:
			abandoned := len(msgs) - received
			metrics.TasksAbandoned.Add(float64(abandoned))
			p.log.WarnContext(ctx, "abandoning slow message tasks",
				"abandoned", abandoned, "join_timeout", p.cfg.JoinTimeout)
			break join
		}
	}

	c.processingTime += time.Since(start)
	c.cyclesCompleted++
	metrics.PollCycles.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (p *Poller) statusFrom(c *counters, running bool) Status {
	return Status{
		Running:           running,
		Enabled:           p.cfg.Enabled,
		Paused:            c.paused,
		State:             c.state,
		QueueURL:          p.queue.URL(),
		Interval:          p.cfg.Interval,
		MaxBatchSize:      p.cfg.MaxBatchSize,
		VisibilityTimeout: p.cfg.VisibilityTimeout,
		MessagesProcessed: c.messagesProcessed,
		ErrorsCount:       c.errorsCount,
		CyclesCompleted:   c.cyclesCompleted,
		LastPoll:          c.lastPoll,
		ProcessingTime:    c.processingTime,
		StartedAt:         c.startedAt,
	}
}

func (p *Poller) saveSnapshot(c *counters) {
	p.mu.Lock()
	p.snapshot = p.statusFrom(c, false)
	p.mu.Unlock()
}
