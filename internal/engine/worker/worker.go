// Package worker owns the execution lifecycle: dequeue, mark processing,
// run (workflow or single node), mark terminal, retry on failure.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowengine/engine/internal/engine/callback"
	"github.com/flowengine/engine/internal/engine/dag"
	"github.com/flowengine/engine/internal/engine/domain"
	"github.com/flowengine/engine/internal/engine/event"
	"github.com/flowengine/engine/internal/engine/metrics"
	"github.com/flowengine/engine/internal/engine/queue"
	"github.com/flowengine/engine/internal/engine/statusstore"
	"github.com/flowengine/engine/pkg/logger"
)

const (
	dequeueTimeout   = time.Second
	loopErrorBackoff = 5 * time.Second
)

// MaxRetries bounds the number of requeue attempts per job; exceeding it
// produces a terminal failed status.
const MaxRetries = 3

type Loop struct {
	id         int
	queue      *queue.Client
	statusSt   *statusstore.Store
	reporter   *callback.Reporter
	scheduler  *dag.Scheduler
	publisher  *event.Publisher
	log        logger.Logger
	maxRetries int
}

func NewLoop(id int, q *queue.Client, st *statusstore.Store, reporter *callback.Reporter, scheduler *dag.Scheduler, publisher *event.Publisher, maxRetries int, log logger.Logger) *Loop {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Loop{
		id:         id,
		queue:      q,
		statusSt:   st,
		reporter:   reporter,
		scheduler:  scheduler,
		publisher:  publisher,
		log:        log.With("loop_id", id),
		maxRetries: maxRetries,
	}
}

// Run blocks, processing jobs until ctx is cancelled. Each iteration is
// defensive: an unexpected error dequeuing sleeps and resumes rather
// than propagating, since a single broken loop should not bring down
// the others.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := l.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			l.log.Error("worker: dequeue error, backing off", "error", err)
			sleep(ctx, loopErrorBackoff)
			continue
		}
		if job == nil {
			continue
		}

		l.process(ctx, *job)
	}
}

func (l *Loop) process(ctx context.Context, job domain.Job) {
	log := l.log.With("execution_id", job.ExecutionID)

	l.statusSt.Put(ctx, job.ExecutionID, domain.StatusProcessing, nil)
	l.reporter.Report(ctx, job.ExecutionID, domain.StatusProcessing, nil, nil)
	l.publisher.Publish(ctx, job.ExecutionID, "execution.processing")

	result, err := l.execute(ctx, job)
	if err == nil {
		l.statusSt.Put(ctx, job.ExecutionID, domain.StatusCompleted, result)
		l.reporter.Report(ctx, job.ExecutionID, domain.StatusCompleted, result, nil)
		l.publisher.Publish(ctx, job.ExecutionID, "execution.completed")
		metrics.JobsProcessedTotal.WithLabelValues(string(domain.StatusCompleted)).Inc()
		log.Info("worker: execution completed")
		return
	}

	if job.RetryCount < l.maxRetries {
		log.Warn("worker: execution failed, retrying", "attempt", job.RetryCount+1, "error", err)
		if reqErr := l.queue.Requeue(ctx, job); reqErr != nil {
			log.Error("worker: requeue failed", "error", reqErr)
		}
		metrics.RetriesTotal.Inc()
		return
	}

	errPayload := map[string]interface{}{"error": err.Error()}
	l.statusSt.Put(ctx, job.ExecutionID, domain.StatusFailed, errPayload)
	l.reporter.Report(ctx, job.ExecutionID, domain.StatusFailed, nil, errPayload)
	l.publisher.Publish(ctx, job.ExecutionID, "execution.failed")
	metrics.JobsProcessedTotal.WithLabelValues(string(domain.StatusFailed)).Inc()
	log.Error("worker: execution permanently failed", "error", err)
}

func (l *Loop) execute(ctx context.Context, job domain.Job) (interface{}, error) {
	switch job.ExecutionType {
	case domain.ExecutionTypeWorkflow:
		return l.scheduler.Run(ctx, job)
	case domain.ExecutionTypeNode:
		return l.scheduler.RunSingleNode(ctx, job)
	default:
		return nil, fmt.Errorf("worker: unknown execution type %q", job.ExecutionType)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Pool runs N loops concurrently against the same queue and shuts them
// down cooperatively.
type Pool struct {
	loops []*Loop
	wg    sync.WaitGroup
}

func NewPool(count int, q *queue.Client, st *statusstore.Store, reporter *callback.Reporter, scheduler *dag.Scheduler, publisher *event.Publisher, maxRetries int, log logger.Logger) *Pool {
	if count <= 0 {
		count = 4
	}
	p := &Pool{}
	for i := 0; i < count; i++ {
		p.loops = append(p.loops, NewLoop(i, q, st, reporter, scheduler, publisher, maxRetries, log))
	}
	return p
}

func (p *Pool) Start(ctx context.Context) {
	for _, l := range p.loops {
		l := l
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			l.Run(ctx)
		}()
	}
}

// Wait blocks until every loop has returned (i.e. ctx was cancelled).
func (p *Pool) Wait() {
	p.wg.Wait()
}
