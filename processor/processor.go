// Package processor drains the queued-task backlog. One cycle fetches
// every queued item, moves each through the status state machine while
// the routed backend generates its result, and reports the cycle
// outcome to the polling scheduler.
package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskloop/taskloop/backend"
	engerrors "github.com/taskloop/taskloop/errors"
	"github.com/taskloop/taskloop/logging"
	"github.com/taskloop/taskloop/polling"
	"github.com/taskloop/taskloop/router"
	"github.com/taskloop/taskloop/source"
	"github.com/taskloop/taskloop/transition"
)

// RequestRouter is the slice of router.Router the processor needs.
type RequestRouter interface {
	RouteRequest(ctx context.Context, req router.Request) (*backend.Response, router.Route, error)
}

var _ RequestRouter = (*router.Router)(nil)

const defaultWorkers = 4

// Config holds processor settings. Source, Transitions and Router are
// required.
type Config struct {
	Source      source.TaskSource
	Transitions *transition.Manager
	Router      RequestRouter
	Logger      *logging.Logger

	// Workers bounds how many tasks are in flight at once. Default 4;
	// set 1 to process strictly one at a time.
	Workers int

	// SystemPrompt is sent with every generation request.
	SystemPrompt string
}

// Processor processes queued tasks through the transition manager and
// the provider router.
type Processor struct {
	src     source.TaskSource
	trans   *transition.Manager
	router  RequestRouter
	log     *logging.Logger
	workers int
	prompt  string

	mu    sync.Mutex
	stats Stats
}

// Stats accumulates processing counters across cycles.
type Stats struct {
	Cycles         int64
	TasksProcessed int64
	TasksFailed    int64
}

// New creates a processor.
func New(cfg Config) (*Processor, error) {
	if cfg.Source == nil {
		return nil, engerrors.Validation("task source is required")
	}
	if cfg.Transitions == nil {
		return nil, engerrors.Validation("transition manager is required")
	}
	if cfg.Router == nil {
		return nil, engerrors.Validation("router is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Processor{
		src:     cfg.Source,
		trans:   cfg.Transitions,
		router:  cfg.Router,
		log:     log.WithComponent("processor"),
		workers: workers,
		prompt:  cfg.SystemPrompt,
	}, nil
}

// ProcessQueued runs one processing cycle. The returned Result carries
// the count of tasks completed and the queue depth observed at fetch
// time. The error is non-nil when the cycle itself failed: the fetch
// errored, the context was cancelled, or at least one task failed.
func (p *Processor) ProcessQueued(ctx context.Context) (polling.Result, error) {
	queued, err := p.src.FetchQueued(ctx)
	if err != nil {
		return polling.Result{}, engerrors.Wrap(err, "could not fetch queued tasks")
	}

	p.mu.Lock()
	p.stats.Cycles++
	p.mu.Unlock()

	result := polling.Result{QueueDepth: len(queued)}
	if len(queued) == 0 {
		return result, nil
	}
	p.log.Info("processing queued tasks", map[string]interface{}{
		"count":   len(queued),
		"workers": p.workers,
	})

	jobs := make(chan source.TaskRef)
	var wg sync.WaitGroup
	var pmu sync.Mutex
	var processed, failed int

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				err := p.processTask(ctx, task)
				pmu.Lock()
				if err == nil {
					processed++
				} else {
					failed++
				}
				pmu.Unlock()
			}
		}()
	}

feed:
	for _, task := range queued {
		select {
		case jobs <- task:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result.ItemsProcessed = processed
	p.mu.Lock()
	p.stats.TasksProcessed += int64(processed)
	p.stats.TasksFailed += int64(failed)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return result, engerrors.Wrap(err, "processing cycle interrupted")
	}
	if failed > 0 {
		return result, engerrors.Internal(
			fmt.Sprintf("%d of %d tasks failed", failed, len(queued)))
	}
	return result, nil
}

// processTask moves one task Queued → InProgress, runs the generation
// request, then lands on Done or Failed. The Failed write skips edge
// validation so error paths can always record the failure.
func (p *Processor) processTask(ctx context.Context, task source.TaskRef) error {
	tr := p.trans.Transition(ctx, task.ID, source.StatusQueued, source.StatusInProgress, true)
	if tr.Result != transition.ResultSuccess {
		p.log.Warn("could not claim task", map[string]interface{}{
			"task_id": task.ID,
			"title":   task.Title,
			"error":   errString(tr.Err),
		})
		return tr.Err
	}

	resp, route, err := p.router.RouteRequest(ctx, router.Request{
		Model:        task.Model,
		Content:      task.Content,
		SystemPrompt: p.prompt,
	})
	if err != nil {
		p.markFailed(ctx, task.ID, err)
		return err
	}

	final := p.trans.Transition(ctx, task.ID, source.StatusInProgress, source.StatusDone, true)
	if final.Result != transition.ResultSuccess {
		return final.Err
	}
	p.log.Info("task completed", map[string]interface{}{
		"task_id":       task.ID,
		"title":         task.Title,
		"route":         string(route.Decision),
		"model":         resp.Model,
		"output_tokens": resp.OutputTokens,
	})
	return nil
}

func (p *Processor) markFailed(ctx context.Context, taskID string, cause error) {
	tr := p.trans.Transition(ctx, taskID, source.StatusInProgress, source.StatusFailed, false)
	if tr.Result != transition.ResultSuccess {
		p.log.Error("could not record task failure", map[string]interface{}{
			"task_id": taskID,
			"cause":   errString(cause),
			"error":   errString(tr.Err),
		})
		return
	}
	p.log.Warn("task failed", map[string]interface{}{
		"task_id": taskID,
		"error":   errString(cause),
	})
}

// Statistics returns cumulative counters.
func (p *Processor) Statistics() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
