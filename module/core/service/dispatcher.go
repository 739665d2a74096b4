package service

import (
	"context"
	"errors"
	"sync"

	"github.com/nandanugg/fleet-tracker/internal/logging"
	"github.com/nandanugg/fleet-tracker/module/core/domain"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

type ReportProcessor interface {
	ProcessByCode(ctx context.Context, code string, r domain.PositionReport) ([]domain.Event, error)
}

type DispatchResult struct {
	Events []domain.Event
	Err    error
}

type dispatchJob struct {
	ctx    context.Context
	report domain.PositionReport
	result chan DispatchResult
}

// Dispatcher applies reports in reception order per vehicle code while
// different vehicles proceed in parallel. Each busy code owns one lane drained
// by its own goroutine; a lane is dropped as soon as it runs empty.
type Dispatcher struct {
	proc ReportProcessor
	log  logging.Logger

	mu     sync.Mutex
	lanes  map[string][]dispatchJob
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(proc ReportProcessor, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{
		proc:  proc,
		log:   log,
		lanes: make(map[string][]dispatchJob),
	}
}

// Submit enqueues r behind every earlier report for the same code. The
// returned channel receives exactly one result.
func (d *Dispatcher) Submit(ctx context.Context, code string, r domain.PositionReport) (<-chan DispatchResult, error) {
	job := dispatchJob{ctx: ctx, report: r, result: make(chan DispatchResult, 1)}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDispatcherClosed
	}
	queue, busy := d.lanes[code]
	d.lanes[code] = append(queue, job)
	if !busy {
		d.wg.Add(1)
		go d.drain(code)
	}
	return job.result, nil
}

// Process submits r and waits for its result.
func (d *Dispatcher) Process(ctx context.Context, code string, r domain.PositionReport) ([]domain.Event, error) {
	ch, err := d.Submit(ctx, code, r)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		return res.Events, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) drain(code string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.lanes[code]
		if len(queue) == 0 {
			delete(d.lanes, code)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		queue[0] = dispatchJob{}
		d.lanes[code] = queue[1:]
		d.mu.Unlock()

		events, err := d.proc.ProcessByCode(job.ctx, code, job.report)
		if err != nil {
			d.log.Warn(job.ctx, "position report rejected",
				logging.String("vehicle_code", code),
				logging.Err(err),
			)
		}
		job.result <- DispatchResult{Events: events, Err: err}
	}
}

// Close stops accepting reports and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
