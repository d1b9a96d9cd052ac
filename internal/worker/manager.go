package worker

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPoolBusy is returned when the queue is full. Callers report it to the
	// user instead of waiting.
	ErrPoolBusy   = errors.New("worker pool busy")
	ErrPoolClosed = errors.New("worker pool closed")
	ErrCanceled   = errors.New("job canceled")
)

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Pool bounds the number of outbound model calls running at once.
type Pool struct {
	dispatcher *Dispatcher
}

func NewPool(cfg DispatcherConfig) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return &Pool{
		dispatcher: NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, cfg.IdleTimeout),
	}
}

// Do runs fn on a worker and waits for it. key groups jobs for fair
// scheduling, name labels the job in debug logs. A full queue fails fast with
// ErrPoolBusy.
func (p *Pool) Do(ctx context.Context, key, name string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("job function required")
	}
	select {
	case <-p.dispatcher.quit:
		return ErrPoolClosed
	default:
	}
	job := Job{
		Type: Run,
		Key:  key,
		Name: name,
		ctx:  ctx,
		fn:   fn,
		done: make(chan error, 1),
	}
	select {
	case p.dispatcher.JobQueue <- job:
	default:
		return ErrPoolBusy
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.dispatcher.stopped:
		select {
		case err := <-job.done:
			return err
		default:
			return ErrPoolClosed
		}
	}
}

// Cancel drops queued jobs for key.
func (p *Pool) Cancel(key string) {
	p.dispatcher.CancelKey(key)
}

// Stats reports running and idle worker counts.
func (p *Pool) Stats() (running, idle int) {
	return p.dispatcher.pool.stats()
}

func (p *Pool) Close() {
	p.dispatcher.Stop()
}
