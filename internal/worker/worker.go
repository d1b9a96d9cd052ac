package worker

import (
	"context"
	"fmt"
)

type JobType int

const (
	Run JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Run:
		return "run"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Job is one outbound call waiting for a worker. Key groups jobs for fair
// dispatch; Name labels the job in logs.
type Job struct {
	Type JobType
	Key  string
	Name string

	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			debugLog("[worker-%d] run %s for %s", w.id, job.Name, job.Key)
			job.done <- w.execute(job)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) execute(job Job) (err error) {
	ctx := job.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// the caller may have given up while the job was queued
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.fn(ctx)
}
