package service

import (
	"context"
	"sync"
	"time"

	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/model"
	"github.com/Thiri06/Contact-Info-Capture-Agent/internal/domain/types"
)

// jobRegistry keeps async import job state in memory. Finished jobs beyond
// the retention limit are forgotten oldest first.
type jobRegistry struct {
	mu       sync.RWMutex
	jobs     map[string]*types.JobView
	finished []string
	keep     int
	now      func() time.Time
}

func newJobRegistry(keep int, now func() time.Time) *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*types.JobView), keep: keep, now: now}
}

func (r *jobRegistry) add(job *types.ImportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = &types.JobView{
		ID:          job.ID,
		Status:      types.JobQueued,
		SubmittedBy: job.SubmittedBy,
		Rows:        len(job.Rows),
		EnqueuedAt:  job.EnqueuedAt,
	}
}

func (r *jobRegistry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

func (r *jobRegistry) get(id string) (types.JobView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.jobs[id]
	if !ok {
		return types.JobView{}, false
	}
	return *v, true
}

func (r *jobRegistry) counts() map[types.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.JobStatus]int)
	for _, v := range r.jobs {
		out[v.Status]++
	}
	return out
}

// MarkRunning implements worker.Recorder.
func (r *jobRegistry) MarkRunning(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.jobs[id]; ok {
		at := r.now().UTC()
		v.Status = types.JobRunning
		v.StartedAt = &at
	}
}

// MarkDone implements worker.Recorder.
func (r *jobRegistry) MarkDone(_ context.Context, id string, res model.BatchImportResult) { //nolint:gocritic // result stored by value
	r.finish(id, func(v *types.JobView) {
		v.Status = types.JobDone
		v.Result = &res
	})
}

// MarkFailed implements worker.Recorder.
func (r *jobRegistry) MarkFailed(_ context.Context, id string, err error) {
	r.finish(id, func(v *types.JobView) {
		v.Status = types.JobFailed
		v.Error = err.Error()
	})
}

func (r *jobRegistry) finish(id string, fn func(v *types.JobView)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.jobs[id]
	if !ok {
		return
	}
	at := r.now().UTC()
	fn(v)
	v.FinishedAt = &at

	r.finished = append(r.finished, id)
	for len(r.finished) > r.keep {
		delete(r.jobs, r.finished[0])
		r.finished = r.finished[1:]
	}
}
