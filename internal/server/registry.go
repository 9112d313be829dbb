package server

import (
	"context"
	"sync"
	"time"

	"github.com/mgpai22/vaani/internal/pipeline"
)

// run states reported by the API
const (
	stateRunning = "running"
	stateDone    = "done"
)

// entry tracks one submitted run. report is the latest snapshot and is
// never mutated after it is stored.
type entry struct {
	report   *pipeline.Report
	workDir  string
	done     bool
	deleted  bool
	err      string
	finished time.Time
	cancel   context.CancelFunc
}

type registry struct {
	mu   sync.Mutex
	runs map[string]*entry
}

func newRegistry() *registry {
	return &registry{runs: make(map[string]*entry)}
}

func (r *registry) add(id string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[id] = e
}

// snapshot returns the latest report and state for id.
func (r *registry) snapshot(id string) (*pipeline.Report, string, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok {
		return nil, "", "", false
	}
	state := stateRunning
	if e.done {
		state = stateDone
	}
	return e.report, state, e.err, true
}

// update stores a progress snapshot unless the run was removed.
func (r *registry) update(id string, rep *pipeline.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.runs[id]; ok && !e.deleted {
		e.report = rep
	}
}

// finish marks a run done. It returns false when the run was deleted while
// it was executing, in which case the caller owns cleanup.
func (r *registry) finish(id string, rep *pipeline.Report, err error, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok || e.deleted {
		return false
	}
	e.report = rep
	e.done = true
	e.finished = now
	if err != nil {
		e.err = err.Error()
	}
	return true
}

// remove drops id from the registry. Finished runs are returned for
// cleanup; running ones are cancelled and clean up after themselves.
func (r *registry) remove(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.runs[id]
	if !ok {
		return nil, false
	}
	delete(r.runs, id)
	e.deleted = true
	if !e.done {
		e.cancel()
		return nil, true
	}
	return e, true
}

// expired removes finished runs older than cutoff.
func (r *registry) expired(cutoff time.Time) []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entry
	for id, e := range r.runs {
		if e.done && e.finished.Before(cutoff) {
			delete(r.runs, id)
			e.deleted = true
			out = append(out, e)
		}
	}
	return out
}

// drain removes every finished run and cancels the rest.
func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entry
	for id, e := range r.runs {
		delete(r.runs, id)
		e.deleted = true
		if e.done {
			out = append(out, e)
		} else {
			e.cancel()
		}
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
