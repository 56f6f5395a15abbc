package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Job is a snapshot of one ingestion job's progress. Progress is a
// percentage in [0, 100].
type Job struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	State      State     `json:"state"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Registry tracks ingestion jobs in memory. Updates after a terminal
// state (completed or error) are ignored.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	latest string
}

func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

func (r *Registry) Start(documentID string) Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	j := &Job{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		State:      StateProcessing,
		Message:    "processing started",
		StartedAt:  now,
		UpdatedAt:  now,
	}
	r.jobs[j.ID] = j
	r.latest = j.ID
	return *j
}

func (r *Registry) Update(id string, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.State != StateProcessing {
		return
	}
	j.Progress = clamp(progress)
	j.Message = message
	j.UpdatedAt = time.Now().UTC()
}

func (r *Registry) Complete(id, message string) {
	r.finish(id, StateCompleted, 100, message)
}

func (r *Registry) Fail(id, message string) {
	r.mu.RLock()
	progress := 0
	if j, ok := r.jobs[id]; ok {
		progress = j.Progress
	}
	r.mu.RUnlock()
	r.finish(id, StateError, progress, message)
}

func (r *Registry) finish(id string, state State, progress int, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok || j.State != StateProcessing {
		return
	}
	j.State = state
	j.Progress = clamp(progress)
	j.Message = message
	j.UpdatedAt = time.Now().UTC()
}

// Get returns a snapshot of the job with the given id.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Latest returns a snapshot of the most recently started job.
func (r *Registry) Latest() (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[r.latest]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func clamp(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
