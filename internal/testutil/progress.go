package testutil

import (
	"slices"
	"sync"
)

// ProgressUpdate is one call to Update.
type ProgressUpdate struct {
	Uploaded int64
	Accepted int64
}

// ProgressRecorder implements s3types.ProgressTracker by recording every call.
type ProgressRecorder struct {
	mu        sync.Mutex
	updates   []ProgressUpdate
	completed int
	err       error
}

func (p *ProgressRecorder) Update(uploaded, accepted int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, ProgressUpdate{Uploaded: uploaded, Accepted: accepted})
}

func (p *ProgressRecorder) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

func (p *ProgressRecorder) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Updates returns the recorded updates in order.
func (p *ProgressRecorder) Updates() []ProgressUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.updates)
}

// Last returns the most recent update, or the zero value.
func (p *ProgressRecorder) Last() ProgressUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return ProgressUpdate{}
	}
	return p.updates[len(p.updates)-1]
}

// Completed returns how many times Complete was called.
func (p *ProgressRecorder) Completed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed
}

// Err returns the error passed to Error.
func (p *ProgressRecorder) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
