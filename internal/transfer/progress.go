package transfer

import (
	"sync"
	"time"
)

// State is the lifecycle position of a one-shot transfer.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateConnected State = "connected"
	StateSending   State = "sending"
	StateClosed    State = "closed"
)

// Outcomes recorded when a transfer reaches StateClosed.
const (
	OutcomeServed    = "served"
	OutcomeExpired   = "expired"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// ProgressTracker tracks the progress of one-shot transfers by share code
type ProgressTracker struct {
	transfers map[int]*TransferProgress
	mu        sync.RWMutex
}

// TransferProgress is a point-in-time view of one transfer.
type TransferProgress struct {
	Code           int
	FileName       string
	State          State
	Outcome        string
	BytesSent      int64
	StartTime      time.Time
	LastUpdateTime time.Time
	Speed          float64 // bytes per second
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		transfers: make(map[int]*TransferProgress),
	}
}

// StartTracking begins tracking code, replacing any record left by an earlier
// offer on the same code.
func (pt *ProgressTracker) StartTracking(code int, fileName string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	now := time.Now()
	pt.transfers[code] = &TransferProgress{
		Code:           code,
		FileName:       fileName,
		State:          StateIdle,
		StartTime:      now,
		LastUpdateTime: now,
	}
}

func (pt *ProgressTracker) SetState(code int, state State) {
	pt.update(code, func(p *TransferProgress) {
		p.State = state
	})
}

// AddBytes records n more payload bytes written to the peer.
func (pt *ProgressTracker) AddBytes(code int, n int) {
	pt.update(code, func(p *TransferProgress) {
		p.BytesSent += int64(n)
		if elapsed := time.Since(p.StartTime).Seconds(); elapsed > 0 {
			p.Speed = float64(p.BytesSent) / elapsed
		}
	})
}

// Finish closes the transfer with its outcome. The record stays queryable
// until a new offer reuses the code.
func (pt *ProgressTracker) Finish(code int, outcome string) {
	pt.update(code, func(p *TransferProgress) {
		p.State = StateClosed
		p.Outcome = outcome
	})
}

func (pt *ProgressTracker) update(code int, fn func(*TransferProgress)) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	progress, exists := pt.transfers[code]
	if !exists {
		return
	}
	fn(progress)
	progress.LastUpdateTime = time.Now()
}

// GetProgress returns a copy of the progress for code.
func (pt *ProgressTracker) GetProgress(code int) (TransferProgress, bool) {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	progress, exists := pt.transfers[code]
	if !exists {
		return TransferProgress{}, false
	}
	return *progress, true
}
