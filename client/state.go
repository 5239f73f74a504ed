package client

import (
	"sync"
	"time"
)

// CaptureMode is the request routing mode of a Connection.
type CaptureMode int

const (
	// ModeNormal sends every request to the server immediately.
	ModeNormal CaptureMode = iota
	// ModeCapture records every request as a part of the active batch.
	ModeCapture
)

// String returns the string representation of the mode.
func (m CaptureMode) String() string {
	switch m {
	case ModeNormal:
		return "NORMAL"
	case ModeCapture:
		return "CAPTURE"
	default:
		return "UNKNOWN"
	}
}

// BatchState is the lifecycle state of a Batch.
type BatchState int

const (
	// BatchIdle is a batch that has never captured.
	BatchIdle BatchState = iota
	// BatchCapturing is a batch whose connection is in capture mode.
	BatchCapturing
	// BatchCaptured is a batch that stopped capturing and holds queued parts.
	BatchCaptured
	// BatchProcessed is a batch whose parts carry responses.
	BatchProcessed
)

// String returns the string representation of the batch state.
func (s BatchState) String() string {
	switch s {
	case BatchIdle:
		return "IDLE"
	case BatchCapturing:
		return "CAPTURING"
	case BatchCaptured:
		return "CAPTURED"
	case BatchProcessed:
		return "PROCESSED"
	default:
		return "UNKNOWN"
	}
}

// BatchTransition represents a change in batch state.
//
// Standard Metadata Keys:
//   - batch: string - batch id
//   - parts: int - number of captured parts at the time of the transition
type BatchTransition struct {
	// From is the previous state.
	From BatchState

	// To is the new current state.
	To BatchState

	// Timestamp is when the transition occurred.
	Timestamp time.Time

	// Duration is how long the previous state was held.
	Duration time.Duration

	// Metadata contains additional context about the transition.
	Metadata map[string]interface{}
}

// BatchStateHandler is called when a batch changes state.
type BatchStateHandler func(transition BatchTransition)

// BatchStateManager guards batch state transitions and notifies handlers.
type BatchStateManager struct {
	current        BatchState
	lastTransition time.Time
	handlers       []BatchStateHandler
	mu             sync.RWMutex
}

// NewBatchStateManager creates a state manager in the Idle state.
func NewBatchStateManager() *BatchStateManager {
	return &BatchStateManager{
		current:        BatchIdle,
		lastTransition: time.Now(),
	}
}

// TransitionTo moves to newState, rejecting illegal transitions.
//
// Legal transitions:
//   - IDLE → CAPTURING
//   - CAPTURING → CAPTURED
//   - CAPTURED → CAPTURING (resume capture)
//   - CAPTURED → PROCESSED
//   - PROCESSED → PROCESSED (re-process)
//   - PROCESSED → CAPTURING (capture more parts)
func (sm *BatchStateManager) TransitionTo(operation string, newState BatchState, metadata map[string]interface{}) error {
	sm.mu.Lock()

	if !isLegalBatchTransition(sm.current, newState) {
		from := sm.current
		sm.mu.Unlock()
		return ErrInvalidState(operation, from, newState)
	}

	now := time.Now()
	transition := BatchTransition{
		From:      sm.current,
		To:        newState,
		Timestamp: now,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}
	sm.current = newState
	sm.lastTransition = now

	// Notify handlers without holding the lock
	handlers := make([]BatchStateHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	for _, handler := range handlers {
		handler(transition)
	}
	return nil
}

func isLegalBatchTransition(from, to BatchState) bool {
	switch from {
	case BatchIdle:
		return to == BatchCapturing
	case BatchCapturing:
		return to == BatchCaptured
	case BatchCaptured:
		return to == BatchCapturing || to == BatchProcessed
	case BatchProcessed:
		return to == BatchProcessed || to == BatchCapturing
	default:
		return false
	}
}

// OnStateChange registers a handler to be called on state transitions.
func (sm *BatchStateManager) OnStateChange(handler BatchStateHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handler)
}

// GetState returns the current batch state.
func (sm *BatchStateManager) GetState() BatchState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Since returns how long the current state has been held.
func (sm *BatchStateManager) Since() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.lastTransition)
}
