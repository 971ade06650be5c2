package manager

import (
	"context"
	"time"

	"inferd/internal/config"
	"inferd/internal/gpu"
)

// State is the lifecycle state of a backend instance.
type State string

const (
	StateStopped           State = "stopped"
	StateStarting          State = "starting"
	StateReady             State = "ready"
	StateDraining          State = "draining"
	StateFailed            State = "failed"
	StatePermanentlyFailed State = "permanently_failed"
)

// Instance is one managed backend process. All fields are guarded by the
// manager's table lock; the process handle is owned exclusively by the
// manager and released on every exit path.
type Instance struct {
	Model     string
	Spec      config.ModelSpec
	GPU       string
	State     State
	CreatedAt time.Time
	LastUsed  time.Time
	Inflight  int
	Port      int
	PID       int
	// Restarts counts automatic restart attempts since the last clean start.
	Restarts int

	proc       Process
	attempt    *startAttempt
	probeFails int
	// suspect is set when the proxy observed a backend error mid-request;
	// the health loop probes promptly instead of waiting for the next tick.
	suspect bool
}

func (i *Instance) endpoint() string {
	return "http://127.0.0.1:" + itoa(i.Port)
}

// idleFor reports how long the instance has been unused.
func (i *Instance) idleFor(now time.Time) time.Duration {
	return now.Sub(i.LastUsed)
}

// startAttempt is the single shared start for a model. Every caller that
// acquires the model while it is Starting joins this attempt; the launch
// is canceled only when the last waiter gives up.
type startAttempt struct {
	done     chan struct{}
	endpoint string
	err      error
	waiters  int
	cancel   context.CancelFunc
}

// pendingRequest records one caller waiting for a model to become ready.
type pendingRequest struct {
	ID         string
	Model      string
	EnqueuedAt time.Time
}

// SnapshotSource provides the latest GPU readings. gpu.Monitor implements
// it; tests inject a fixed snapshot.
type SnapshotSource interface {
	Snapshot() gpu.Snapshot
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
