package services

import (
	"context"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/logging"
)

// Reaper periodically finalizes builds that stopped emitting events
// and releases port reservations nobody claimed back.
type Reaper struct {
	allocator     *PortAllocator
	interval      time.Duration
	manager       *SessionManager
	portMaxAge    time.Duration
	sessionMaxAge time.Duration
	stopCh        chan struct{}
}

// NewReaper creates a reaper with the given sweep interval
func NewReaper(manager *SessionManager, allocator *PortAllocator, interval, sessionMaxAge, portMaxAge time.Duration) *Reaper {
	return &Reaper{
		allocator:     allocator,
		interval:      interval,
		manager:       manager,
		portMaxAge:    portMaxAge,
		sessionMaxAge: sessionMaxAge,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (r *Reaper) Start() {
	go r.sweepLoop()
}

// Stop halts the sweep loop
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) sweepLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Sweep(context.Background())
		}
	}
}

// Sweep runs one pass of both cleanups. Failures are logged, never
// fatal; the next tick retries.
func (r *Reaper) Sweep(ctx context.Context) {
	reaped, err := r.manager.CleanupStuckBuilds(ctx, r.sessionMaxAge)
	if err != nil {
		logging.Logger.Error("stuck build sweep failed", "error", err)
	} else if reaped > 0 {
		logging.Logger.Info("stuck build sweep finished", "reaped", reaped)
	}

	released, err := r.allocator.CleanupAbandoned(ctx, r.portMaxAge)
	if err != nil {
		logging.Logger.Error("abandoned port sweep failed", "error", err)
	} else if released > 0 {
		logging.Logger.Info("abandoned port sweep finished", "released", released)
	}
}
