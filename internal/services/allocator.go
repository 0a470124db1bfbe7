package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codyde/sentryvibe-sub001/internal/domain"
	"github.com/codyde/sentryvibe-sub001/internal/logging"
	"github.com/codyde/sentryvibe-sub001/internal/ports"
)

// ReserveRequest carries everything the allocator needs to classify a
// project and pick its port.
type ReserveRequest struct {
	// DetectedFramework is an optional upstream classification hint.
	// It never overrides a saved classification.
	DetectedFramework string
	PreferredPort     int
	ProjectID         string
	ProjectType       string
	RunCommand        string
	// SkipProbe trusts the durable record instead of binding, for
	// advising a host outside this process's network namespace.
	SkipProbe bool
}

// ReserveResult is the allocator's answer
type ReserveResult struct {
	EnvVar    string
	Framework string
	Port      int
}

// PortAllocator reserves dev-server ports per project, coordinating
// the durable reservation table with live OS bind probing.
type PortAllocator struct {
	prober   ports.PortProber
	registry *PortRangeRegistry
	repo     ports.PortRepository
}

// NewPortAllocator creates a port allocator
func NewPortAllocator(repo ports.PortRepository, prober ports.PortProber, registry *PortRangeRegistry) *PortAllocator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &PortAllocator{prober: prober, registry: registry, repo: repo}
}

// Reserve returns an exclusively-held port for the project, reusing a
// prior valid reservation when still live, otherwise scanning the
// framework's range.
func (a *PortAllocator) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	if req.ProjectID == "" {
		return ReserveResult{}, errors.New("project id is required")
	}

	existing, err := a.repo.AllocationForProject(ctx, req.ProjectID)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("failed to load reservation: %w", err)
	}

	saved := ""
	if existing != nil {
		saved = existing.Framework
	}

	fr, usedSaved := a.registry.Resolve(saved, req.DetectedFramework, req.ProjectType, req.RunCommand)
	if usedSaved && req.DetectedFramework != "" && req.DetectedFramework != fr.Framework {
		// Saved classification is authoritative once set; a divergent
		// hint is reported, never applied.
		logging.Logger.Warn("detected framework diverges from saved classification",
			"project_id", req.ProjectID,
			"saved", fr.Framework,
			"detected", req.DetectedFramework,
		)
	}

	// Try to reuse the prior reservation when it lies in the resolved
	// range and no foreign process occupies it.
	if existing != nil && fr.Contains(existing.Port) {
		if req.SkipProbe || a.prober.Probe(existing.Port) {
			if err := a.repo.Assign(ctx, req.ProjectID, existing.Port, fr.Framework); err == nil {
				logging.Logger.Debug("reusing port reservation",
					"project_id", req.ProjectID,
					"port", existing.Port,
					"framework", fr.Framework,
				)
				return ReserveResult{EnvVar: fr.EnvVar, Framework: fr.Framework, Port: existing.Port}, nil
			} else if !errors.Is(err, domain.ErrPortTaken) {
				return ReserveResult{}, err
			}
		} else {
			logging.Logger.Warn("reserved port occupied by foreign process, rescanning",
				"project_id", req.ProjectID,
				"port", existing.Port,
			)
		}
	}

	port, err := a.scan(ctx, req, fr)
	if err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{EnvVar: fr.EnvVar, Framework: fr.Framework, Port: port}, nil
}

// scan walks the framework range from the preferred port, wrapping
// around once. The first candidate that both binds and persists wins.
func (a *PortAllocator) scan(ctx context.Context, req ReserveRequest, fr FrameworkRange) (int, error) {
	start := fr.PortStart
	if fr.Contains(req.PreferredPort) {
		start = req.PreferredPort
	}

	size := fr.Size()
	for i := 0; i < size; i++ {
		candidate := fr.PortStart + (start-fr.PortStart+i)%size

		if !req.SkipProbe && !a.prober.Probe(candidate) {
			continue
		}

		err := a.repo.Assign(ctx, req.ProjectID, candidate, fr.Framework)
		if errors.Is(err, domain.ErrPortTaken) {
			// Lost the race for this row; keep scanning
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to persist reservation: %w", err)
		}

		logging.Logger.Info("reserved port",
			"project_id", req.ProjectID,
			"port", candidate,
			"framework", fr.Framework,
		)
		return candidate, nil
	}

	return 0, fmt.Errorf("%w: %s (%d-%d)", domain.ErrNoFreePorts, fr.Framework, fr.PortStart, fr.PortEnd)
}

// Release clears the project's reservation without deleting the row
func (a *PortAllocator) Release(ctx context.Context, projectID string) error {
	if err := a.repo.Release(ctx, projectID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	logging.Logger.Debug("released port reservation", "project_id", projectID)
	return nil
}

// Reconcile moves ownership to the port the dev server actually bound
// when it differs from the reservation. A foreign-owned observed port
// is surfaced as a mismatch for the caller to correct.
func (a *PortAllocator) Reconcile(ctx context.Context, projectID string, observedPort int) error {
	existing, err := a.repo.AllocationForProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to load reservation: %w", err)
	}
	if existing != nil && existing.Port == observedPort {
		return nil
	}

	framework := ""
	if existing != nil {
		framework = existing.Framework
	}
	if fr, ok := a.registry.RangeFor(observedPort); ok && framework == "" {
		framework = fr.Framework
	}

	err = a.repo.Assign(ctx, projectID, observedPort, framework)
	if errors.Is(err, domain.ErrPortTaken) {
		return fmt.Errorf("%w: port %d", domain.ErrPortMismatch, observedPort)
	}
	if err != nil {
		return fmt.Errorf("failed to move reservation: %w", err)
	}

	logging.Logger.Info("reconciled port reservation",
		"project_id", projectID,
		"port", observedPort,
	)
	return nil
}

// CleanupAbandoned releases allocations untouched for longer than
// maxAge whose projects have no live build. Returns the number
// released.
func (a *PortAllocator) CleanupAbandoned(ctx context.Context, maxAge time.Duration) (int, error) {
	released, err := a.repo.ReleaseOlderThan(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to sweep abandoned ports: %w", err)
	}
	if released > 0 {
		logging.Logger.Info("released abandoned port reservations", "count", released)
	}
	return released, nil
}
