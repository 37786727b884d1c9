package provision

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/vcs"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// ResourceKind identifies an external resource created during provisioning.
type ResourceKind string

const (
	ResourceVCSProject ResourceKind = "vcs_project"
	ResourceRepository ResourceKind = "repository"
	ResourceCIProject  ResourceKind = "ci_project"
	ResourceBuildPlan  ResourceKind = "build_plan"
)

// Resource is one ledger entry. ID is the project key, repository URI or plan id.
type Resource struct {
	Kind ResourceKind `json:"kind"`
	ID   string       `json:"id"`
}

// Ledger records the external resources a provisioning run created, in order.
type Ledger struct {
	mu      sync.Mutex
	entries []Resource
}

func (l *Ledger) record(kind ResourceKind, id string) {
	l.mu.Lock()
	l.entries = append(l.entries, Resource{Kind: kind, ID: id})
	l.mu.Unlock()
}

// Entries returns a copy of the recorded resources.
func (l *Ledger) Entries() []Resource {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Resource(nil), l.entries...)
}

// Compensate deletes the recorded resources in reverse creation order. It keeps
// going after a failure and returns the joined errors.
func (l *Ledger) Compensate(ctx context.Context, vcsClient vcs.VersionControlClient, ciClient ci.ContinuousIntegrationClient) error {
	entries := l.Entries()
	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		res := entries[i]
		var err error
		switch res.Kind {
		case ResourceBuildPlan:
			err = ciClient.DeleteBuildPlan(ctx, res.ID)
		case ResourceCIProject:
			err = ciClient.DeleteProject(ctx, res.ID)
		case ResourceRepository:
			err = vcsClient.DeleteRepository(ctx, res.ID)
		case ResourceVCSProject:
			err = vcsClient.DeleteProject(ctx, res.ID)
		default:
			err = fmt.Errorf("unknown resource kind %q", res.Kind)
		}
		if err != nil {
			logger.Warn(ctx, "compensation step failed", zap.String("kind", string(res.Kind)), zap.String("resource", res.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("delete %s %s: %w", res.Kind, res.ID, err))
		}
	}
	return errors.Join(errs...)
}
