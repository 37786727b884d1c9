// Package ci defines the continuous integration collaborator and a plan
// registry backed by Redis that hands build requests to the message queue.
package ci

import (
	"context"
	"errors"
	"time"
)

var (
	ErrProjectExists          = errors.New("ci project already exists")
	ErrProjectNotFound        = errors.New("ci project not found")
	ErrPlanExists             = errors.New("build plan already exists")
	ErrPlanNotFound           = errors.New("build plan not found")
	ErrPlanDisabled           = errors.New("build plan is disabled")
	ErrPlanRepositoryNotFound = errors.New("build plan repository not found")
)

// Repository roles inside a build plan.
const (
	RoleAssignment = "assignment"
	RoleTests      = "tests"
	RoleSolution   = "solution"
)

type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionEdit  Permission = "EDIT"
	PermissionBuild Permission = "BUILD"
	PermissionAdmin Permission = "ADMIN"
)

// PermissionGrant gives a user group a set of permissions on a CI project.
type PermissionGrant struct {
	Group       string       `json:"group"`
	Permissions []Permission `json:"permissions"`
}

// PlanRepository is one repository checked out by a plan. An empty TriggeredBy
// keeps the default trigger: a push to the repository itself starts a build.
type PlanRepository struct {
	Role              string   `json:"role"`
	URI               string   `json:"uri"`
	Branch            string   `json:"branch"`
	CheckoutDirectory string   `json:"checkout_directory"`
	TriggeredBy       []string `json:"triggered_by,omitempty"`
}

// BuildPlan is a CI build definition.
type BuildPlan struct {
	ID           string           `json:"id"`
	ProjectKey   string           `json:"project_key"`
	Name         string           `json:"name"`
	Language     string           `json:"language"`
	Enabled      bool             `json:"enabled"`
	Repositories []PlanRepository `json:"repositories"`
	CopiedFrom   string           `json:"copied_from,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Repository returns the plan repository with the given role.
func (p *BuildPlan) Repository(role string) (*PlanRepository, bool) {
	for i := range p.Repositories {
		if p.Repositories[i].Role == role {
			return &p.Repositories[i], true
		}
	}
	return nil, false
}

// ContinuousIntegrationClient manages CI projects and build plans.
type ContinuousIntegrationClient interface {
	CreateProject(ctx context.Context, projectKey, projectName string) error
	DeleteProject(ctx context.Context, projectKey string) error

	CreateBuildPlan(ctx context.Context, plan BuildPlan) error
	// CopyBuildPlan copies sourcePlanID into targetProject and returns the new plan id.
	// The copy starts disabled.
	CopyBuildPlan(ctx context.Context, sourcePlanID, targetProject, targetPlanID, targetName string) (string, error)
	// UpdatePlanRepository points the repository currently at oldURI (or, failing
	// that, the one with role) to newURI and renames it to role. triggeredBy
	// replaces the trigger list.
	UpdatePlanRepository(ctx context.Context, planID, role, newURI, oldURI, branch string, triggeredBy []string) error
	GivePlanPermissions(ctx context.Context, projectKey string, grants []PermissionGrant) error
	EnablePlan(ctx context.Context, planID string) error
	TriggerBuild(ctx context.Context, planID string) error
	DeleteBuildPlan(ctx context.Context, planID string) error
}
