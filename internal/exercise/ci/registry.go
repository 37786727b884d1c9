package ci

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"exforge/internal/common/cache"
	"exforge/internal/common/mq"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultKeyPrefix    = "exforge:ci"
	defaultTriggerTopic = "exercise.build.trigger"
)

// RegistryConfig configures RegistryClient.
type RegistryConfig struct {
	KeyPrefix    string `yaml:"keyPrefix"`
	TriggerTopic string `yaml:"triggerTopic"`
}

// BuildTriggerEvent asks the build workers to run a plan.
type BuildTriggerEvent struct {
	PlanID       string           `json:"plan_id"`
	ProjectKey   string           `json:"project_key"`
	Repositories []PlanRepository `json:"repositories"`
	RequestedAt  time.Time        `json:"requested_at"`
}

type project struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Permissions []PermissionGrant `json:"permissions,omitempty"`
}

// RegistryClient stores CI projects and plans in Redis hashes and publishes
// BuildTriggerEvent messages for builds.
type RegistryClient struct {
	cache        cache.Cache
	queue        mq.Producer
	projectsKey  string
	plansKey     string
	triggerTopic string
}

var _ ContinuousIntegrationClient = (*RegistryClient)(nil)

func NewRegistryClient(c cache.Cache, queue mq.Producer, cfg RegistryConfig) *RegistryClient {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	topic := cfg.TriggerTopic
	if topic == "" {
		topic = defaultTriggerTopic
	}
	return &RegistryClient{
		cache:        c,
		queue:        queue,
		projectsKey:  prefix + ":projects",
		plansKey:     prefix + ":plans",
		triggerTopic: topic,
	}
}

func (r *RegistryClient) CreateProject(ctx context.Context, projectKey, projectName string) error {
	if _, err := r.project(ctx, projectKey); err == nil {
		return fmt.Errorf("%w: %s", ErrProjectExists, projectKey)
	} else if !errors.Is(err, ErrProjectNotFound) {
		return err
	}
	return r.saveProject(ctx, &project{Key: projectKey, Name: projectName})
}

func (r *RegistryClient) DeleteProject(ctx context.Context, projectKey string) error {
	if _, err := r.project(ctx, projectKey); err != nil {
		return err
	}
	plans, err := r.plans(ctx)
	if err != nil {
		return err
	}
	var ids []string
	for _, plan := range plans {
		if plan.ProjectKey == projectKey {
			ids = append(ids, plan.ID)
		}
	}
	if err := r.cache.HDel(ctx, r.plansKey, ids...); err != nil {
		return err
	}
	return r.cache.HDel(ctx, r.projectsKey, projectKey)
}

func (r *RegistryClient) CreateBuildPlan(ctx context.Context, plan BuildPlan) error {
	if _, err := r.project(ctx, plan.ProjectKey); err != nil {
		return err
	}
	if _, err := r.plan(ctx, plan.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrPlanExists, plan.ID)
	} else if !errors.Is(err, ErrPlanNotFound) {
		return err
	}
	return r.savePlan(ctx, &plan)
}

func (r *RegistryClient) CopyBuildPlan(ctx context.Context, sourcePlanID, targetProject, targetPlanID, targetName string) (string, error) {
	source, err := r.plan(ctx, sourcePlanID)
	if err != nil {
		return "", err
	}
	copied := *source
	copied.ID = targetPlanID
	copied.ProjectKey = targetProject
	copied.Name = targetName
	copied.Enabled = false
	copied.CopiedFrom = sourcePlanID
	copied.Repositories = append([]PlanRepository(nil), source.Repositories...)
	for i := range copied.Repositories {
		copied.Repositories[i].TriggeredBy = append([]string(nil), source.Repositories[i].TriggeredBy...)
	}
	if err := r.CreateBuildPlan(ctx, copied); err != nil {
		return "", err
	}
	return targetPlanID, nil
}

func (r *RegistryClient) UpdatePlanRepository(ctx context.Context, planID, role, newURI, oldURI, branch string, triggeredBy []string) error {
	plan, err := r.plan(ctx, planID)
	if err != nil {
		return err
	}
	var repo *PlanRepository
	ok := false
	if oldURI != "" {
		for i := range plan.Repositories {
			if plan.Repositories[i].URI == oldURI {
				repo, ok = &plan.Repositories[i], true
				break
			}
		}
	}
	if !ok {
		repo, ok = plan.Repository(role)
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrPlanRepositoryNotFound, planID, role)
	}
	repo.Role = role
	repo.URI = newURI
	if branch != "" {
		repo.Branch = branch
	}
	repo.TriggeredBy = append([]string(nil), triggeredBy...)
	return r.savePlan(ctx, plan)
}

func (r *RegistryClient) GivePlanPermissions(ctx context.Context, projectKey string, grants []PermissionGrant) error {
	p, err := r.project(ctx, projectKey)
	if err != nil {
		return err
	}
	byGroup := make(map[string]int, len(p.Permissions))
	for i, g := range p.Permissions {
		byGroup[g.Group] = i
	}
	for _, grant := range grants {
		if strings.TrimSpace(grant.Group) == "" {
			continue
		}
		if i, ok := byGroup[grant.Group]; ok {
			p.Permissions[i] = grant
			continue
		}
		byGroup[grant.Group] = len(p.Permissions)
		p.Permissions = append(p.Permissions, grant)
	}
	return r.saveProject(ctx, p)
}

// Permissions returns the grants of a project.
func (r *RegistryClient) Permissions(ctx context.Context, projectKey string) ([]PermissionGrant, error) {
	p, err := r.project(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	return p.Permissions, nil
}

func (r *RegistryClient) EnablePlan(ctx context.Context, planID string) error {
	plan, err := r.plan(ctx, planID)
	if err != nil {
		return err
	}
	plan.Enabled = true
	return r.savePlan(ctx, plan)
}

func (r *RegistryClient) TriggerBuild(ctx context.Context, planID string) error {
	plan, err := r.plan(ctx, planID)
	if err != nil {
		return err
	}
	if !plan.Enabled {
		return fmt.Errorf("%w: %s", ErrPlanDisabled, planID)
	}
	event := BuildTriggerEvent{
		PlanID:       plan.ID,
		ProjectKey:   plan.ProjectKey,
		Repositories: plan.Repositories,
		RequestedAt:  time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal build trigger failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = fmt.Sprintf("build-%s-%d", plan.ID, time.Now().UnixNano())
	message.Key = plan.ID
	message.SetHeader("plan_id", plan.ID)
	if err := r.queue.Publish(ctx, r.triggerTopic, message); err != nil {
		return fmt.Errorf("publish build trigger failed: %w", err)
	}
	logger.Debug(ctx, "build triggered", zap.String("plan_id", plan.ID))
	return nil
}

func (r *RegistryClient) DeleteBuildPlan(ctx context.Context, planID string) error {
	if _, err := r.plan(ctx, planID); err != nil {
		return err
	}
	return r.cache.HDel(ctx, r.plansKey, planID)
}

// GetBuildPlan returns a stored plan.
func (r *RegistryClient) GetBuildPlan(ctx context.Context, planID string) (*BuildPlan, error) {
	return r.plan(ctx, planID)
}

func (r *RegistryClient) project(ctx context.Context, key string) (*project, error) {
	raw, err := r.cache.HGet(ctx, r.projectsKey, key)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, key)
	}
	var p project
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decode ci project %s: %w", key, err)
	}
	return &p, nil
}

func (r *RegistryClient) saveProject(ctx context.Context, p *project) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.cache.HSet(ctx, r.projectsKey, p.Key, string(data))
}

func (r *RegistryClient) plan(ctx context.Context, id string) (*BuildPlan, error) {
	raw, err := r.cache.HGet(ctx, r.plansKey, id)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	var plan BuildPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode build plan %s: %w", id, err)
	}
	return &plan, nil
}

func (r *RegistryClient) plans(ctx context.Context) ([]*BuildPlan, error) {
	all, err := r.cache.HGetAll(ctx, r.plansKey)
	if err != nil {
		return nil, err
	}
	out := make([]*BuildPlan, 0, len(all))
	for id, raw := range all {
		var plan BuildPlan
		if err := json.Unmarshal([]byte(raw), &plan); err != nil {
			logger.Warn(ctx, "skip undecodable build plan", zap.String("plan_id", id), zap.Error(err))
			continue
		}
		out = append(out, &plan)
	}
	return out, nil
}

func (r *RegistryClient) savePlan(ctx context.Context, plan *BuildPlan) error {
	plan.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	return r.cache.HSet(ctx, r.plansKey, plan.ID, string(data))
}
