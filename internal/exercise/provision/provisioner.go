// Package provision creates and mirrors the repositories and build plans of a
// programming exercise on the VCS and CI servers.
package provision

import (
	"context"
	"fmt"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/model"
	"exforge/internal/exercise/vcs"
	apperrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultBranchName   = "main"
	defaultSetupMessage = "Set up exercise"
	defaultAdaptMessage = "Adapt template to the imported exercise"
)

// DefaultExclusions are never touched by placeholder replacement.
var DefaultExclusions = []string{"gradle-wrapper.jar"}

// Step names reported to the Observer.
const (
	StepVCSProject   = "vcs_project"
	StepRepositories = "repositories"
	StepArchive      = "archive"
	StepWebhooks     = "webhooks"
	StepCIProject    = "ci_project"
	StepBuildPlans   = "build_plans"
	StepPermissions  = "permissions"
	StepEnablePlans  = "enable_plans"
	StepPlaceholders = "placeholders"
	StepBuildTrigger = "build_trigger"
)

// Observer is told about failed provisioning steps, fatal or not.
type Observer interface {
	StepFailed(step string)
}

// ArchiveExtractor seeds repository checkouts from an uploaded archive.
type ArchiveExtractor interface {
	Extract(ctx context.Context, exerciseID int64, dirs map[model.RepositoryType]string) error
}

// Options configures a Provisioner. Zero values fall back to defaults.
type Options struct {
	DefaultBranch string
	SetupMessage  string
	AdaptMessage  string
	// Exclusions are file or directory patterns skipped by placeholder
	// replacement. Nil means DefaultExclusions.
	Exclusions []string
	Archive    ArchiveExtractor
	Observer   Observer
}

// ImportOptions tunes ImportFromTemplate.
type ImportOptions struct {
	// RecreateBuildPlans builds fresh plans instead of copying the source plans.
	RecreateBuildPlans bool
}

// Result describes a provisioning run. The repository and plan handles are
// also written into the exercise.
type Result struct {
	Ledger          *Ledger
	BuildsTriggered []string
	// Unadapted lists repositories whose placeholder adaptation failed and that
	// got an empty commit instead.
	Unadapted []model.RepositoryType
}

// Provisioner drives the VCS and CI collaborators.
type Provisioner struct {
	vcs  vcs.VersionControlClient
	ci   ci.ContinuousIntegrationClient
	git  vcs.GitWorkingCopy
	opts Options
}

func NewProvisioner(vcsClient vcs.VersionControlClient, ciClient ci.ContinuousIntegrationClient, git vcs.GitWorkingCopy, opts Options) *Provisioner {
	if opts.DefaultBranch == "" {
		opts.DefaultBranch = defaultBranchName
	}
	if opts.SetupMessage == "" {
		opts.SetupMessage = defaultSetupMessage
	}
	if opts.AdaptMessage == "" {
		opts.AdaptMessage = defaultAdaptMessage
	}
	if opts.Exclusions == nil {
		opts.Exclusions = DefaultExclusions
	}
	return &Provisioner{vcs: vcsClient, ci: ciClient, git: git, opts: opts}
}

// Provision creates the repositories and build plans of a new exercise.
func (p *Provisioner) Provision(ctx context.Context, exercise *model.Exercise) (*Result, error) {
	if exercise == nil || exercise.ProjectKey == "" {
		return nil, apperrors.New(apperrors.InvalidParams).WithMessage("exercise with project key is required")
	}
	ctx = logger.WithExercise(ctx, exercise.ID)
	result := &Result{Ledger: &Ledger{}}
	ensureParticipations(exercise)

	if err := p.createVCSProject(ctx, exercise, result.Ledger); err != nil {
		return result, err
	}
	for _, repoType := range model.BaseRepositoryTypes {
		uri, err := p.vcs.CreateRepository(ctx, exercise.ProjectKey, exercise.RepositoryName(repoType))
		if err != nil {
			return result, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "create %s repository", repoType)
		}
		result.Ledger.record(ResourceRepository, uri)
		setRepositoryURI(exercise, repoType, uri)
		if err := p.emptyCommit(ctx, uri, p.opts.DefaultBranch, p.opts.SetupMessage); err != nil {
			return result, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "initial commit of %s repository", repoType)
		}
	}
	for _, aux := range exercise.AuxiliaryRepositories {
		uri, err := p.vcs.CreateRepository(ctx, exercise.ProjectKey, exercise.AuxiliaryRepositoryName(aux))
		if err != nil {
			return result, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "create auxiliary repository %s", aux.Name)
		}
		result.Ledger.record(ResourceRepository, uri)
		aux.RepositoryURI = uri
		if err := p.emptyCommit(ctx, uri, p.opts.DefaultBranch, p.opts.SetupMessage); err != nil {
			return result, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "initial commit of auxiliary repository %s", aux.Name)
		}
	}
	if exercise.ImportedFromArchive && p.opts.Archive != nil {
		if err := p.seedFromArchive(ctx, exercise); err != nil {
			return result, p.fatal(StepArchive, apperrors.ArchiveImportFailed, err, "seed repositories from archive")
		}
	}

	if err := p.createCIProject(ctx, exercise, result.Ledger); err != nil {
		return result, err
	}
	if err := p.createBuildPlans(ctx, exercise, result.Ledger); err != nil {
		return result, err
	}
	if err := p.givePermissions(ctx, exercise); err != nil {
		return result, err
	}
	if err := p.enablePlans(ctx, exercise); err != nil {
		return result, err
	}
	if !exercise.ImportedFromArchive {
		p.triggerBuilds(ctx, exercise, result)
	}
	logger.Info(ctx, "exercise provisioned", zap.String("project_key", exercise.ProjectKey), zap.Int("resources", len(result.Ledger.Entries())))
	return result, nil
}

func (p *Provisioner) createVCSProject(ctx context.Context, exercise *model.Exercise, ledger *Ledger) error {
	if err := p.vcs.CreateProject(ctx, exercise.ProjectKey, ProjectName(exercise)); err != nil {
		return p.fatal(StepVCSProject, apperrors.VCSProvisioningFailed, err, "create vcs project %s", exercise.ProjectKey)
	}
	ledger.record(ResourceVCSProject, exercise.ProjectKey)
	return nil
}

func (p *Provisioner) createCIProject(ctx context.Context, exercise *model.Exercise, ledger *Ledger) error {
	if err := p.ci.CreateProject(ctx, exercise.ProjectKey, ProjectName(exercise)); err != nil {
		return p.fatal(StepCIProject, apperrors.CIProvisioningFailed, err, "create ci project %s", exercise.ProjectKey)
	}
	ledger.record(ResourceCIProject, exercise.ProjectKey)
	return nil
}

// createBuildPlans builds BASE and SOLUTION from scratch. Each plan checks out
// its assignment repository, the tests repository and every auxiliary repository.
func (p *Provisioner) createBuildPlans(ctx context.Context, exercise *model.Exercise, ledger *Ledger) error {
	plans := []struct {
		planType   model.BuildPlanType
		assignment string
	}{
		{model.BuildPlanBase, exercise.RepositoryURIFor(model.RepositoryTemplate)},
		{model.BuildPlanSolution, exercise.RepositoryURIFor(model.RepositorySolution)},
	}
	for _, spec := range plans {
		plan := ci.BuildPlan{
			ID:         exercise.BuildPlanID(spec.planType),
			ProjectKey: exercise.ProjectKey,
			Name:       string(spec.planType),
			Language:   string(exercise.Language),
			Repositories: []ci.PlanRepository{
				{Role: model.AssignmentRepoName, URI: spec.assignment, Branch: p.opts.DefaultBranch, CheckoutDirectory: model.AssignmentRepoName},
				{Role: model.TestsRepoName, URI: exercise.TestRepositoryURI, Branch: p.opts.DefaultBranch},
			},
		}
		for _, aux := range exercise.AuxiliaryRepositories {
			plan.Repositories = append(plan.Repositories, ci.PlanRepository{
				Role:              aux.Name,
				URI:               aux.RepositoryURI,
				Branch:            p.opts.DefaultBranch,
				CheckoutDirectory: aux.CheckoutDirectory,
			})
		}
		if err := p.ci.CreateBuildPlan(ctx, plan); err != nil {
			return p.fatal(StepBuildPlans, apperrors.CIProvisioningFailed, err, "create build plan %s", plan.ID)
		}
		ledger.record(ResourceBuildPlan, plan.ID)
		setBuildPlanID(exercise, spec.planType, plan.ID)
	}
	return nil
}

// givePermissions grants admin and edit rights to instructors and editors and
// read access to teaching assistants.
func (p *Provisioner) givePermissions(ctx context.Context, exercise *model.Exercise) error {
	manage := []ci.Permission{ci.PermissionAdmin, ci.PermissionEdit, ci.PermissionBuild, ci.PermissionRead}
	var grants []ci.PermissionGrant
	for _, group := range []string{exercise.Groups.Instructor, exercise.Groups.Editor} {
		if group != "" {
			grants = append(grants, ci.PermissionGrant{Group: group, Permissions: manage})
		}
	}
	if exercise.Groups.TeachingAssistant != "" {
		grants = append(grants, ci.PermissionGrant{Group: exercise.Groups.TeachingAssistant, Permissions: []ci.Permission{ci.PermissionRead}})
	}
	if len(grants) == 0 {
		return nil
	}
	if err := p.ci.GivePlanPermissions(ctx, exercise.ProjectKey, grants); err != nil {
		return p.fatal(StepPermissions, apperrors.CIProvisioningFailed, err, "grant plan permissions")
	}
	return nil
}

func (p *Provisioner) enablePlans(ctx context.Context, exercise *model.Exercise) error {
	for _, planType := range []model.BuildPlanType{model.BuildPlanBase, model.BuildPlanSolution} {
		id := planID(exercise, planType)
		if err := p.ci.EnablePlan(ctx, id); err != nil {
			return p.fatal(StepEnablePlans, apperrors.CIProvisioningFailed, err, "enable build plan %s", id)
		}
	}
	return nil
}

func (p *Provisioner) triggerBuilds(ctx context.Context, exercise *model.Exercise, result *Result) {
	for _, planType := range []model.BuildPlanType{model.BuildPlanBase, model.BuildPlanSolution} {
		id := planID(exercise, planType)
		if err := p.ci.TriggerBuild(ctx, id); err != nil {
			p.observe(StepBuildTrigger)
			logger.Warn(ctx, "trigger build failed", zap.String("plan_id", id), zap.Error(err))
			continue
		}
		result.BuildsTriggered = append(result.BuildsTriggered, id)
	}
}

func (p *Provisioner) seedFromArchive(ctx context.Context, exercise *model.Exercise) error {
	checkouts := make(map[model.RepositoryType]*vcs.LocalRepository, len(model.BaseRepositoryTypes))
	defer func() {
		for _, repo := range checkouts {
			_ = p.git.Remove(ctx, repo)
		}
	}()
	dirs := make(map[model.RepositoryType]string, len(model.BaseRepositoryTypes))
	for _, repoType := range model.BaseRepositoryTypes {
		repo, err := p.git.Checkout(ctx, exercise.RepositoryURIFor(repoType), p.opts.DefaultBranch)
		if err != nil {
			return err
		}
		checkouts[repoType] = repo
		dirs[repoType] = repo.Path
	}
	if err := p.opts.Archive.Extract(ctx, exercise.ID, dirs); err != nil {
		return err
	}
	replacements := TemplateReplacements(exercise)
	for _, repoType := range model.BaseRepositoryTypes {
		repo := checkouts[repoType]
		if err := p.git.ReplaceTextInFiles(ctx, repo, replacements, p.opts.Exclusions); err != nil {
			return err
		}
		if err := p.git.StageAll(ctx, repo); err != nil {
			return err
		}
		if err := p.git.CommitAndPush(ctx, repo, p.opts.SetupMessage, true); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) emptyCommit(ctx context.Context, uri, branch, message string) error {
	repo, err := p.git.Checkout(ctx, uri, branch)
	if err != nil {
		return err
	}
	defer p.git.Remove(ctx, repo)
	return p.git.CommitAndPush(ctx, repo, message, true)
}

func (p *Provisioner) fatal(step string, code apperrors.ErrorCode, err error, format string, args ...interface{}) error {
	p.observe(step)
	msg := fmt.Sprintf(format, args...)
	return apperrors.Wrapf(err, code, "%s: %v", msg, err).WithDetail("step", step)
}

func (p *Provisioner) observe(step string) {
	if p.opts.Observer != nil {
		p.opts.Observer.StepFailed(step)
	}
}

// ProjectName is the display name of the VCS and CI projects of an exercise.
func ProjectName(exercise *model.Exercise) string {
	if exercise.CourseShortName == "" {
		return exercise.Title
	}
	return exercise.CourseShortName + " " + exercise.Title
}

func ensureParticipations(exercise *model.Exercise) {
	if exercise.TemplateParticipation == nil {
		exercise.TemplateParticipation = &model.Participation{ExerciseID: exercise.ID, Type: model.ParticipationTemplate}
	}
	if exercise.SolutionParticipation == nil {
		exercise.SolutionParticipation = &model.Participation{ExerciseID: exercise.ID, Type: model.ParticipationSolution}
	}
}

func setRepositoryURI(exercise *model.Exercise, repoType model.RepositoryType, uri string) {
	switch repoType {
	case model.RepositoryTemplate:
		exercise.TemplateParticipation.RepositoryURI = uri
	case model.RepositorySolution:
		exercise.SolutionParticipation.RepositoryURI = uri
	case model.RepositoryTests:
		exercise.TestRepositoryURI = uri
	}
}

// planID is the stored plan id of the participation, or the conventional id
// when none was stored yet.
func planID(exercise *model.Exercise, planType model.BuildPlanType) string {
	var participation *model.Participation
	switch planType {
	case model.BuildPlanBase:
		participation = exercise.TemplateParticipation
	case model.BuildPlanSolution:
		participation = exercise.SolutionParticipation
	}
	if participation != nil && participation.BuildPlanID != "" {
		return participation.BuildPlanID
	}
	return exercise.BuildPlanID(planType)
}

func setBuildPlanID(exercise *model.Exercise, planType model.BuildPlanType, id string) {
	switch planType {
	case model.BuildPlanBase:
		exercise.TemplateParticipation.BuildPlanID = id
	case model.BuildPlanSolution:
		exercise.SolutionParticipation.BuildPlanID = id
	}
}
