package provision

import (
	"context"

	"exforge/internal/exercise/model"
	"exforge/internal/exercise/vcs"
	apperrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

// copiedRepository pairs a repository of the target with its source.
type copiedRepository struct {
	role      string
	sourceURI string
	uri       string
	branch    string
}

type importState struct {
	base map[model.RepositoryType]copiedRepository
	aux  []copiedRepository
}

// ImportFromTemplate mirrors the repositories and build plans of source into
// target. target must already hold its project key and the auxiliary
// repositories cloned from source, in source order.
func (p *Provisioner) ImportFromTemplate(ctx context.Context, source, target *model.Exercise, opts ImportOptions) (*Result, error) {
	if source == nil || target == nil || target.ProjectKey == "" {
		return nil, apperrors.New(apperrors.InvalidParams).WithMessage("source and target with project key are required")
	}
	if len(target.AuxiliaryRepositories) > len(source.AuxiliaryRepositories) {
		return nil, apperrors.New(apperrors.InvalidParams).WithMessage("target has auxiliary repositories without a source counterpart")
	}
	ctx = logger.WithExercise(ctx, target.ID)
	result := &Result{Ledger: &Ledger{}}
	ensureParticipations(target)

	if err := p.createVCSProject(ctx, target, result.Ledger); err != nil {
		return result, err
	}
	state, err := p.copyRepositories(ctx, source, target, result.Ledger)
	if err != nil {
		return result, err
	}

	template := state.base[model.RepositoryTemplate]
	if err := p.vcs.UnprotectBranch(ctx, template.uri, template.branch); err != nil {
		return result, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "unprotect branch %s", template.branch)
	}
	for _, repo := range state.all() {
		if err := p.vcs.AddWebhooks(ctx, repo.uri); err != nil {
			return result, p.fatal(StepWebhooks, apperrors.VCSProvisioningFailed, err, "add webhooks to %s", repo.uri)
		}
	}

	if err := p.createCIProject(ctx, target, result.Ledger); err != nil {
		return result, err
	}
	if opts.RecreateBuildPlans {
		if err := p.createBuildPlans(ctx, target, result.Ledger); err != nil {
			return result, err
		}
	} else if err := p.copyBuildPlans(ctx, source, target, result.Ledger); err != nil {
		return result, err
	}
	if err := p.givePermissions(ctx, target); err != nil {
		return result, err
	}
	if !opts.RecreateBuildPlans {
		if err := p.rewirePlans(ctx, target, state); err != nil {
			return result, err
		}
	}
	if err := p.enablePlans(ctx, target); err != nil {
		return result, err
	}

	replacements := ImportReplacements(source, target)
	for _, repoType := range model.BaseRepositoryTypes {
		repo := state.base[repoType]
		if !p.adaptRepository(ctx, repo, replacements) {
			result.Unadapted = append(result.Unadapted, repoType)
		}
	}
	if !target.ImportedFromArchive {
		p.triggerBuilds(ctx, target, result)
	}
	logger.Info(ctx, "exercise imported",
		zap.Int64("source_exercise_id", source.ID),
		zap.String("project_key", target.ProjectKey),
		zap.Bool("recreated_plans", opts.RecreateBuildPlans),
	)
	return result, nil
}

func (s *importState) all() []copiedRepository {
	out := make([]copiedRepository, 0, len(s.base)+len(s.aux))
	for _, repoType := range model.BaseRepositoryTypes {
		out = append(out, s.base[repoType])
	}
	return append(out, s.aux...)
}

// copyRepositories copies the base and auxiliary repositories, each on the
// default branch of its source. Auxiliary repositories pair up by position.
func (p *Provisioner) copyRepositories(ctx context.Context, source, target *model.Exercise, ledger *Ledger) (*importState, error) {
	state := &importState{base: make(map[model.RepositoryType]copiedRepository, len(model.BaseRepositoryTypes))}
	for _, repoType := range model.BaseRepositoryTypes {
		repo, err := p.copyRepository(ctx, source, target, source.RepositoryURIFor(repoType),
			source.RepositoryName(repoType), target.RepositoryName(repoType), ledger)
		if err != nil {
			return nil, err
		}
		repo.role = string(repoType)
		setRepositoryURI(target, repoType, repo.uri)
		state.base[repoType] = repo
	}
	for i, aux := range target.AuxiliaryRepositories {
		sourceAux := source.AuxiliaryRepositories[i]
		repo, err := p.copyRepository(ctx, source, target, sourceAux.RepositoryURI,
			source.AuxiliaryRepositoryName(sourceAux), target.AuxiliaryRepositoryName(aux), ledger)
		if err != nil {
			return nil, err
		}
		repo.role = aux.Name
		aux.RepositoryURI = repo.uri
		state.aux = append(state.aux, repo)
	}
	return state, nil
}

func (p *Provisioner) copyRepository(ctx context.Context, source, target *model.Exercise, sourceURI, sourceName, targetName string, ledger *Ledger) (copiedRepository, error) {
	branch, err := p.vcs.GetDefaultBranch(ctx, sourceURI)
	if err != nil {
		return copiedRepository{}, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "default branch of %s", sourceName)
	}
	uri, err := p.vcs.CopyRepository(ctx, source.ProjectKey, sourceName, branch, target.ProjectKey, targetName)
	if err != nil {
		return copiedRepository{}, p.fatal(StepRepositories, apperrors.VCSProvisioningFailed, err, "copy repository %s", sourceName)
	}
	ledger.record(ResourceRepository, uri)
	return copiedRepository{sourceURI: sourceURI, uri: uri, branch: branch}, nil
}

func (p *Provisioner) copyBuildPlans(ctx context.Context, source, target *model.Exercise, ledger *Ledger) error {
	for _, planType := range []model.BuildPlanType{model.BuildPlanBase, model.BuildPlanSolution} {
		sourceID := planID(source, planType)
		id, err := p.ci.CopyBuildPlan(ctx, sourceID, target.ProjectKey, target.BuildPlanID(planType), string(planType))
		if err != nil {
			return p.fatal(StepBuildPlans, apperrors.CIProvisioningFailed, err, "copy build plan %s", sourceID)
		}
		ledger.record(ResourceBuildPlan, id)
		setBuildPlanID(target, planType, id)
	}
	return nil
}

// rewirePlans points the copied plans at the new repositories. Every repository
// of the BASE plan is triggered by the assignment repository only; the SOLUTION
// plan keeps the default triggers.
func (p *Provisioner) rewirePlans(ctx context.Context, target *model.Exercise, state *importState) error {
	plans := []struct {
		planType    model.BuildPlanType
		assignment  model.RepositoryType
		triggeredBy []string
	}{
		{model.BuildPlanBase, model.RepositoryTemplate, []string{model.AssignmentRepoName}},
		{model.BuildPlanSolution, model.RepositorySolution, nil},
	}
	for _, plan := range plans {
		id := planID(target, plan.planType)
		assignment := state.base[plan.assignment]
		tests := state.base[model.RepositoryTests]
		updates := []copiedRepository{
			{role: model.AssignmentRepoName, sourceURI: assignment.sourceURI, uri: assignment.uri, branch: assignment.branch},
			{role: model.TestsRepoName, sourceURI: tests.sourceURI, uri: tests.uri, branch: tests.branch},
		}
		updates = append(updates, state.aux...)
		for _, u := range updates {
			if err := p.ci.UpdatePlanRepository(ctx, id, u.role, u.uri, u.sourceURI, u.branch, plan.triggeredBy); err != nil {
				return p.fatal(StepBuildPlans, apperrors.CIProvisioningFailed, err, "update repository %s of plan %s", u.role, id)
			}
		}
	}
	return nil
}

// adaptRepository replaces the source names in a copied repository. On failure
// it pushes an empty commit so the repository still builds, and reports false.
func (p *Provisioner) adaptRepository(ctx context.Context, repo copiedRepository, replacements []vcs.Replacement) bool {
	err := p.replaceAndPush(ctx, repo, replacements)
	if err == nil {
		return true
	}
	p.observe(StepPlaceholders)
	logger.Warn(ctx, "placeholder adaptation failed, pushing empty commit", zap.String("repository", repo.uri), zap.Error(err))
	if err := p.emptyCommit(ctx, repo.uri, repo.branch, p.opts.AdaptMessage); err != nil {
		logger.Warn(ctx, "empty commit fallback failed", zap.String("repository", repo.uri), zap.Error(err))
	}
	return false
}

func (p *Provisioner) replaceAndPush(ctx context.Context, repo copiedRepository, replacements []vcs.Replacement) error {
	local, err := p.git.Checkout(ctx, repo.uri, repo.branch)
	if err != nil {
		return err
	}
	defer p.git.Remove(ctx, local)
	if err := p.git.ReplaceTextInFiles(ctx, local, replacements, p.opts.Exclusions); err != nil {
		return err
	}
	if err := p.git.StageAll(ctx, local); err != nil {
		return err
	}
	return p.git.CommitAndPush(ctx, local, p.opts.AdaptMessage, false)
}
