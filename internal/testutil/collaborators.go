package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"exforge/internal/exercise/ci"
	"exforge/internal/exercise/vcs"
)

// FakeVCS is an in-memory vcs.VersionControlClient. Repository URIs have the
// form fake://<project>/<repository>.
type FakeVCS struct {
	mu sync.Mutex

	// FailOn makes the named method return the error.
	FailOn map[string]error
	// CopySuffix is appended to the plan ids CopyBuildPlan hands out.
	CopySuffix string

	Calls     []string
	Projects  map[string]string
	Branches  map[string]string
	Webhooks  map[string]int
	Protected map[string][]string
	ReadOnly  map[string][]string
}

var _ vcs.VersionControlClient = (*FakeVCS)(nil)

func NewFakeVCS() *FakeVCS {
	return &FakeVCS{
		FailOn:    make(map[string]error),
		Projects:  make(map[string]string),
		Branches:  make(map[string]string),
		Webhooks:  make(map[string]int),
		Protected: make(map[string][]string),
		ReadOnly:  make(map[string][]string),
	}
}

// FakeRepositoryURI returns the URI FakeVCS assigns to a repository.
func FakeRepositoryURI(project, repository string) string {
	return "fake://" + project + "/" + repository
}

// AddRepository registers an existing repository on branch.
func (f *FakeVCS) AddRepository(uri, branch string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Branches[uri] = branch
}

func (f *FakeVCS) call(method string, args ...string) error {
	f.Calls = append(f.Calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	return f.FailOn[method]
}

func (f *FakeVCS) CreateProject(ctx context.Context, projectKey, projectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateProject", projectKey); err != nil {
		return err
	}
	if _, ok := f.Projects[projectKey]; ok {
		return vcs.ErrProjectExists
	}
	f.Projects[projectKey] = projectName
	return nil
}

func (f *FakeVCS) ProjectExists(ctx context.Context, projectKey, projectName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("ProjectExists", projectKey); err != nil {
		return false, err
	}
	for key, name := range f.Projects {
		if strings.EqualFold(key, projectKey) || (projectName != "" && strings.EqualFold(name, projectName)) {
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeVCS) DeleteProject(ctx context.Context, projectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteProject", projectKey); err != nil {
		return err
	}
	if _, ok := f.Projects[projectKey]; !ok {
		return vcs.ErrProjectNotFound
	}
	delete(f.Projects, projectKey)
	return nil
}

func (f *FakeVCS) CreateRepository(ctx context.Context, projectKey, repositoryName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateRepository", projectKey, repositoryName); err != nil {
		return "", err
	}
	uri := FakeRepositoryURI(projectKey, repositoryName)
	if _, ok := f.Branches[uri]; ok {
		return "", vcs.ErrRepositoryExists
	}
	f.Branches[uri] = "main"
	f.Protected[uri] = []string{"main"}
	return uri, nil
}

func (f *FakeVCS) CopyRepository(ctx context.Context, sourceProject, sourceRepository, branch, targetProject, targetRepository string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CopyRepository", sourceProject+"/"+sourceRepository, branch, targetProject+"/"+targetRepository); err != nil {
		return "", err
	}
	uri := FakeRepositoryURI(targetProject, targetRepository)
	if _, ok := f.Branches[uri]; ok {
		return "", vcs.ErrRepositoryExists
	}
	f.Branches[uri] = branch
	f.Protected[uri] = []string{branch}
	return uri, nil
}

func (f *FakeVCS) DeleteRepository(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteRepository", uri); err != nil {
		return err
	}
	if _, ok := f.Branches[uri]; !ok {
		return vcs.ErrRepositoryNotFound
	}
	delete(f.Branches, uri)
	return nil
}

func (f *FakeVCS) GetDefaultBranch(ctx context.Context, uri string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetDefaultBranch", uri); err != nil {
		return "", err
	}
	branch, ok := f.Branches[uri]
	if !ok {
		return "", fmt.Errorf("%w: %s", vcs.ErrRepositoryNotFound, uri)
	}
	return branch, nil
}

func (f *FakeVCS) UnprotectBranch(ctx context.Context, uri, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UnprotectBranch", uri, branch); err != nil {
		return err
	}
	var kept []string
	for _, b := range f.Protected[uri] {
		if b != branch {
			kept = append(kept, b)
		}
	}
	f.Protected[uri] = kept
	return nil
}

func (f *FakeVCS) AddWebhooks(ctx context.Context, uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AddWebhooks", uri); err != nil {
		return err
	}
	f.Webhooks[uri]++
	return nil
}

func (f *FakeVCS) LockRepository(ctx context.Context, uri string, logins ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("LockRepository", append([]string{uri}, logins...)...); err != nil {
		return err
	}
	f.ReadOnly[uri] = append(f.ReadOnly[uri], logins...)
	return nil
}

func (f *FakeVCS) UnlockRepository(ctx context.Context, uri string, logins ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UnlockRepository", append([]string{uri}, logins...)...); err != nil {
		return err
	}
	drop := make(map[string]bool, len(logins))
	for _, l := range logins {
		drop[l] = true
	}
	var kept []string
	for _, l := range f.ReadOnly[uri] {
		if !drop[l] {
			kept = append(kept, l)
		}
	}
	f.ReadOnly[uri] = kept
	return nil
}

// CallsOf returns the recorded calls of one method.
func (f *FakeVCS) CallsOf(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return callsOf(f.Calls, method)
}

func callsOf(calls []string, method string) []string {
	var out []string
	for _, c := range calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			out = append(out, c)
		}
	}
	return out
}

// FakeCI is an in-memory ci.ContinuousIntegrationClient.
type FakeCI struct {
	mu sync.Mutex

	FailOn map[string]error
	// CopySuffix is appended to the plan ids CopyBuildPlan hands out.
	CopySuffix string

	Calls     []string
	Projects  map[string]string
	Plans     map[string]*ci.BuildPlan
	Grants    map[string][]ci.PermissionGrant
	Triggered []string
}

var _ ci.ContinuousIntegrationClient = (*FakeCI)(nil)

func NewFakeCI() *FakeCI {
	return &FakeCI{
		FailOn:   make(map[string]error),
		Projects: make(map[string]string),
		Plans:    make(map[string]*ci.BuildPlan),
		Grants:   make(map[string][]ci.PermissionGrant),
	}
}

// AddPlan registers an existing plan.
func (f *FakeCI) AddPlan(plan ci.BuildPlan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Plans[plan.ID] = &plan
}

// Plan returns a stored plan or nil.
func (f *FakeCI) Plan(id string) *ci.BuildPlan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Plans[id]
}

func (f *FakeCI) call(method string, args ...string) error {
	f.Calls = append(f.Calls, strings.TrimSpace(method+" "+strings.Join(args, " ")))
	return f.FailOn[method]
}

func (f *FakeCI) CallsOf(method string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return callsOf(f.Calls, method)
}

func (f *FakeCI) CreateProject(ctx context.Context, projectKey, projectName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateProject", projectKey); err != nil {
		return err
	}
	if _, ok := f.Projects[projectKey]; ok {
		return ci.ErrProjectExists
	}
	f.Projects[projectKey] = projectName
	return nil
}

func (f *FakeCI) DeleteProject(ctx context.Context, projectKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteProject", projectKey); err != nil {
		return err
	}
	if _, ok := f.Projects[projectKey]; !ok {
		return ci.ErrProjectNotFound
	}
	delete(f.Projects, projectKey)
	return nil
}

func (f *FakeCI) CreateBuildPlan(ctx context.Context, plan ci.BuildPlan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateBuildPlan", plan.ID); err != nil {
		return err
	}
	if _, ok := f.Plans[plan.ID]; ok {
		return ci.ErrPlanExists
	}
	f.Plans[plan.ID] = &plan
	return nil
}

func (f *FakeCI) CopyBuildPlan(ctx context.Context, sourcePlanID, targetProject, targetPlanID, targetName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CopyBuildPlan", sourcePlanID, targetPlanID); err != nil {
		return "", err
	}
	source, ok := f.Plans[sourcePlanID]
	if !ok {
		return "", ci.ErrPlanNotFound
	}
	copied := *source
	copied.ID = targetPlanID + f.CopySuffix
	copied.ProjectKey = targetProject
	copied.Name = targetName
	copied.Enabled = false
	copied.CopiedFrom = sourcePlanID
	copied.Repositories = append([]ci.PlanRepository(nil), source.Repositories...)
	f.Plans[copied.ID] = &copied
	return copied.ID, nil
}

func (f *FakeCI) UpdatePlanRepository(ctx context.Context, planID, role, newURI, oldURI, branch string, triggeredBy []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UpdatePlanRepository", planID, role, newURI, oldURI, branch, strings.Join(triggeredBy, ",")); err != nil {
		return err
	}
	plan, ok := f.Plans[planID]
	if !ok {
		return ci.ErrPlanNotFound
	}
	for i := range plan.Repositories {
		if plan.Repositories[i].URI == oldURI || (oldURI == "" && plan.Repositories[i].Role == role) {
			plan.Repositories[i].Role = role
			plan.Repositories[i].URI = newURI
			plan.Repositories[i].Branch = branch
			plan.Repositories[i].TriggeredBy = append([]string(nil), triggeredBy...)
			return nil
		}
	}
	return ci.ErrPlanRepositoryNotFound
}

func (f *FakeCI) GivePlanPermissions(ctx context.Context, projectKey string, grants []ci.PermissionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GivePlanPermissions", projectKey); err != nil {
		return err
	}
	f.Grants[projectKey] = append(f.Grants[projectKey], grants...)
	return nil
}

func (f *FakeCI) EnablePlan(ctx context.Context, planID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("EnablePlan", planID); err != nil {
		return err
	}
	plan, ok := f.Plans[planID]
	if !ok {
		return ci.ErrPlanNotFound
	}
	plan.Enabled = true
	return nil
}

func (f *FakeCI) TriggerBuild(ctx context.Context, planID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("TriggerBuild", planID); err != nil {
		return err
	}
	f.Triggered = append(f.Triggered, planID)
	return nil
}

func (f *FakeCI) DeleteBuildPlan(ctx context.Context, planID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteBuildPlan", planID); err != nil {
		return err
	}
	if _, ok := f.Plans[planID]; !ok {
		return ci.ErrPlanNotFound
	}
	delete(f.Plans, planID)
	return nil
}

// FakeCommit is one CommitAndPush recorded by FakeGit.
type FakeCommit struct {
	URI     string
	Branch  string
	Message string
	Empty   bool
}

// FakeGit is a vcs.GitWorkingCopy that records what would have been pushed.
type FakeGit struct {
	mu sync.Mutex

	FailOn map[string]error

	Checkouts    []string
	Replacements map[string][]vcs.Replacement
	Exclusions   []string
	Commits      []FakeCommit
	Open         int
}

var _ vcs.GitWorkingCopy = (*FakeGit)(nil)

func NewFakeGit() *FakeGit {
	return &FakeGit{FailOn: make(map[string]error), Replacements: make(map[string][]vcs.Replacement)}
}

func (g *FakeGit) Checkout(ctx context.Context, uri, branch string) (*vcs.LocalRepository, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailOn["Checkout"]; err != nil {
		return nil, err
	}
	g.Checkouts = append(g.Checkouts, uri)
	g.Open++
	return &vcs.LocalRepository{URI: uri, Path: "/tmp/fake/" + uri, Branch: branch}, nil
}

func (g *FakeGit) ReplaceTextInFiles(ctx context.Context, repo *vcs.LocalRepository, replacements []vcs.Replacement, exclusions []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailOn["ReplaceTextInFiles"]; err != nil {
		return err
	}
	g.Replacements[repo.URI] = append([]vcs.Replacement(nil), replacements...)
	g.Exclusions = append([]string(nil), exclusions...)
	return nil
}

func (g *FakeGit) StageAll(ctx context.Context, repo *vcs.LocalRepository) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.FailOn["StageAll"]
}

func (g *FakeGit) CommitAndPush(ctx context.Context, repo *vcs.LocalRepository, message string, allowEmpty bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailOn["CommitAndPush"]; err != nil {
		return err
	}
	g.Commits = append(g.Commits, FakeCommit{URI: repo.URI, Branch: repo.Branch, Message: message, Empty: allowEmpty})
	return nil
}

func (g *FakeGit) Remove(ctx context.Context, repo *vcs.LocalRepository) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Open--
	return nil
}
