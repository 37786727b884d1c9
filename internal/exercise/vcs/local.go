package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"exforge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	projectNameFile = ".project-name"
	fileScheme      = "file://"

	configProtected = "exforge.protectedbranch"
	configWebhook   = "exforge.webhook"
	configReadOnly  = "exforge.readonly"
	lockEverybody   = "*"

	// git config exits with 5 when --unset finds nothing to remove.
	gitConfigNothingToUnset = 5
)

// LocalBareVCSConfig configures LocalBareVCS.
type LocalBareVCSConfig struct {
	Root     string   `yaml:"root"`
	Webhooks []string `yaml:"webhooks"`
}

// LocalBareVCS keeps every project as a directory of bare repositories under
// Root. Branch protection, webhooks and read-only users are recorded in each
// repository's git config.
type LocalBareVCS struct {
	root     string
	webhooks []string
	branch   string
	git      *gitRunner
}

var _ VersionControlClient = (*LocalBareVCS)(nil)

func NewLocalBareVCS(cfg LocalBareVCSConfig, gitCfg GitConfig) (*LocalBareVCS, error) {
	if cfg.Root == "" {
		return nil, errors.New("vcs root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create vcs root: %w", err)
	}
	gitCfg = gitCfg.withDefaults()
	runner, err := newGitRunner(gitCfg)
	if err != nil {
		return nil, err
	}
	return &LocalBareVCS{root: root, webhooks: cfg.Webhooks, branch: gitCfg.DefaultBranch, git: runner}, nil
}

func (v *LocalBareVCS) projectDir(key string) string {
	return filepath.Join(v.root, key)
}

func (v *LocalBareVCS) repositoryDir(key, name string) string {
	return filepath.Join(v.root, key, strings.ToLower(name)+".git")
}

// URI returns the address of a repository in this VCS.
func (v *LocalBareVCS) URI(projectKey, repositoryName string) string {
	return fileScheme + filepath.ToSlash(v.repositoryDir(projectKey, repositoryName))
}

func (v *LocalBareVCS) pathOf(uri string) (string, error) {
	if !strings.HasPrefix(uri, fileScheme) {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, uri)
	}
	path := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(uri, fileScheme)))
	rel, err := filepath.Rel(v.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, uri)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrRepositoryNotFound, uri)
	}
	return path, nil
}

func (v *LocalBareVCS) CreateProject(ctx context.Context, projectKey, projectName string) error {
	dir := v.projectDir(projectKey)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrProjectExists, projectKey)
		}
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, projectNameFile), []byte(projectName), 0o644); err != nil {
		return err
	}
	logger.Info(ctx, "vcs project created", zap.String("project_key", projectKey))
	return nil
}

func (v *LocalBareVCS) ProjectExists(ctx context.Context, projectKey, projectName string) (bool, error) {
	entries, err := os.ReadDir(v.root)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), projectKey) {
			return true, nil
		}
		if projectName == "" {
			continue
		}
		name, err := os.ReadFile(filepath.Join(v.root, entry.Name(), projectNameFile))
		if err == nil && strings.EqualFold(strings.TrimSpace(string(name)), projectName) {
			return true, nil
		}
	}
	return false, nil
}

func (v *LocalBareVCS) DeleteProject(ctx context.Context, projectKey string) error {
	dir := v.projectDir(projectKey)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectKey)
	}
	return os.RemoveAll(dir)
}

func (v *LocalBareVCS) CreateRepository(ctx context.Context, projectKey, repositoryName string) (string, error) {
	if _, err := os.Stat(v.projectDir(projectKey)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrProjectNotFound, projectKey)
	}
	dir := v.repositoryDir(projectKey, repositoryName)
	if _, err := os.Stat(dir); err == nil {
		return "", fmt.Errorf("%w: %s", ErrRepositoryExists, repositoryName)
	}
	if _, err := v.git.run(ctx, "", "init", "--quiet", "--bare", "--initial-branch="+v.branch, dir); err != nil {
		return "", err
	}
	if _, err := v.git.run(ctx, "", "--git-dir="+dir, "config", "--add", configProtected, v.branch); err != nil {
		return "", err
	}
	return v.URI(projectKey, repositoryName), nil
}

func (v *LocalBareVCS) CopyRepository(ctx context.Context, sourceProject, sourceRepository, branch, targetProject, targetRepository string) (string, error) {
	source := v.repositoryDir(sourceProject, sourceRepository)
	if _, err := os.Stat(source); err != nil {
		return "", fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, sourceProject, sourceRepository)
	}
	if _, err := os.Stat(v.projectDir(targetProject)); err != nil {
		return "", fmt.Errorf("%w: %s", ErrProjectNotFound, targetProject)
	}
	target := v.repositoryDir(targetProject, targetRepository)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrRepositoryExists, targetRepository)
	}
	ref := "HEAD"
	if branch != "" {
		ref = "refs/heads/" + branch
	}
	if _, err := v.git.run(ctx, "", "--git-dir="+source, "rev-parse", "--verify", "--quiet", ref); err != nil {
		if exitCode(err) != 1 {
			return "", err
		}
		// nothing committed yet: the copy starts out empty as well
		if branch == "" {
			branch = v.branch
		}
		if _, err := v.git.run(ctx, "", "init", "--quiet", "--bare", "--initial-branch="+branch, target); err != nil {
			return "", err
		}
	} else {
		args := []string{"clone", "--quiet", "--bare"}
		if branch != "" {
			args = append(args, "--branch", branch)
		}
		if _, err := v.git.run(ctx, "", append(args, source, target)...); err != nil {
			return "", err
		}
		// the copy must not keep pushing to its origin
		if _, err := v.git.run(ctx, "", "--git-dir="+target, "remote", "remove", "origin"); err != nil {
			return "", err
		}
	}
	if branch == "" {
		branch = v.branch
	}
	if _, err := v.git.run(ctx, "", "--git-dir="+target, "config", "--add", configProtected, branch); err != nil {
		return "", err
	}
	return v.URI(targetProject, targetRepository), nil
}

func (v *LocalBareVCS) DeleteRepository(ctx context.Context, uri string) error {
	path, err := v.pathOf(uri)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

func (v *LocalBareVCS) GetDefaultBranch(ctx context.Context, uri string) (string, error) {
	path, err := v.pathOf(uri)
	if err != nil {
		return "", err
	}
	return v.git.run(ctx, "", "--git-dir="+path, "symbolic-ref", "--short", "HEAD")
}

func (v *LocalBareVCS) UnprotectBranch(ctx context.Context, uri, branch string) error {
	return v.unsetValue(ctx, uri, configProtected, branch)
}

// ProtectedBranches lists the branches that reject force pushes.
func (v *LocalBareVCS) ProtectedBranches(ctx context.Context, uri string) ([]string, error) {
	return v.values(ctx, uri, configProtected)
}

func (v *LocalBareVCS) AddWebhooks(ctx context.Context, uri string) error {
	path, err := v.pathOf(uri)
	if err != nil {
		return err
	}
	for _, hook := range v.webhooks {
		if _, err := v.git.run(ctx, "", "--git-dir="+path, "config", "--add", configWebhook, hook); err != nil {
			return err
		}
	}
	return nil
}

// Webhooks lists the push notification targets registered on the repository.
func (v *LocalBareVCS) Webhooks(ctx context.Context, uri string) ([]string, error) {
	return v.values(ctx, uri, configWebhook)
}

func (v *LocalBareVCS) LockRepository(ctx context.Context, uri string, logins ...string) error {
	path, err := v.pathOf(uri)
	if err != nil {
		return err
	}
	if len(logins) == 0 {
		logins = []string{lockEverybody}
	}
	current, err := v.values(ctx, uri, configReadOnly)
	if err != nil {
		return err
	}
	locked := make(map[string]bool, len(current))
	for _, login := range current {
		locked[login] = true
	}
	for _, login := range logins {
		if locked[login] {
			continue
		}
		if _, err := v.git.run(ctx, "", "--git-dir="+path, "config", "--add", configReadOnly, login); err != nil {
			return err
		}
		locked[login] = true
	}
	return nil
}

func (v *LocalBareVCS) UnlockRepository(ctx context.Context, uri string, logins ...string) error {
	if len(logins) == 0 {
		logins = []string{lockEverybody}
	}
	for _, login := range logins {
		if err := v.unsetValue(ctx, uri, configReadOnly, login); err != nil {
			return err
		}
	}
	return nil
}

// ReadOnlyUsers lists the logins the repository is locked for. "*" locks everybody.
func (v *LocalBareVCS) ReadOnlyUsers(ctx context.Context, uri string) ([]string, error) {
	return v.values(ctx, uri, configReadOnly)
}

func (v *LocalBareVCS) values(ctx context.Context, uri, key string) ([]string, error) {
	path, err := v.pathOf(uri)
	if err != nil {
		return nil, err
	}
	out, err := v.git.run(ctx, "", "--git-dir="+path, "config", "--get-all", key)
	if err != nil {
		// exit 1: key not set
		if exitCode(err) == 1 {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

func (v *LocalBareVCS) unsetValue(ctx context.Context, uri, key, value string) error {
	path, err := v.pathOf(uri)
	if err != nil {
		return err
	}
	pattern := "^" + regexp.QuoteMeta(value) + "$"
	_, err = v.git.run(ctx, "", "--git-dir="+path, "config", "--unset-all", key, pattern)
	if err != nil && exitCode(err) != gitConfigNothingToUnset {
		return err
	}
	return nil
}
