package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	apperrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	defaultGitBinary   = "git"
	defaultBranch      = "main"
	defaultGitTimeout  = 2 * time.Minute
	defaultAuthorName  = "exforge"
	defaultAuthorEmail = "exforge@localhost"
)

// GitConfig configures the git binary used by GitCLI and LocalBareVCS.
type GitConfig struct {
	Binary string `yaml:"binary"`
	// ExtraArgs are prepended to every git invocation, e.g. "-c http.sslVerify=false".
	ExtraArgs     string        `yaml:"extraArgs"`
	WorkDir       string        `yaml:"workDir"`
	DefaultBranch string        `yaml:"defaultBranch"`
	AuthorName    string        `yaml:"authorName"`
	AuthorEmail   string        `yaml:"authorEmail"`
	Timeout       time.Duration `yaml:"timeout"`
}

func (c GitConfig) withDefaults() GitConfig {
	if c.Binary == "" {
		c.Binary = defaultGitBinary
	}
	if c.DefaultBranch == "" {
		c.DefaultBranch = defaultBranch
	}
	if c.AuthorName == "" {
		c.AuthorName = defaultAuthorName
	}
	if c.AuthorEmail == "" {
		c.AuthorEmail = defaultAuthorEmail
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultGitTimeout
	}
	return c
}

type gitRunner struct {
	binary  string
	extra   []string
	timeout time.Duration
}

func newGitRunner(cfg GitConfig) (*gitRunner, error) {
	extra, err := shlex.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidParams, "parse git extra args failed")
	}
	return &gitRunner{binary: cfg.Binary, extra: extra, timeout: cfg.Timeout}, nil
}

// gitError carries the exit code and stderr of a failed git command.
type gitError struct {
	args     []string
	exitCode int
	stderr   string
	err      error
}

func (e *gitError) Error() string {
	return fmt.Sprintf("git %s: exit %d: %s", strings.Join(e.args, " "), e.exitCode, strings.TrimSpace(e.stderr))
}

func (e *gitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ge *gitError
	if errors.As(err, &ge) {
		return ge.exitCode
	}
	return -1
}

func (g *gitRunner) run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	full := append(append([]string{}, g.extra...), args...)
	cmd := exec.CommandContext(ctx, g.binary, full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		logger.Debug(ctx, "git command failed", zap.Strings("args", args), zap.Int("exit_code", code), zap.String("stderr", stderr.String()))
		return "", &gitError{args: args, exitCode: code, stderr: stderr.String(), err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

// GitCLI implements GitWorkingCopy with the git command line client.
type GitCLI struct {
	cfg GitConfig
	git *gitRunner
}

var _ GitWorkingCopy = (*GitCLI)(nil)

func NewGitCLI(cfg GitConfig) (*GitCLI, error) {
	cfg = cfg.withDefaults()
	runner, err := newGitRunner(cfg)
	if err != nil {
		return nil, err
	}
	return &GitCLI{cfg: cfg, git: runner}, nil
}

func (g *GitCLI) Checkout(ctx context.Context, uri, branch string) (*LocalRepository, error) {
	if g.cfg.WorkDir != "" {
		if err := os.MkdirAll(g.cfg.WorkDir, 0o755); err != nil {
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(g.cfg.WorkDir, "checkout-*")
	if err != nil {
		return nil, fmt.Errorf("create checkout dir: %w", err)
	}
	repo := &LocalRepository{URI: uri, Path: dir}
	if _, err := g.git.run(ctx, "", "clone", "--quiet", uri, dir); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	branch, err = g.selectBranch(ctx, dir, branch)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	repo.Branch = branch
	return repo, nil
}

func (g *GitCLI) selectBranch(ctx context.Context, dir, branch string) (string, error) {
	if branch == "" {
		return g.git.run(ctx, dir, "symbolic-ref", "--short", "HEAD")
	}
	if _, err := g.git.run(ctx, dir, "rev-parse", "--verify", "--quiet", "refs/remotes/origin/"+branch); err == nil {
		_, err = g.git.run(ctx, dir, "checkout", "--quiet", "-B", branch, "origin/"+branch)
		return branch, err
	}
	// empty remote: point the unborn HEAD at the requested branch
	_, err := g.git.run(ctx, dir, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return branch, err
}

// ReplaceTextInFiles applies the replacements to every text file of the working
// copy in a single pass; earlier replacements win where two match at the same
// position. Binary files, the .git directory and files or directories matching
// one of the exclusions are left alone.
func (g *GitCLI) ReplaceTextInFiles(ctx context.Context, repo *LocalRepository, replacements []Replacement, exclusions []string) error {
	pairs := make([]string, 0, 2*len(replacements))
	for _, r := range replacements {
		if r.Old != "" && r.Old != r.New {
			pairs = append(pairs, r.Old, r.New)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	replacer := strings.NewReplacer(pairs...)
	changed := 0
	err := filepath.WalkDir(repo.Path, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" || (file != repo.Path && excluded(repo.Path, file, exclusions)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || excluded(repo.Path, file, exclusions) {
			return nil
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if bytes.IndexByte(data, 0) >= 0 {
			return nil
		}
		text := string(data)
		out := replacer.Replace(text)
		if out == text {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		changed++
		return os.WriteFile(file, []byte(out), info.Mode().Perm())
	})
	if err != nil {
		return fmt.Errorf("replace text in %s: %w", repo.Path, err)
	}
	logger.Debug(ctx, "placeholders replaced", zap.String("repository", repo.URI), zap.Int("files", changed))
	return nil
}

// excluded matches a pattern against the base name and the slash separated
// path relative to the checkout root.
func excluded(root, file string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	base := path.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (g *GitCLI) StageAll(ctx context.Context, repo *LocalRepository) error {
	_, err := g.git.run(ctx, repo.Path, "add", "--all")
	return err
}

func (g *GitCLI) CommitAndPush(ctx context.Context, repo *LocalRepository, message string, allowEmpty bool) error {
	if !allowEmpty {
		status, err := g.git.run(ctx, repo.Path, "status", "--porcelain")
		if err != nil {
			return err
		}
		if status == "" {
			logger.Debug(ctx, "nothing to commit", zap.String("repository", repo.URI))
			return nil
		}
	}
	args := []string{
		"-c", "user.name=" + g.cfg.AuthorName,
		"-c", "user.email=" + g.cfg.AuthorEmail,
		"commit", "--quiet", "--no-verify", "-m", message,
	}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := g.git.run(ctx, repo.Path, args...); err != nil {
		return err
	}
	_, err := g.git.run(ctx, repo.Path, "push", "--quiet", "origin", "HEAD:refs/heads/"+repo.Branch)
	return err
}

func (g *GitCLI) Remove(ctx context.Context, repo *LocalRepository) error {
	if repo == nil || repo.Path == "" {
		return nil
	}
	return os.RemoveAll(repo.Path)
}
