// Package vcs contains the version control collaborators of the provisioner:
// the remote VCS client, a git working copy, and their local implementations.
package vcs

import (
	"context"
	"errors"
)

var (
	ErrProjectExists      = errors.New("vcs project already exists")
	ErrProjectNotFound    = errors.New("vcs project not found")
	ErrRepositoryNotFound = errors.New("vcs repository not found")
	ErrRepositoryExists   = errors.New("vcs repository already exists")
)

// VersionControlClient manages projects and repositories on the VCS server.
// Repository addresses are opaque URIs handed out by the client itself.
type VersionControlClient interface {
	CreateProject(ctx context.Context, projectKey, projectName string) error
	// ProjectExists reports whether a project with the key or the display name exists.
	ProjectExists(ctx context.Context, projectKey, projectName string) (bool, error)
	DeleteProject(ctx context.Context, projectKey string) error

	CreateRepository(ctx context.Context, projectKey, repositoryName string) (string, error)
	// CopyRepository copies branch of the source repository into a new repository
	// and keeps it as the default branch of the copy.
	CopyRepository(ctx context.Context, sourceProject, sourceRepository, branch, targetProject, targetRepository string) (string, error)
	DeleteRepository(ctx context.Context, uri string) error

	GetDefaultBranch(ctx context.Context, uri string) (string, error)
	UnprotectBranch(ctx context.Context, uri, branch string) error
	AddWebhooks(ctx context.Context, uri string) error

	// LockRepository makes the repository read-only for the given logins.
	// Without logins the whole repository is locked.
	LockRepository(ctx context.Context, uri string, logins ...string) error
	UnlockRepository(ctx context.Context, uri string, logins ...string) error
}

// LocalRepository is a checked out working copy.
type LocalRepository struct {
	URI    string
	Path   string
	Branch string
}

// Replacement replaces every occurrence of Old with New.
type Replacement struct {
	Old string
	New string
}

// GitWorkingCopy edits repository contents through a local checkout.
type GitWorkingCopy interface {
	Checkout(ctx context.Context, uri, branch string) (*LocalRepository, error)
	// ReplaceTextInFiles skips files and directories matching an exclusion
	// pattern, e.g. "gradle-wrapper.jar" or "docs/*".
	ReplaceTextInFiles(ctx context.Context, repo *LocalRepository, replacements []Replacement, exclusions []string) error
	StageAll(ctx context.Context, repo *LocalRepository) error
	// CommitAndPush commits the index and pushes it to the checked out branch.
	// With allowEmpty a commit is created even when nothing changed.
	CommitAndPush(ctx context.Context, repo *LocalRepository, message string, allowEmpty bool) error
	Remove(ctx context.Context, repo *LocalRepository) error
}
