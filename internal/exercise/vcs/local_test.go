package vcs_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"exforge/internal/exercise/vcs"
	"exforge/internal/testutil"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func newLocalVCS(t *testing.T) (*vcs.LocalBareVCS, *vcs.GitCLI) {
	t.Helper()
	requireGit(t)
	gitCfg := vcs.GitConfig{WorkDir: t.TempDir(), DefaultBranch: "main"}
	client, err := vcs.NewLocalBareVCS(vcs.LocalBareVCSConfig{
		Root:     t.TempDir(),
		Webhooks: []string{"http://ci.local/hooks/push"},
	}, gitCfg)
	testutil.AssertNil(t, err)
	wc, err := vcs.NewGitCLI(gitCfg)
	testutil.AssertNil(t, err)
	return client, wc
}

func pushFile(t *testing.T, wc *vcs.GitCLI, uri, branch, name, content string) {
	t.Helper()
	ctx := context.Background()
	repo, err := wc.Checkout(ctx, uri, branch)
	testutil.AssertNil(t, err)
	defer wc.Remove(ctx, repo)
	testutil.AssertNil(t, os.WriteFile(filepath.Join(repo.Path, name), []byte(content), 0o644))
	testutil.AssertNil(t, wc.StageAll(ctx, repo))
	testutil.AssertNil(t, wc.CommitAndPush(ctx, repo, "add "+name, false))
}

func TestLocalBareVCSProjects(t *testing.T) {
	client, _ := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "ALGOSORT", "algo Sorting"))
	exists, err := client.ProjectExists(ctx, "ALGOSORT", "")
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, exists, "project found by key")
	exists, err = client.ProjectExists(ctx, "OTHER", "ALGO sorting")
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, exists, "project found by name")

	testutil.AssertErrorIs(t, client.CreateProject(ctx, "ALGOSORT", "again"), vcs.ErrProjectExists)
	testutil.AssertNil(t, client.DeleteProject(ctx, "ALGOSORT"))
	exists, err = client.ProjectExists(ctx, "ALGOSORT", "algo Sorting")
	testutil.AssertNil(t, err)
	testutil.AssertTrue(t, !exists, "project deleted")
}

func TestLocalBareVCSCopyKeepsSourceBranch(t *testing.T) {
	client, wc := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "SRC", "source"))
	testutil.AssertNil(t, client.CreateProject(ctx, "DST", "target"))
	uri, err := client.CreateRepository(ctx, "SRC", "src-exercise")
	testutil.AssertNil(t, err)
	pushFile(t, wc, uri, "main", "Main.java", "package ${packageName};\n")

	copied, err := client.CopyRepository(ctx, "SRC", "src-exercise", "main", "DST", "dst-exercise")
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, copied, client.URI("DST", "dst-exercise"))

	branch, err := client.GetDefaultBranch(ctx, copied)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, branch, "main")

	repo, err := wc.Checkout(ctx, copied, "")
	testutil.AssertNil(t, err)
	defer wc.Remove(ctx, repo)
	data, err := os.ReadFile(filepath.Join(repo.Path, "Main.java"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "package ${packageName};\n")

	_, err = client.CopyRepository(ctx, "SRC", "src-exercise", "main", "DST", "dst-exercise")
	testutil.AssertErrorIs(t, err, vcs.ErrRepositoryExists)
}

func TestLocalBareVCSRepositorySettings(t *testing.T) {
	client, _ := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "KEY", "settings"))
	uri, err := client.CreateRepository(ctx, "KEY", "key-exercise")
	testutil.AssertNil(t, err)

	protected, err := client.ProtectedBranches(ctx, uri)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, protected, []string{"main"})
	testutil.AssertNil(t, client.UnprotectBranch(ctx, uri, "main"))
	testutil.AssertNil(t, client.UnprotectBranch(ctx, uri, "main"))
	protected, err = client.ProtectedBranches(ctx, uri)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, len(protected), 0)

	testutil.AssertNil(t, client.AddWebhooks(ctx, uri))
	hooks, err := client.Webhooks(ctx, uri)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, hooks, []string{"http://ci.local/hooks/push"})

	testutil.AssertNil(t, client.LockRepository(ctx, uri, "alice", "bob"))
	testutil.AssertNil(t, client.LockRepository(ctx, uri, "alice"))
	users, err := client.ReadOnlyUsers(ctx, uri)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, users, []string{"alice", "bob"})
	testutil.AssertNil(t, client.UnlockRepository(ctx, uri, "alice"))
	users, err = client.ReadOnlyUsers(ctx, uri)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, users, []string{"bob"})

	testutil.AssertNil(t, client.DeleteRepository(ctx, uri))
	_, err = client.GetDefaultBranch(ctx, uri)
	testutil.AssertErrorIs(t, err, vcs.ErrRepositoryNotFound)
}

func TestGitCLIReplaceAndEmptyCommit(t *testing.T) {
	client, wc := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "KEY", "replace"))
	uri, err := client.CreateRepository(ctx, "KEY", "key-solution")
	testutil.AssertNil(t, err)
	pushFile(t, wc, uri, "main", "pom.xml", "<artifactId>${exerciseName}</artifactId>")
	pushFile(t, wc, uri, "main", "gradle-wrapper.jar", "${exerciseName}")

	repo, err := wc.Checkout(ctx, uri, "main")
	testutil.AssertNil(t, err)
	defer wc.Remove(ctx, repo)
	replacements := []vcs.Replacement{{Old: "${exerciseName}", New: "sort2"}}
	testutil.AssertNil(t, wc.ReplaceTextInFiles(ctx, repo, replacements, []string{"gradle-wrapper.jar"}))
	data, err := os.ReadFile(filepath.Join(repo.Path, "pom.xml"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "<artifactId>sort2</artifactId>")
	data, err = os.ReadFile(filepath.Join(repo.Path, "gradle-wrapper.jar"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "${exerciseName}")

	testutil.AssertNil(t, wc.StageAll(ctx, repo))
	testutil.AssertNil(t, wc.CommitAndPush(ctx, repo, "adapt", false))
	testutil.AssertNil(t, wc.CommitAndPush(ctx, repo, "nothing changed", false))
	testutil.AssertNil(t, wc.CommitAndPush(ctx, repo, "empty", true))

	out, err := exec.Command("git", "--git-dir="+filepath.Join(repo.Path, ".git"), "log", "--format=%s", "origin/main").Output()
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(out), "empty\nadapt\nadd gradle-wrapper.jar\nadd pom.xml\n")
}

func TestGitCLIReplaceSkipsExcludedDirectories(t *testing.T) {
	client, wc := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "KEY", "exclusions"))
	uri, err := client.CreateRepository(ctx, "KEY", "key-tests")
	testutil.AssertNil(t, err)

	repo, err := wc.Checkout(ctx, uri, "main")
	testutil.AssertNil(t, err)
	defer wc.Remove(ctx, repo)
	testutil.AssertNil(t, os.MkdirAll(filepath.Join(repo.Path, "docs"), 0o755))
	testutil.AssertNil(t, os.WriteFile(filepath.Join(repo.Path, "docs", "README.md"), []byte("${exerciseName}"), 0o644))
	testutil.AssertNil(t, os.WriteFile(filepath.Join(repo.Path, "Test.java"), []byte("${exerciseName}"), 0o644))

	replacements := []vcs.Replacement{{Old: "${exerciseName}", New: "sort2"}}
	testutil.AssertNil(t, wc.ReplaceTextInFiles(ctx, repo, replacements, []string{"docs"}))
	data, err := os.ReadFile(filepath.Join(repo.Path, "docs", "README.md"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "${exerciseName}")
	data, err = os.ReadFile(filepath.Join(repo.Path, "Test.java"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "sort2")
}

func TestLocalBareVCSCopyEmptySource(t *testing.T) {
	client, wc := newLocalVCS(t)
	ctx := context.Background()

	testutil.AssertNil(t, client.CreateProject(ctx, "SRC", "source"))
	testutil.AssertNil(t, client.CreateProject(ctx, "DST", "target"))
	_, err := client.CreateRepository(ctx, "SRC", "src-tests")
	testutil.AssertNil(t, err)

	copied, err := client.CopyRepository(ctx, "SRC", "src-tests", "main", "DST", "dst-tests")
	testutil.AssertNil(t, err)
	branch, err := client.GetDefaultBranch(ctx, copied)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, branch, "main")
	protected, err := client.ProtectedBranches(ctx, copied)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, protected, []string{"main"})

	pushFile(t, wc, copied, "main", "Test.java", "class Test {}\n")
}
