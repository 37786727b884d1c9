package provision_test

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"exforge/internal/exercise/model"
	"exforge/internal/exercise/provision"
	"exforge/internal/testutil"
	apperrors "exforge/pkg/errors"

	"github.com/klauspost/compress/zstd"
)

type archiveEntry struct {
	name string
	body string
	dir  bool
}

func buildArchive(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	testutil.AssertNil(t, err)
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		testutil.AssertNil(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			testutil.AssertNil(t, err)
		}
	}
	testutil.AssertNil(t, tw.Close())
	testutil.AssertNil(t, zw.Close())
	return buf.Bytes()
}

func TestArchiveImporterExtractsPerRepository(t *testing.T) {
	store := testutil.NewMemoryStorage()
	importer := provision.NewArchiveImporter(store, "exercises-bucket", "")
	testutil.AssertEqual(t, importer.ObjectKey(7), "exercises/7/archive.tar.zst")
	store.Put("exercises-bucket", importer.ObjectKey(7), buildArchive(t, []archiveEntry{
		{name: "exercise/", dir: true},
		{name: "exercise/src/${packageNameFolder}/Sort.java", body: "package ${packageName};"},
		{name: "./tests/SortTest.java", body: "class SortTest {}"},
		{name: "solution/README.md", body: "solution"},
		{name: "README.md", body: "ignored"},
		{name: "docs/guide.md", body: "ignored"},
	}))

	exerciseDir, testsDir := t.TempDir(), t.TempDir()
	err := importer.Extract(context.Background(), 7, map[model.RepositoryType]string{
		model.RepositoryTemplate: exerciseDir,
		model.RepositoryTests:    testsDir,
	})
	testutil.AssertNil(t, err)

	data, err := os.ReadFile(filepath.Join(exerciseDir, "src", "${packageNameFolder}", "Sort.java"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "package ${packageName};")
	data, err = os.ReadFile(filepath.Join(testsDir, "SortTest.java"))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, string(data), "class SortTest {}")
	_, err = os.Stat(filepath.Join(exerciseDir, "README.md"))
	testutil.AssertTrue(t, os.IsNotExist(err), "top-level files are not extracted")
}

func TestArchiveImporterRejectsEscapingEntries(t *testing.T) {
	for _, name := range []string{"exercise/../../escape.txt", "exercise/.git/config"} {
		t.Run(name, func(t *testing.T) {
			store := testutil.NewMemoryStorage()
			importer := provision.NewArchiveImporter(store, "b", "archives")
			store.Put("b", importer.ObjectKey(3), buildArchive(t, []archiveEntry{{name: name, body: "x"}}))

			err := importer.Extract(context.Background(), 3, map[model.RepositoryType]string{model.RepositoryTemplate: t.TempDir()})
			testutil.AssertCode(t, err, apperrors.ArchiveImportFailed)
		})
	}
}

func TestArchiveImporterMissingObject(t *testing.T) {
	importer := provision.NewArchiveImporter(testutil.NewMemoryStorage(), "b", "")
	err := importer.Extract(context.Background(), 1, map[model.RepositoryType]string{})
	testutil.AssertCode(t, err, apperrors.ArchiveImportFailed)
}
