package provision

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"exforge/internal/common/storage"
	"exforge/internal/exercise/model"
	apperrors "exforge/pkg/errors"
	"exforge/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	defaultArchiveKeyPrefix = "exercises"
	archiveObjectName       = "archive.tar.zst"
)

// ArchiveImporter unpacks an uploaded exercise archive into repository checkouts.
// The archive is a zstd compressed tar whose top-level directories are named
// after the repository types (exercise, solution, tests).
type ArchiveImporter struct {
	storage   storage.ObjectStorage
	bucket    string
	keyPrefix string
}

func NewArchiveImporter(obj storage.ObjectStorage, bucket, keyPrefix string) *ArchiveImporter {
	if keyPrefix == "" {
		keyPrefix = defaultArchiveKeyPrefix
	}
	return &ArchiveImporter{storage: obj, bucket: bucket, keyPrefix: keyPrefix}
}

// ObjectPrefix is the storage prefix owning every object of an exercise.
func ObjectPrefix(keyPrefix string, exerciseID int64) string {
	if keyPrefix == "" {
		keyPrefix = defaultArchiveKeyPrefix
	}
	return fmt.Sprintf("%s/%d/", keyPrefix, exerciseID)
}

// ObjectKey returns where the archive of an exercise is stored.
func (a *ArchiveImporter) ObjectKey(exerciseID int64) string {
	return ObjectPrefix(a.keyPrefix, exerciseID) + archiveObjectName
}

// Extract writes the archive entries of each repository type into dirs.
// Entries for repository types missing from dirs are skipped.
func (a *ArchiveImporter) Extract(ctx context.Context, exerciseID int64, dirs map[model.RepositoryType]string) error {
	key := a.ObjectKey(exerciseID)
	reader, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "open archive %s failed", key)
	}
	defer reader.Close()

	zr, err := zstd.NewReader(reader)
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "create zstd reader failed")
	}
	defer zr.Close()

	files := 0
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "read tar entry failed")
		}
		repoType, rel, ok := splitEntry(hdr.Name)
		if !ok {
			continue
		}
		dstDir, ok := dirs[repoType]
		if !ok {
			continue
		}
		target, err := entryTarget(dstDir, rel)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "create dir failed")
			}
		case tar.TypeReg:
			if err := writeEntry(target, tr, fs.FileMode(hdr.Mode)); err != nil {
				return err
			}
			files++
		default:
			// links and devices are not part of exercise archives
		}
	}
	logger.Info(ctx, "exercise archive extracted", zap.String("object", key), zap.Int("files", files))
	return nil
}

func splitEntry(name string) (model.RepositoryType, string, bool) {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	head, rest, found := strings.Cut(name, "/")
	if !found || rest == "" {
		return "", "", false
	}
	repoType := model.RepositoryType(head)
	for _, t := range model.BaseRepositoryTypes {
		if t == repoType {
			return repoType, rest, true
		}
	}
	return "", "", false
}

func entryTarget(dstDir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.New(apperrors.ArchiveImportFailed).WithMessage("invalid tar entry path")
	}
	target := filepath.Join(dstDir, clean)
	if !strings.HasPrefix(target, filepath.Clean(dstDir)+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.ArchiveImportFailed).WithMessage("tar entry escape detected")
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git"+string(filepath.Separator)) {
		return "", apperrors.New(apperrors.ArchiveImportFailed).WithMessage("archive must not contain git metadata")
	}
	return target, nil
}

func writeEntry(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "create parent dir failed")
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "create file failed")
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return apperrors.Wrapf(err, apperrors.ArchiveImportFailed, "write file failed")
	}
	return file.Close()
}
