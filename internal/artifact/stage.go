package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// Stage copies a, and its import library if any, into destDir and returns
// the staged artifact. Each copy is written to a temporary file and renamed,
// so readers never observe a partially written library.
func Stage(ctx context.Context, a *Artifact, destDir string) (*Artifact, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	staged := &Artifact{Kind: a.Kind}

	if a.ImportLib != "" {
		dst, err := stageFile(ctx, a.ImportLib, destDir)
		if err != nil {
			return nil, err
		}
		staged.ImportLib = dst
	}

	dst, err := stageFile(ctx, a.Path, destDir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to stat staged artifact: %w", err)
	}

	staged.Path = dst
	staged.Size = info.Size()
	staged.ModTime = info.ModTime()

	return staged, nil
}

func stageFile(ctx context.Context, src, destDir string) (string, error) {
	dst := filepath.Join(destDir, filepath.Base(src))

	err := utils.Retry(ctx, func() error {
		err := copyFile(src, dst)
		if errors.Is(err, fs.ErrPermission) {
			return utils.Permanent(err)
		}

		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to stage %s: %w", src, err)
	}

	return dst, nil
}

// copyFile copies src to dst via a temp file in dst's directory
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, srcFile); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	// Preserve file permissions
	if err := os.Chmod(tmp.Name(), srcInfo.Mode().Perm()); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dst)
}
