package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Norgate-AV/ghostbind/internal/codes"
)

// Write persists m at dest. The artifact must be readable at this point; a
// manifest never points at a library that is not there. The file is replaced
// atomically and left untouched when its content would not change.
func Write(m *Manifest, dest string) error {
	f, err := os.Open(m.Artifact)
	if err != nil {
		return codes.Wrap(codes.ErrManifestWriteFailed, err, "artifact is not readable")
	}
	f.Close()

	data, err := m.Encode()
	if err != nil {
		return codes.Wrap(codes.ErrManifestWriteFailed, err, "failed to encode manifest")
	}

	if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, data) {
		return nil
	}

	if err := writeAtomic(dest, data); err != nil {
		return codes.Wrap(codes.ErrManifestWriteFailed, err, "failed to write %s", dest)
	}

	return nil
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
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

	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}
