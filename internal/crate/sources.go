package crate

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ffiPattern matches items exported over the C ABI
var ffiPattern = regexp.MustCompile(`(?m)(#\[(unsafe\()?no_mangle\)?\]|\bextern\s+"C"\s+fn\b|#\[export_name\s*=)`)

// HasFFI reports whether any Rust source of the crate exports a C ABI item.
// A crate without such items has nothing for a header generator to emit.
func (i *Info) HasFFI() (bool, error) {
	found := false

	err := i.walkSources(func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		if ffiPattern.Match(data) {
			found = true
			return fs.SkipAll
		}

		return nil
	})

	return found, err
}

// SourceDigest hashes Cargo.toml, build.rs and every .rs file under the
// library's source directory, in lexical path order.
func (i *Info) SourceDigest() (string, error) {
	h := sha256.New()

	files := []string{i.ManifestPath}
	if _, err := os.Stat(filepath.Join(i.Dir, "build.rs")); err == nil {
		files = append(files, filepath.Join(i.Dir, "build.rs"))
	}

	err := i.walkSources(func(path string) error {
		files = append(files, path)
		return nil
	})
	if err != nil {
		return "", err
	}

	for _, path := range files {
		rel, err := filepath.Rel(i.Dir, path)
		if err != nil {
			rel = path
		}

		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})

		if err := hashInto(h, path); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (i *Info) walkSources(fn func(path string) error) error {
	root := filepath.Join(i.Dir, filepath.Dir(i.LibPath))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && (d.Name() == "target" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".rs") {
			return nil
		}

		return fn(path)
	})
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func hashInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
