// Package crate reads what the pipeline needs to know about a Rust crate
// straight from its Cargo.toml: identity, library crate types, where cargo
// will put its output and which lockfile pins its dependencies.
package crate

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// Info describes one library crate
type Info struct {
	// Package name as declared in Cargo.toml
	Name string

	// Library target name with '-' replaced by '_'; artifacts and headers use it
	LibName string

	CrateTypes []string

	// Absolute path to the crate's Cargo.toml
	ManifestPath string

	// Crate directory
	Dir string

	// Directory holding the workspace Cargo.toml, or Dir for standalone crates
	WorkspaceRoot string

	// Cargo output root (<target-dir>)
	TargetDir string

	// Absolute path to Cargo.lock, empty if none exists yet
	Lockfile string

	// Library entry point relative to Dir
	LibPath string
}

type cargoManifest struct {
	Package *struct {
		Name string `toml:"name"`
	} `toml:"package"`
	Lib *struct {
		Name      string   `toml:"name"`
		Path      string   `toml:"path"`
		CrateType []string `toml:"crate-type"`
	} `toml:"lib"`
	Workspace *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`
}

func readManifest(path string) (*cargoManifest, error) {
	var m cargoManifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &m, nil
}

// Inspect loads crate information from manifestPath. pkg selects a workspace
// member when manifestPath is a workspace root. targetDir overrides the cargo
// output root; otherwise CARGO_TARGET_DIR or <workspace>/target is used.
func Inspect(manifestPath, pkg, targetDir string) (*Info, error) {
	manifestPath, err := filepath.Abs(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	m, err := readManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	if pkg != "" && (m.Package == nil || m.Package.Name != pkg) {
		memberPath, member, err := findMember(manifestPath, m, pkg)
		if err != nil {
			return nil, err
		}

		manifestPath, m = memberPath, member
	}

	if m.Package == nil || m.Package.Name == "" {
		return nil, fmt.Errorf("%s has no [package]; select a workspace member with --package", manifestPath)
	}

	info := &Info{
		Name:         m.Package.Name,
		LibName:      strings.ReplaceAll(m.Package.Name, "-", "_"),
		ManifestPath: manifestPath,
		Dir:          filepath.Dir(manifestPath),
		LibPath:      filepath.Join("src", "lib.rs"),
	}

	if m.Lib != nil {
		if m.Lib.Name != "" {
			info.LibName = strings.ReplaceAll(m.Lib.Name, "-", "_")
		}

		if m.Lib.Path != "" {
			info.LibPath = filepath.FromSlash(m.Lib.Path)
		}

		info.CrateTypes = append(info.CrateTypes, m.Lib.CrateType...)
	}

	info.WorkspaceRoot = workspaceRoot(info.Dir, m)

	if lock := utils.FindUp(info.Dir, "Cargo.lock"); lock != "" {
		info.Lockfile = lock
	}

	switch {
	case targetDir != "":
		info.TargetDir = targetDir
	case os.Getenv("CARGO_TARGET_DIR") != "":
		info.TargetDir = os.Getenv("CARGO_TARGET_DIR")
	default:
		info.TargetDir = filepath.Join(info.WorkspaceRoot, "target")
	}

	if !filepath.IsAbs(info.TargetDir) {
		info.TargetDir = filepath.Join(info.WorkspaceRoot, info.TargetDir)
	}

	return info, nil
}

// Kind picks the artifact kind to link. An explicit preference must be one of
// the declared crate types; otherwise staticlib wins over cdylib.
func (i *Info) Kind(pref build.Kind) (build.Kind, error) {
	if pref != "" {
		if !slices.Contains(i.CrateTypes, string(pref)) {
			return "", codes.New(codes.ErrArtifactNotFound,
				"crate %s does not declare crate-type %q (declared: %v)", i.Name, pref, i.CrateTypes)
		}

		return pref, nil
	}

	for _, k := range []build.Kind{build.StaticLib, build.CDyLib} {
		if slices.Contains(i.CrateTypes, string(k)) {
			return k, nil
		}
	}

	return "", codes.New(codes.ErrArtifactNotFound,
		"no library artifacts for crate %s. Make sure your crate produces a staticlib or cdylib", i.Name)
}

// findMember locates a workspace member package by name
func findMember(rootManifest string, root *cargoManifest, pkg string) (string, *cargoManifest, error) {
	if root.Workspace == nil {
		return "", nil, fmt.Errorf("package %q not found: %s is not a workspace", pkg, rootManifest)
	}

	rootDir := filepath.Dir(rootManifest)
	for _, pattern := range root.Workspace.Members {
		dirs, err := filepath.Glob(filepath.Join(rootDir, filepath.FromSlash(pattern)))
		if err != nil {
			return "", nil, fmt.Errorf("invalid workspace member pattern %q: %w", pattern, err)
		}

		for _, dir := range dirs {
			path := filepath.Join(dir, "Cargo.toml")
			if _, err := os.Stat(path); err != nil {
				continue
			}

			m, err := readManifest(path)
			if err != nil {
				return "", nil, err
			}

			if m.Package != nil && m.Package.Name == pkg {
				return path, m, nil
			}
		}
	}

	return "", nil, fmt.Errorf("package %q not found in workspace %s", pkg, rootManifest)
}

// workspaceRoot returns the nearest directory at or above dir whose Cargo.toml
// declares [workspace], or dir itself.
func workspaceRoot(dir string, m *cargoManifest) string {
	if m.Workspace != nil {
		return dir
	}

	for cur := filepath.Dir(dir); ; cur = filepath.Dir(cur) {
		path := filepath.Join(cur, "Cargo.toml")
		if _, err := os.Stat(path); err == nil {
			if parent, err := readManifest(path); err == nil && parent.Workspace != nil {
				return cur
			}
		}

		if filepath.Dir(cur) == cur {
			return dir
		}
	}
}
