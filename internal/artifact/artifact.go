// Package artifact locates the library cargo produced for a target and
// stages it into the cache layout.
package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/target"
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// Artifact is a library file produced by cargo
type Artifact struct {
	Kind    build.Kind
	Path    string
	Size    int64
	ModTime time.Time

	// Import library next to a Windows DLL; empty when there is none
	ImportLib string
}

// pattern is one (prefix, extension) naming convention
type pattern struct {
	prefix string
	ext    string
}

func (p pattern) fileName(libName string) string {
	return p.prefix + libName + p.ext
}

// Family groups operating systems that share library naming conventions
type Family string

const (
	Unix    Family = "unix"
	Darwin  Family = "darwin"
	Windows Family = "windows"
	Wasm    Family = "wasm"
)

type tableKey struct {
	family Family
	kind   build.Kind
}

// patterns is the only place artifact naming is described. Order within a
// row is search order.
var patterns = map[tableKey][]pattern{
	{Unix, build.StaticLib}:    {{"lib", ".a"}},
	{Unix, build.CDyLib}:       {{"lib", ".so"}},
	{Darwin, build.StaticLib}:  {{"lib", ".a"}},
	{Darwin, build.CDyLib}:     {{"lib", ".dylib"}},
	{Windows, build.StaticLib}: {{"", ".lib"}, {"lib", ".a"}},
	{Windows, build.CDyLib}:    {{"", ".dll"}},
	{Wasm, build.StaticLib}:    {{"lib", ".a"}},
	{Wasm, build.CDyLib}:       {{"", ".wasm"}},
}

// importPatterns name the import library a linker needs for a dynamic
// library: MSVC writes foo.dll.lib, the GNU toolchain libfoo.dll.a.
var importPatterns = map[Family][]pattern{
	Windows: {{"", ".dll.lib"}, {"lib", ".dll.a"}},
}

// FamilyOf classifies a native triple by its naming conventions
func FamilyOf(t target.Triple) (Family, error) {
	if t.Arch == "wasm32" || t.Arch == "wasm64" {
		return Wasm, nil
	}

	switch t.OS {
	case "linux", "freebsd", "netbsd", "openbsd", "android":
		return Unix, nil
	case "darwin", "ios":
		return Darwin, nil
	case "windows":
		return Windows, nil
	case "unknown", "wasi", "wasip1", "wasip2":
		return Wasm, nil
	default:
		return "", codes.New(codes.ErrUnsupportedTarget, "no artifact naming convention for %s", t)
	}
}

// FileNames returns the candidate file names for a crate, in search order
func FileNames(crateName string, kind build.Kind, t target.Triple) ([]string, error) {
	family, err := FamilyOf(t)
	if err != nil {
		return nil, err
	}

	row, ok := patterns[tableKey{family, kind}]
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	libName := strings.ReplaceAll(crateName, "-", "_")
	names := make([]string, 0, len(row))
	for _, p := range row {
		names = append(names, p.fileName(libName))
	}

	return names, nil
}

// OutputDir is where cargo writes artifacts for a triple and profile
func OutputDir(outputRoot string, t target.Triple, profile build.Profile) string {
	return filepath.Join(outputRoot, t.String(), profile.Dir())
}

// Resolve finds the artifact cargo produced under outputRoot. When several
// candidates exist the newest one wins, ties broken by path.
func Resolve(ctx context.Context, crateName string, kind build.Kind, t target.Triple, profile build.Profile, outputRoot string) (*Artifact, error) {
	names, err := FileNames(crateName, kind, t)
	if err != nil {
		return nil, err
	}

	dir := OutputDir(outputRoot, t, profile)

	var candidates []*Artifact
	searched := make([]string, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)
		searched = append(searched, path)

		var info fs.FileInfo
		err := utils.Retry(ctx, func() error {
			var err error
			info, err = os.Stat(path)
			return err
		})
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, codes.Wrap(codes.ErrArtifactNotFound, err, "failed to stat %s", path)
		}

		if info.IsDir() {
			continue
		}

		candidates = append(candidates, &Artifact{
			Kind:    kind,
			Path:    path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	if len(candidates) == 0 {
		return nil, &codes.Error{
			Kind:  codes.ErrArtifactNotFound,
			Msg:   fmt.Sprintf("no %s for crate %s in %s", kind, crateName, dir),
			Paths: searched,
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].ModTime.Equal(candidates[j].ModTime) {
			return candidates[i].ModTime.After(candidates[j].ModTime)
		}

		return candidates[i].Path < candidates[j].Path
	})

	a := candidates[0]
	if kind == build.CDyLib {
		importLib, err := findImportLib(ctx, crateName, t, dir)
		if err != nil {
			return nil, err
		}
		a.ImportLib = importLib
	}

	return a, nil
}

// findImportLib returns the import library in dir for a dynamic library, or
// "" when the target has none
func findImportLib(ctx context.Context, crateName string, t target.Triple, dir string) (string, error) {
	family, err := FamilyOf(t)
	if err != nil {
		return "", err
	}

	libName := strings.ReplaceAll(crateName, "-", "_")
	for _, p := range importPatterns[family] {
		path := filepath.Join(dir, p.fileName(libName))

		err := utils.Retry(ctx, func() error {
			_, err := os.Stat(path)
			return err
		})
		if err == nil {
			return path, nil
		}

		if !os.IsNotExist(err) {
			return "", codes.Wrap(codes.ErrArtifactNotFound, err, "failed to stat %s", path)
		}
	}

	return "", nil
}
