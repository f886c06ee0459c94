package manifest

import (
	"github.com/Norgate-AV/ghostbind/internal/target"
	"github.com/Norgate-AV/ghostbind/internal/utils"
)

// systemLibs are the native libraries a Rust staticlib needs from the platform
var systemLibs = map[string][]string{
	"linux":   {"pthread", "dl", "m", "c"},
	"android": {"dl", "m", "c"},
	"darwin":  {"System", "pthread", "c"},
	"ios":     {"System", "pthread", "c"},
	"windows": {"kernel32", "user32", "shell32", "msvcrt"},
	"freebsd": {"pthread", "c", "m"},
	"netbsd":  {"pthread", "c", "m"},
}

// abiLibs refine the OS row for a specific ABI
var abiLibs = map[string][]string{
	"msvc": {"vcruntime", "ucrt"},
}

// LinkLibs returns the system libraries for t followed by extra, deduplicated
// with first occurrence kept.
func LinkLibs(t target.Triple, extra ...string) []string {
	libs := append([]string{}, systemLibs[t.OS]...)
	if t.OS == "windows" {
		libs = append(libs, abiLibs[t.ABI]...)
	}

	libs = append(libs, extra...)

	return utils.DedupStrings(libs)
}

// LinkSearch returns the artifact directory followed by extra search paths
func LinkSearch(artifactDir string, extra ...string) []string {
	return utils.DedupStrings(append([]string{artifactDir}, extra...))
}
