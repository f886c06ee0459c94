package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ghostbind/internal/build"
	"github.com/Norgate-AV/ghostbind/internal/codes"
	"github.com/Norgate-AV/ghostbind/internal/target"
)

func newManifest(t *testing.T) *Manifest {
	t.Helper()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "libfoo.a")
	require.NoError(t, os.WriteFile(artifact, []byte("lib"), 0o644))

	tr := target.Triple{Arch: "x86_64", Vendor: "unknown", OS: "linux", ABI: "gnu"}

	return &Manifest{
		CrateName:   "foo",
		Kind:        build.StaticLib,
		Artifact:    artifact,
		Headers:     []string{},
		RustcTarget: tr.String(),
		LinkLibs:    LinkLibs(tr),
		LinkSearch:  LinkSearch(dir),
	}
}

func TestLinkLibs(t *testing.T) {
	tests := []struct {
		triple target.Triple
		extra  []string
		want   []string
	}{
		{target.Triple{Arch: "x86_64", Vendor: "unknown", OS: "linux", ABI: "gnu"}, nil, []string{"pthread", "dl", "m", "c"}},
		{target.Triple{Arch: "aarch64", Vendor: "apple", OS: "darwin"}, nil, []string{"System", "pthread", "c"}},
		{target.Triple{Arch: "x86_64", Vendor: "pc", OS: "windows", ABI: "gnu"}, nil, []string{"kernel32", "user32", "shell32", "msvcrt"}},
		{target.Triple{Arch: "x86_64", Vendor: "pc", OS: "windows", ABI: "msvc"}, nil, []string{"kernel32", "user32", "shell32", "msvcrt", "vcruntime", "ucrt"}},
		{target.Triple{Arch: "x86_64", Vendor: "unknown", OS: "freebsd"}, nil, []string{"pthread", "c", "m"}},
		{target.Triple{Arch: "wasm32", Vendor: "unknown", OS: "unknown"}, nil, []string{}},
		{target.Triple{Arch: "x86_64", Vendor: "unknown", OS: "linux", ABI: "gnu"}, []string{"ssl", "m", "ssl"}, []string{"pthread", "dl", "m", "c", "ssl"}},
	}

	for _, tt := range tests {
		t.Run(tt.triple.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, LinkLibs(tt.triple, tt.extra...))
		})
	}
}

func TestLinkSearch(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, LinkSearch("/a", "/b", "/a", ""))
}

func TestEncode_KeyOrderAndEmptyLists(t *testing.T) {
	m := &Manifest{CrateName: "foo", Kind: build.CDyLib, Artifact: "/x/libfoo.so", RustcTarget: "x86_64-unknown-linux-gnu"}

	data, err := m.Encode()
	require.NoError(t, err)

	want := `{
  "crate_name": "foo",
  "kind": "cdylib",
  "artifact": "/x/libfoo.so",
  "headers": [],
  "rustc_target": "x86_64-unknown-linux-gnu",
  "link_libs": [],
  "link_search": []
}
`
	assert.Equal(t, want, string(data))
}

func TestWrite_AndRead(t *testing.T) {
	m := newManifest(t)
	dest := filepath.Join(t.TempDir(), "out", FileName("foo"))

	require.NoError(t, Write(m, dest))

	got, err := Read(dest)
	require.NoError(t, err)
	assert.Equal(t, m, got)
	require.NoError(t, got.Validate())

	var raw map[string]any
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 7)
}

func TestWrite_IdenticalContentUntouched(t *testing.T) {
	m := newManifest(t)
	dest := filepath.Join(t.TempDir(), FileName("foo"))
	require.NoError(t, Write(m, dest))

	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(dest, past, past))

	require.NoError(t, Write(m.Clone(), dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past))

	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_MissingArtifact(t *testing.T) {
	m := newManifest(t)
	require.NoError(t, os.Remove(m.Artifact))
	dest := filepath.Join(t.TempDir(), FileName("foo"))

	err := Write(m, dest)
	assert.ErrorIs(t, err, codes.ErrManifestWriteFailed)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, dest)
}

func TestValidate(t *testing.T) {
	m := newManifest(t)
	require.NoError(t, m.Validate())

	m.Headers = []string{filepath.Join(t.TempDir(), "missing.h")}
	assert.Error(t, m.Validate())

	m = newManifest(t)
	m.Kind = "rlib"
	assert.Error(t, m.Validate())
}

func TestClone_IsDeep(t *testing.T) {
	m := newManifest(t)
	c := m.Clone()
	c.LinkLibs[0] = "changed"

	assert.Equal(t, "pthread", m.LinkLibs[0])
}

func TestImportLib(t *testing.T) {
	m := newManifest(t)
	m.Kind = build.CDyLib
	m.ImportLib = filepath.Join(filepath.Dir(m.Artifact), "foo.dll.lib")

	data, err := m.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"import_lib": `)

	// must exist like the artifact
	assert.Error(t, m.Validate())

	require.NoError(t, os.WriteFile(m.ImportLib, []byte("lib"), 0o644))
	require.NoError(t, m.Validate())

	m.ImportLib = ""
	data, err = m.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "import_lib")
}
