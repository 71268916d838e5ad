package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte(content), 0o644))
}

func TestResolve_NoManifest(t *testing.T) {
	snap := NewResolver(zap.NewNop()).Resolve(t.TempDir())

	assert.Equal(t, DefaultSnapshot().LineLength, snap.LineLength)
	assert.Equal(t, CanonicalToolOrder, snap.EnabledTools)
	assert.False(t, snap.Warning)
	assert.Empty(t, snap.ManifestPath)
}

func TestResolve_ManifestWinsPerField(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
line_length = 88
docstring_style = "numpy"

[complexity]
default = 8
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, 88, snap.LineLength)
	assert.Equal(t, "numpy", snap.DocstringStyle)
	assert.Equal(t, 8, snap.ComplexityCeiling)
	// Undeclared fields keep defaults.
	assert.Equal(t, DefaultSnapshot().UIComplexityCeiling, snap.UIComplexityCeiling)
	assert.False(t, snap.Warning)
	assert.Equal(t, filepath.Join(dir, ManifestName), snap.ManifestPath)
}

func TestResolve_FoundAboveWorkdir(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "line_length = 79\n")
	nested := filepath.Join(root, "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	snap := NewResolver(zap.NewNop()).Resolve(nested)

	assert.Equal(t, 79, snap.LineLength)
}

func TestResolve_TypeInvalidFieldFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
line_length = 88

[complexity]
default = "very low"
ui = 20
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	// The bad field keeps its default; the good fields still apply.
	assert.Equal(t, DefaultSnapshot().ComplexityCeiling, snap.ComplexityCeiling)
	assert.Equal(t, 20, snap.UIComplexityCeiling)
	assert.Equal(t, 88, snap.LineLength)
	assert.True(t, snap.Warning)
}

func TestResolve_MalformedManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "line_length = [[[\n")

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, DefaultSnapshot().LineLength, snap.LineLength)
	assert.True(t, snap.Warning)
}

func TestResolve_UnknownFieldsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
line_length = 90
future_knob = "whatever"

[some_new_section]
x = 1
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, 90, snap.LineLength)
	assert.False(t, snap.Warning)
}

func TestResolve_ToolEnablement(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[tools]
security-scanner = false
docstring-checker = false
formatter = true
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, []string{
		"formatter", "import-sorter", "autofix-linter",
		"type-checker", "complexity-analyzer",
	}, snap.EnabledTools)
	assert.True(t, snap.ToolEnabled("formatter"))
	assert.False(t, snap.ToolEnabled("security-scanner"))
}

func TestResolve_ToolCommandOverride(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[tools.commands]
formatter = ["gofmt", "-w"]
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, []string{"gofmt", "-w"}, snap.ToolCommands["formatter"])
}

func TestResolve_SyntaxCheckers(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[verify]
py = ["python3", "-m", "py_compile"]
rb = ["ruby", "-c"]
`)

	snap := NewResolver(zap.NewNop()).Resolve(dir)

	assert.Equal(t, []string{"python3", "-m", "py_compile"}, snap.SyntaxCheckers[".py"])
	assert.Equal(t, []string{"ruby", "-c"}, snap.SyntaxCheckers[".rb"])
}

func TestCeilingFor(t *testing.T) {
	snap := &Snapshot{
		ComplexityCeiling:   10,
		UIComplexityCeiling: 15,
		UIPathPatterns:      []string{"ui/*", "views"},
	}

	tests := []struct {
		file string
		want int
	}{
		{"core/service.py", 10},
		{"ui/panel.py", 15},
		{"views/detail.py", 15},
		{"uikit/helper.py", 10},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.CeilingFor(tt.file))
		})
	}
}
