package tools

import "github.com/fyrsmithlabs/remedyd/internal/config"

// Registry returns every adapter descriptor in canonical execution
// order: all Mutating adapters first (formatter, then import-sorter,
// then autofix-linter, each assuming its predecessor's normalized
// output), then the Observational ones. The order is deterministic for
// identical inputs.
func Registry() []Descriptor {
	return []Descriptor{
		formatterDescriptor(),
		importSorterDescriptor(),
		autofixLinterDescriptor(),
		typeCheckerDescriptor(),
		securityScannerDescriptor(),
		complexityAnalyzerDescriptor(),
		docstringCheckerDescriptor(),
	}
}

// Enabled filters the registry by the snapshot's enabled set, keeping
// registry order regardless of manifest key order.
func Enabled(snap *config.Snapshot) []Descriptor {
	var out []Descriptor
	for _, d := range Registry() {
		if snap.ToolEnabled(d.Name) {
			out = append(out, d)
		}
	}
	return out
}
