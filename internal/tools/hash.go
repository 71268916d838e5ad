package tools

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"sort"
)

// fileDigests hashes the content of each changeset file relative to
// workdir. Missing files hash to the zero digest so created/deleted
// files still show up as modifications.
func fileDigests(workdir string, files []string) map[string][sha256.Size]byte {
	digests := make(map[string][sha256.Size]byte, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(workdir, filepath.FromSlash(f)))
		if err != nil {
			digests[f] = [sha256.Size]byte{}
			continue
		}
		digests[f] = sha256.Sum256(data)
	}
	return digests
}

// modifiedFiles returns the files whose digest changed, sorted.
func modifiedFiles(before, after map[string][sha256.Size]byte) []string {
	var changed []string
	for f, b := range before {
		if after[f] != b {
			changed = append(changed, f)
		}
	}
	sort.Strings(changed)
	return changed
}
