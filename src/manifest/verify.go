package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"stack-backup/src/checksum"
)

// Discrepancy reasons.
const (
	ReasonMissing          = "missing"
	ReasonChecksumMismatch = "checksum_mismatch"
	ReasonSizeMismatch     = "size_mismatch"
	ReasonUnexpected       = "unexpected"
)

// Discrepancy names one way a backup directory disagrees with its manifest.
type Discrepancy struct {
	Name   string `json:"name"`   // logical unit name, or file name for unexpected files
	Path   string `json:"path"`   // path relative to the backup directory
	Reason string `json:"reason"` // missing|checksum_mismatch|size_mismatch|unexpected
	Detail string `json:"detail,omitempty"`
}

// Verify recomputes every entry's size and checksum against the files in
// dir and checks that no files exist beyond those the manifest declares.
// An intact backup yields an empty slice.
func Verify(m Manifest, dir string) ([]Discrepancy, error) {
	var out []Discrepancy
	declared := map[string]bool{FileName: true}

	for _, e := range m.Entries {
		declared[e.Path] = true
		full := filepath.Join(dir, e.Path)
		info, err := os.Stat(full)
		if err != nil {
			out = append(out, Discrepancy{Name: e.Name, Path: e.Path, Reason: ReasonMissing, Detail: err.Error()})
			continue
		}
		if info.Size() != e.Size {
			out = append(out, Discrepancy{Name: e.Name, Path: e.Path, Reason: ReasonSizeMismatch})
			continue
		}
		sum, err := checksum.File(full)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(sum, e.Checksum) {
			out = append(out, Discrepancy{Name: e.Name, Path: e.Path, Reason: ReasonChecksumMismatch})
		}
	}

	// The entry set must exactly equal the directory contents: flag files
	// the manifest does not account for.
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
			continue
		}
		if !declared[f.Name()] {
			out = append(out, Discrepancy{Name: f.Name(), Path: f.Name(), Reason: ReasonUnexpected})
		}
	}
	return out, nil
}
