package receiver

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rescp17/bdx/pkg/transfer"
)

// ResolvePath maps a file designator to a path under root. Designators are
// slash-separated and may name subdirectories, but never leave root.
func ResolvePath(root, designator string) (string, error) {
	if designator == "" || strings.ContainsRune(designator, 0) {
		return "", fmt.Errorf("%w: invalid designator %q", transfer.ErrDesignatorUnknown, designator)
	}
	// Rooting the designator first makes Clean drop any leading "..".
	rel := filepath.Clean(string(filepath.Separator) + filepath.FromSlash(designator))
	if rel == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid designator %q", transfer.ErrDesignatorUnknown, designator)
	}

	cleanRoot := filepath.Clean(root)
	outputPath := filepath.Join(cleanRoot, rel)
	if !strings.HasPrefix(outputPath, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid output path: %s", outputPath)
	}
	return outputPath, nil
}
