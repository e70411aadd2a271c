package reload

import (
	"path/filepath"
	"strings"
)

// Identity is recomputed for every reload attempt.
type Identity struct {
	SourcePath          string
	DeclaredName        string
	NormalizedName      string
	PriorNormalizedName string
}

// Normalize lower-cases and trims a declared name and replaces each space with a dash.
// Blank input yields "".
func Normalize(declared string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(declared)), " ", "-")
}

// installable reports whether name can be used as a single entry of the install
// directory: no separators, no "." or "..", not hidden.
func installable(name string) bool {
	return name != "" &&
		!strings.HasPrefix(name, ".") &&
		filepath.IsLocal(name) &&
		name == filepath.Base(name) &&
		!strings.ContainsAny(name, `/\`)
}
