package fsutil

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy wraps the mandatory ValidatePath rules with an optional allowlist
// of glob patterns a domain may configure (e.g. "generated/**", "*.md").
// The allowlist is a strictly additive restriction on top of the safety
// contract — an empty list imposes no further restriction.
type Policy struct {
	AllowedWriteGlobs []string
}

// Validate runs the mandatory safety-contract checks, then — if any
// allowed-write globs are configured — requires path to match at least one
// of them.
func (p Policy) Validate(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if len(p.AllowedWriteGlobs) == 0 {
		return nil
	}
	for _, pattern := range p.AllowedWriteGlobs {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return nil
		}
	}
	return fmt.Errorf("path %q does not match any allowed_write_globs pattern", path)
}
