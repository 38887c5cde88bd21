// Package validator implements the folder validation and reconciliation
// engine: path-chain cycle detection, depth limiting, child-set diffing,
// and the job manager driving validation runs over library trees.
package validator

import (
	"path/filepath"
	"strings"
)

// Normalize canonicalizes a raw filesystem path so identical physical
// locations compare equal regardless of surface spelling. Empty, nil-like
// and whitespace-only input normalizes to "" and must never be inserted
// into any tracking set. Pure string manipulation, no filesystem I/O.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	cleaned := filepath.ToSlash(filepath.Clean(trimmed))

	// Clean leaves a trailing separator only on the root itself
	if len(cleaned) > 1 {
		cleaned = strings.TrimSuffix(cleaned, "/")
	}

	return cleaned
}
