package chunk

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hashText computes the 64-bit content digest spec.md §4.1 requires: a
// non-cryptographic hash over the chunk text after normalizing line
// endings to \n and stripping trailing whitespace per line. Stable across
// runs on the same bytes, independent of ambient state.
func hashText(text string) uint64 {
	return xxhash.Sum64String(normalizeForHash(text))
}

func normalizeForHash(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\f\v")
	}
	return strings.Join(lines, "\n")
}
