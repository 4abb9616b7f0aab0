package iso

import (
	"strconv"
	"strings"
)

// splitPath breaks p into its non-empty segments. "." segments are
// dropped; ".." is kept for the resolver.
func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		out = append(out, seg)
	}
	return out
}

// cleanPath returns the canonical absolute form of p
func cleanPath(p string) string {
	var stack []string
	for _, seg := range splitPath(p) {
		if seg == ".." {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}
		stack = append(stack, seg)
	}
	return "/" + strings.Join(stack, "/")
}

// rawSectorPrefix names files that address sectors directly, as in
// "/sce_lbn0x10_size0x800"
const rawSectorPrefix = "sce_lbn"

// parseRawSectorPath recognises a raw sector path and returns the first
// sector and the byte length it covers.
func parseRawSectorPath(p string) (start, size uint32, ok bool) {
	segs := splitPath(p)
	if len(segs) != 1 || !strings.HasPrefix(strings.ToLower(segs[0]), rawSectorPrefix) {
		return 0, 0, false
	}

	rest := strings.ToLower(segs[0][len(rawSectorPrefix):])
	i := strings.Index(rest, "_size")
	if i < 0 {
		return 0, 0, false
	}

	start, ok = parseHex(rest[:i])
	if !ok {
		return 0, 0, false
	}
	size, ok = parseHex(rest[i+len("_size"):])
	if !ok {
		return 0, 0, false
	}
	return start, size, true
}

func parseHex(s string) (uint32, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
