package index

import (
	"path"
	"strings"
)

// resolveLink maps a link target written in source to the note it names.
// candidates are the indexed paths sharing the target's name key. Matching
// ignores case and tries, in order: the path from the vault root, the path
// from the folder of source, and a unique note whose path ends with the
// target. When several notes end with the target the one in the folder of
// source wins. An unresolved link keeps its target as written.
func resolveLink(target, source string, candidates []string) string {
	for _, c := range candidates {
		if strings.EqualFold(c, target) {
			return c
		}
	}

	dir := path.Dir(source)
	if dir != "." {
		rel := path.Join(dir, target)
		for _, c := range candidates {
			if strings.EqualFold(c, rel) {
				return c
			}
		}
	}

	suffix := "/" + strings.ToLower(target)
	var matches []string
	for _, c := range candidates {
		if strings.HasSuffix(strings.ToLower(c), suffix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return target
	case 1:
		return matches[0]
	}
	for _, m := range matches {
		if path.Dir(m) == dir {
			return m
		}
	}
	return target
}
