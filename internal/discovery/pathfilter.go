package discovery

import "strings"

// PathFilter selects snapshots whose working directory lies under a root.
//
// Matching is lexical and component-wise: no symlink is resolved and nothing
// is canonicalized, but "/mnt/old" matches "/mnt/old" and "/mnt/old/sub"
// while it does not match "/mnt/old2". Empty and "." components are ignored
// on both sides, ".." is compared literally.
type PathFilter struct {
	root []string
}

// NewPathFilter builds a filter for the given detection path.
func NewPathFilter(root string) PathFilter {
	return PathFilter{root: components(root)}
}

// Match reports whether the snapshot's working directory is under the root.
func (f PathFilter) Match(s Snapshot) bool {
	return hasComponentPrefix(components(s.Cwd), f.root)
}

// Under reports whether path lies under root using PathFilter semantics.
func Under(path, root string) bool {
	return hasComponentPrefix(components(path), components(root))
}

// components splits p into path components. An absolute path starts with the
// "/" component so it never matches a relative root and vice versa.
func components(p string) []string {
	var out []string
	if strings.HasPrefix(p, "/") {
		out = append(out, "/")
	}
	for _, c := range strings.Split(p, "/") {
		if c == "" || c == "." {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasComponentPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i, c := range prefix {
		if path[i] != c {
			return false
		}
	}
	return true
}
