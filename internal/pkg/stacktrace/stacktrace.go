// Package stacktrace shortens runtime stacks to the frames of this module.
package stacktrace

import "strings"

// InternalPaths returns "internal/<pkg>/<file>.go:<line>" for every frame of
// raw that points into an internal package, in stack order.
func InternalPaths(raw []byte) []string {
	lines := strings.Split(string(raw), "\n")
	paths := make([]string, 0, len(lines)/2)

	for _, line := range lines {
		line = strings.TrimSpace(line)

		idx := strings.Index(line, ".go:")
		if idx == -1 {
			continue
		}

		loc, _, _ := strings.Cut(line, " ")
		_, rel, ok := strings.Cut(loc, "/internal/")
		if !ok {
			continue
		}
		paths = append(paths, "internal/"+rel)
	}

	return paths
}
