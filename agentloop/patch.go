package agentloop

import "strings"

// DetectStripLevel picks the -p level for a unified diff. Patches generated
// by git include a/ and b/ prefixes in file paths and require -p1; plain
// unified diffs without those prefixes typically require -p0.
func DetectStripLevel(patch string) int {
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "diff --git a/") {
			return 1
		}
		if strings.HasPrefix(line, "--- a/") || strings.HasPrefix(line, "+++ a/") {
			return 1
		}
		if strings.HasPrefix(line, "--- b/") || strings.HasPrefix(line, "+++ b/") {
			return 1
		}
	}
	return 0
}

// PatchChange summarizes one file touched by a patch.
type PatchChange struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // "add", "delete", or "update"
}

// ParsePatchChanges extracts the files a unified diff touches, deduplicated
// in encounter order.
func ParsePatchChanges(patch string) []PatchChange {
	changes := []PatchChange{}
	seen := make(map[string]struct{})
	oldPath := ""
	haveOld := false

	for _, line := range strings.Split(patch, "\n") {
		if rest, ok := strings.CutPrefix(line, "--- "); ok {
			oldPath = strings.TrimSpace(rest)
			haveOld = true
			continue
		}
		rest, ok := strings.CutPrefix(line, "+++ ")
		if !ok || !haveOld {
			continue
		}
		newPath := strings.TrimSpace(rest)
		old := oldPath
		oldPath = ""
		haveOld = false

		var kind, rawPath string
		switch {
		case old == "/dev/null":
			kind, rawPath = "add", newPath
		case newPath == "/dev/null":
			kind, rawPath = "delete", old
		default:
			kind, rawPath = "update", newPath
		}

		path := stripPatchPrefix(rawPath)
		if path == "" {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		changes = append(changes, PatchChange{Path: path, Kind: kind})
	}

	return changes
}

func stripPatchPrefix(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "/dev/null" {
		return ""
	}
	if rest, ok := strings.CutPrefix(trimmed, "a/"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(trimmed, "b/"); ok {
		return rest
	}
	return trimmed
}
