package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType is the kind of repository checked out in a sandbox. The docker
// runner picks its image from it.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

var manifests = []struct {
	file string
	kind ProjectType
}{
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

var extensions = map[string]ProjectType{
	".go":  ProjectTypeGo,
	".js":  ProjectTypeNode,
	".jsx": ProjectTypeNode,
	".ts":  ProjectTypeNode,
	".tsx": ProjectTypeNode,
	".py":  ProjectTypePython,
	".rs":  ProjectTypeRust,
}

// DetectProjectType looks for a manifest at root, then falls back to counting
// source file extensions. A fresh or freshly cloned sandbox with neither is unknown.
func DetectProjectType(root string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(root, m.file)); err == nil {
			return m.kind
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return ProjectTypeUnknown
	}

	counts := make(map[ProjectType]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if kind, ok := extensions[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			counts[kind]++
		}
	}

	best, bestCount := ProjectTypeUnknown, 0
	for _, kind := range []ProjectType{ProjectTypeGo, ProjectTypeNode, ProjectTypePython, ProjectTypeRust} {
		if counts[kind] > bestCount {
			best, bestCount = kind, counts[kind]
		}
	}
	if bestCount >= 3 {
		return best
	}
	return ProjectTypeUnknown
}
