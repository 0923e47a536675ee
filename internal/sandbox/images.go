package sandbox

import (
	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
)

// DefaultImage carries the coreutils the allow-listed commands need.
const DefaultImage = "alpine:3"

// GetDockerImage returns the image for a project type. A configured image
// always wins.
func GetDockerImage(projectType workspace.ProjectType, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}

	switch projectType {
	case workspace.ProjectTypeGo:
		return "golang:alpine"
	case workspace.ProjectTypeNode:
		return "node:alpine"
	case workspace.ProjectTypePython:
		return "python:alpine"
	case workspace.ProjectTypeRust:
		return "rust:alpine"
	default:
		return DefaultImage
	}
}
