package sandbox

import (
	"context"
	"fmt"
	"log/slog"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker uses Docker containers for isolation.
	ModeDocker Mode = "docker"
	// ModeHost runs commands directly on the host (no isolation).
	ModeHost Mode = "host"
	// ModeAuto selects Docker if the daemon answers, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// Config holds configuration for sandbox execution.
type Config struct {
	Mode        Mode
	DockerImage string // overrides the per-project image
	Logger      *slog.Logger
}

// NewRunner creates the runner for cfg.Mode. Docker mode fails when the
// daemon is unreachable; auto mode falls back to the host runner.
func NewRunner(ctx context.Context, cfg Config) (Runner, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Mode {
	case ModeHost, "":
		log.Warn("using host runner, commands are not isolated from the host")
		return &HostRunner{}, nil

	case ModeDocker:
		return NewDockerRunner(ctx, cfg)

	case ModeAuto:
		runner, err := NewDockerRunner(ctx, cfg)
		if err != nil {
			log.Warn("docker not available, falling back to host runner", "error", err)
			return &HostRunner{}, nil
		}
		return runner, nil

	default:
		return nil, fmt.Errorf("unknown runner mode: %s", cfg.Mode)
	}
}
