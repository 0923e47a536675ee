package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/gitsandbox/internal/workspace"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"
)

const containerWorkdir = "/workspace"

// Used inside the container when the server runs as root or has no numeric ids.
const (
	unprivilegedUID = 1000
	unprivilegedGID = 1000
)

// DockerRunner runs commands in throwaway containers with the sandbox
// bind-mounted at /workspace.
type DockerRunner struct {
	client *client.Client
	config Config
	log    *slog.Logger
}

// NewDockerRunner creates a Docker-based runner and checks the daemon answers.
func NewDockerRunner(ctx context.Context, config Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon not accessible: %w", err)
	}

	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DockerRunner{client: cli, config: config, log: log.With("component", "docker")}, nil
}

// RunCmd runs the command in a fresh container and removes it afterwards.
func (r *DockerRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	imageName := GetDockerImage(workspace.DetectProjectType(dir), r.config)
	if err := r.ensureImage(ctx, imageName); err != nil {
		return Result{}, fmt.Errorf("failed to ensure image %s: %w", imageName, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	uid, gid := containerUser(os.Getuid(), os.Getgid())
	if os.Getuid() == 0 {
		// The sandbox is root-owned; hand it to the container user.
		if err := chownTree(absDir, uid, gid); err != nil {
			return Result{}, fmt.Errorf("failed to prepare sandbox ownership: %w", err)
		}
	}

	containerConfig := &container.Config{
		Image:      imageName,
		Cmd:        append([]string{name}, args...),
		WorkingDir: containerWorkdir,
		// Files created in the bind mount must stay removable by this process.
		User:            fmt.Sprintf("%d:%d", uid, gid),
		Env:             []string{"HOME=/tmp"},
		NetworkDisabled: true,
	}

	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: absDir,
				Target: containerWorkdir,
			},
		},
		Resources: container.Resources{
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 1024},
			},
		},
		SecurityOpt:    []string{"no-new-privileges"},
		CapDrop:        []string{"ALL"},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m",
		},
	}

	createResp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := createResp.ID

	// Removed here rather than with AutoRemove so the logs are still readable after exit.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.log.Debug("failed to remove container", "container", containerID, "error", err)
		}
	}()

	execCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	if err := r.client.ContainerStart(execCtx, containerID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("failed to start container: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(execCtx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case <-execCtx.Done():
		killCtx, killCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer killCancel()
		_ = r.client.ContainerKill(killCtx, containerID, "SIGKILL")
		return Result{
			Code:     1,
			TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil,
		}, execCtx.Err()
	case err := <-errCh:
		if err != nil {
			return Result{}, fmt.Errorf("container wait error: %w", err)
		}
	case status := <-statusCh:
		if status.Error != nil {
			return Result{}, fmt.Errorf("container wait error: %s", status.Error.Message)
		}
		exitCode = status.StatusCode
	}

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return Result{}, fmt.Errorf("failed to demultiplex container logs: %w", err)
	}

	return Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Code:   int(exitCode),
	}, nil
}

// ensureImage pulls imageName unless it is already present locally.
func (r *DockerRunner) ensureImage(ctx context.Context, imageName string) error {
	if _, err := r.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	}

	r.log.Info("pulling image", "image", imageName)
	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	// Drain the pull output (required for pull to complete)
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

// containerUser maps the server's ids to the ids commands run as. Root and
// platforms without numeric ids (-1) get the unprivileged user.
func containerUser(uid, gid int) (int, int) {
	if uid <= 0 || gid < 0 {
		return unprivilegedUID, unprivilegedGID
	}
	return uid, gid
}

// chownTree changes the owner of root and everything below it, without
// following symlinks.
func chownTree(root string, uid, gid int) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		return os.Lchown(path, uid, gid)
	})
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
