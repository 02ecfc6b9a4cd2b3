package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// containerStopGraceSeconds bounds the graceful-stop window after a timeout
// before the daemon force-kills the container. Kept small so observable
// cancellation latency stays close to the configured timeout, matching the
// process backend's escalation.
const containerStopGraceSeconds = 1

// dockerAPI is the slice of the daemon control API the executor consumes.
// *client.Client satisfies it; tests substitute a fake.
type dockerAPI interface {
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Close() error
}

// newDockerClient connects to the daemon from the ambient environment
// (DOCKER_HOST et al). Overridable in tests.
var newDockerClient = func() (dockerAPI, error) {
	return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
}

// runContainer drives one container through its lifecycle:
// created → started → {exited | timed-out} → removed.
func runContainer(ctx context.Context, e *Environment, prepared *PreparedCommand, settings *execSettings) (*Result, error) {
	if settings.stdin != "" {
		return nil, configErrorf("stdin", "stdin is not supported on the container backend")
	}

	cli, err := newDockerClient()
	if err != nil {
		return nil, &RuntimeError{Op: "connect", Cmd: prepared.argv(), Err: err}
	}
	defer cli.Close()

	policy := e.cfg.Policy
	if err := ensureImage(ctx, cli, policy); err != nil {
		return nil, &RuntimeError{Op: "pull", Cmd: prepared.argv(), Err: err}
	}

	name := "stonebox-" + uuid.NewString()
	logger := e.logger.With().Str("container", name).Logger()

	created, err := cli.ContainerCreate(ctx,
		policy.containerConfig(prepared),
		policy.hostConfig(e.workspace, settings.memoryMB),
		nil, nil, name,
	)
	if err != nil {
		return nil, &RuntimeError{Op: "create", Cmd: prepared.argv(), Err: err}
	}
	id := created.ID

	// Force-removal is the unconditional last step of the lifecycle unless
	// the caller asked to preserve the container for diagnosis. Removal
	// failures are logged, never allowed to mask the primary outcome.
	defer func() {
		if settings.preserve {
			logger.Info().Str("container_id", id).Msg("container preserved for diagnosis")
			return
		}
		if rmErr := cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true}); rmErr != nil {
			logger.Error().Err(rmErr).Msg("container removal failed")
		}
	}()

	execCtx := ctx
	if settings.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, settings.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := cli.ContainerStart(execCtx, id, container.StartOptions{}); err != nil {
		stdout, stderr := bestEffortLogs(cli, id)
		return nil, &RuntimeError{Op: "start", Cmd: prepared.argv(), Stdout: stdout, Stderr: stderr, Err: err}
	}
	logger.Debug().Msg("container started")

	waitCh, errCh := cli.ContainerWait(execCtx, id, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			stdout, stderr := bestEffortLogs(cli, id)
			return nil, &RuntimeError{
				Op: "wait", Cmd: prepared.argv(),
				Stdout: stdout, Stderr: stderr,
				Err: errors.New(resp.Error.Message),
			}
		}
		exitCode = int(resp.StatusCode)

	case err := <-errCh:
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, timeoutResult(cli, logger, id, settings.timeout, time.Since(start))
		}
		stdout, stderr := bestEffortLogs(cli, id)
		return nil, &RuntimeError{Op: "wait", Cmd: prepared.argv(), Stdout: stdout, Stderr: stderr, Err: err}

	case <-execCtx.Done():
		if execCtx.Err() == context.DeadlineExceeded {
			return nil, timeoutResult(cli, logger, id, settings.timeout, time.Since(start))
		}
		return nil, &RuntimeError{Op: "wait", Cmd: prepared.argv(), Err: execCtx.Err()}
	}
	elapsed := time.Since(start)

	stdout, stderr, err := fetchLogs(cli, id)
	if err != nil {
		return nil, &RuntimeError{Op: "logs", Cmd: prepared.argv(), Stdout: stdout, Stderr: stderr, Err: err}
	}

	// The daemon reports OOM kills distinctly; surface those as a typed
	// memory-limit failure rather than a bare 137. Inspect errors are
	// swallowed — the exit code alone is still a valid outcome.
	if settings.memoryMB > 0 {
		if info, ierr := cli.ContainerInspect(context.Background(), id); ierr == nil &&
			info.State != nil && info.State.OOMKilled {
			return nil, &MemoryLimitError{LimitMB: settings.memoryMB, Stdout: stdout, Stderr: stderr}
		}
	}

	return &Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: &exitCode,
		Duration: elapsed,
	}, nil
}

// ensureImage applies the pull policy: Never never pulls, IfNotPresent pulls
// only when local storage lacks the image, Always always pulls.
func ensureImage(ctx context.Context, cli dockerAPI, policy *SecurityPolicy) error {
	switch policy.pullPolicy() {
	case PullNever:
		return nil
	case PullIfNotPresent:
		summaries, err := cli.ImageList(ctx, image.ListOptions{
			Filters: filters.NewArgs(filters.Arg("reference", policy.Image)),
		})
		if err != nil {
			return fmt.Errorf("listing images: %w", err)
		}
		if len(summaries) > 0 {
			return nil
		}
	}

	log.Debug().Str("image", policy.Image).Msg("pulling image")
	rc, err := cli.ImagePull(ctx, policy.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", policy.Image, err)
	}
	defer rc.Close()
	// The pull only completes once its progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pulling %s: %w", policy.Image, err)
	}
	return nil
}

// timeoutResult performs the timed-out leg of the state machine: a graceful
// stop within the bounded grace window, then whatever logs are retrievable.
// Final removal happens in the caller's deferred cleanup regardless of stop
// success.
func timeoutResult(cli dockerAPI, logger zerolog.Logger, id string, configured, elapsed time.Duration) error {
	grace := containerStopGraceSeconds
	if err := cli.ContainerStop(context.Background(), id, container.StopOptions{Timeout: &grace}); err != nil {
		logger.Warn().Err(err).Msg("graceful stop after timeout failed")
	}
	stdout, stderr := bestEffortLogs(cli, id)
	return &TimeoutError{
		Configured: configured,
		Elapsed:    elapsed,
		Stdout:     stdout,
		Stderr:     stderr,
	}
}

// fetchLogs retrieves and demultiplexes the container's combined log stream.
func fetchLogs(cli dockerAPI, id string) (string, string, error) {
	rc, err := cli.ContainerLogs(context.Background(), id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", err
	}
	defer rc.Close()
	return demuxLogs(rc)
}

func bestEffortLogs(cli dockerAPI, id string) (string, string) {
	stdout, stderr, err := fetchLogs(cli, id)
	if err != nil {
		log.Debug().Err(err).Str("container_id", id).Msg("log retrieval failed")
	}
	return stdout, stderr
}
