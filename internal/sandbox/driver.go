package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"
)

// DefaultTimeout bounds an unconfigured Sandbox run, matching the
// original driver's fallback.
const DefaultTimeout = 60 * time.Second

// ErrAmbiguous means more than one image or container matched a tag or
// name that the driver expects to be unique.
var ErrAmbiguous = errors.New("ambiguous docker object")

// Driver wraps a single Docker Engine API session under a name used to
// scope the ephemeral containers it creates, so two drivers running
// concurrently (the hybrid stage's fuzzer and its SymCC sibling) never
// collide on a container name.
type Driver struct {
	name   string
	api    *client.Client
	logger *log.Logger
}

// New connects to the Docker daemon named by the environment (DOCKER_HOST
// or the local socket) and negotiates the API version.
func New(name string, logger *log.Logger) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Driver{name: name, api: cli, logger: logger}, nil
}

// Sibling opens a second session scoped under a derived name, used when
// a stage needs to run two containers concurrently under independent
// ephemeral-name tracking.
func (d *Driver) Sibling() (*Driver, error) {
	return New(siblingName(d.name), d.logger)
}

// Close releases the underlying API client.
func (d *Driver) Close() error {
	return d.api.Close()
}

func (d *Driver) getImage(ctx context.Context, tag string) (string, bool, error) {
	tagLatest := tag + ":latest"
	images, err := d.api.ImageList(ctx, image.ListOptions{All: true})
	if err != nil {
		return "", false, err
	}
	var found string
	matches := 0
	for _, img := range images {
		for _, rt := range img.RepoTags {
			if rt == tagLatest {
				found = img.ID
				matches++
			}
		}
	}
	if matches > 1 {
		return "", false, fmt.Errorf("%w: more than one image with tag %s", ErrAmbiguous, tag)
	}
	if matches == 0 {
		return "", false, nil
	}
	return found, true, nil
}

func (d *Driver) delImage(ctx context.Context, id string) error {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return err
	}
	for _, c := range containers {
		if c.ImageID == id || c.Image == id {
			if err := d.delContainer(ctx, c.ID); err != nil {
				return err
			}
		}
	}
	_, err = d.api.ImageRemove(ctx, id, image.RemoveOptions{Force: true})
	return err
}

func (d *Driver) getContainer(ctx context.Context, name string) (string, bool, error) {
	containers, err := d.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return "", false, err
	}
	var found string
	matches := 0
	for _, c := range containers {
		for _, n := range c.Names {
			if n == name || n == "/"+name {
				found = c.ID
				matches++
			}
		}
	}
	if matches > 1 {
		return "", false, fmt.Errorf("%w: more than one container named %s", ErrAmbiguous, name)
	}
	if matches == 0 {
		return "", false, nil
	}
	return found, true, nil
}

func (d *Driver) delContainer(ctx context.Context, id string) error {
	return d.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// Build builds an image from the Dockerfile in path, tagging it tag. An
// existing image with that tag is reused unless force is set.
func (d *Driver) Build(ctx context.Context, path, tag string, force bool) error {
	if id, ok, err := d.getImage(ctx, tag); err != nil {
		return err
	} else if ok {
		if !force {
			d.logger.Printf("image %q already exists", tag)
			return nil
		}
		d.logger.Printf("deleting image %q before building", tag)
		if err := d.delImage(ctx, id); err != nil {
			return err
		}
	}

	ctxTar, err := buildContext(path)
	if err != nil {
		return err
	}
	resp, err := d.api.ImageBuild(ctx, bytes.NewReader(ctxTar), image.BuildOptions{
		Tags:    []string{tag},
		NoCache: true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := d.drainBuildLog(resp.Body); err != nil {
		return err
	}

	if _, ok, err := d.getImage(ctx, tag); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("unable to locate image %q after build", tag)
	}
	d.logger.Printf("image %q built successfully", tag)
	return nil
}

// drainBuildLog streams the newline-delimited JSON build log, surfacing
// errors embedded in the stream (Docker's build API reports failures as
// a 200 response with an "error" field, not as an HTTP error).
func (d *Driver) drainBuildLog(r io.Reader) error {
	dec := json.NewDecoder(r)
	for {
		var frame struct {
			Stream string `json:"stream"`
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if frame.Error != "" {
			return fmt.Errorf("docker build: %s", frame.Error)
		}
		if frame.Status != "" {
			d.logger.Printf("%s", frame.Status)
		}
	}
}

// Commit runs cmd in a container based on tag, then commits the result
// as image name if the run exits successfully. An existing image named
// name is reused unless force is set.
func (d *Driver) Commit(ctx context.Context, tag, name string, cmd []string, mounts []Mount, workdir string, force bool) error {
	if id, ok, err := d.getImage(ctx, name); err != nil {
		return err
	} else if ok {
		if !force {
			d.logger.Printf("image %q already exists", name)
			return nil
		}
		if err := d.delImage(ctx, id); err != nil {
			return err
		}
	}

	_, err := d.run(ctx, runSpec{
		tag:     tag,
		commit:  name,
		cmd:     cmd,
		net:     true,
		tty:     true,
		console: true,
		mounts:  mounts,
		workdir: workdir,
	})
	return err
}

// Sandbox runs cmd in a discardable container based on tag with no
// network access, returning how the run ended. timeout <= 0 selects
// DefaultTimeout.
func (d *Driver) Sandbox(ctx context.Context, tag string, cmd []string, mounts []Mount, workdir string, timeout time.Duration) (ExitStatus, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return d.run(ctx, runSpec{
		tag:     tag,
		cmd:     cmd,
		net:     false,
		tty:     true,
		console: false,
		mounts:  mounts,
		workdir: workdir,
		timeout: timeout,
	})
}

type runSpec struct {
	tag     string
	commit  string
	cmd     []string
	net     bool
	tty     bool
	console bool
	mounts  []Mount
	workdir string
	timeout time.Duration
}

func (d *Driver) run(ctx context.Context, spec runSpec) (ExitStatus, error) {
	name := ephemeralName(spec.tag, d.name)
	if id, ok, err := d.getContainer(ctx, name); err != nil {
		return Failure, err
	} else if ok {
		return Failure, fmt.Errorf("container %q already exists with name %q", id, name)
	}

	imageID, ok, err := d.getImage(ctx, spec.tag)
	if err != nil {
		return Failure, err
	}
	if !ok {
		return Failure, fmt.Errorf("image tagged %q does not exist", spec.tag)
	}

	hostCfg := &container.HostConfig{
		Binds: binds(spec.mounts),
		Resources: container.Resources{
			Ulimits: []*units.Ulimit{{Name: "stack", Soft: -1, Hard: -1}},
		},
	}
	cfg := &container.Config{
		AttachStdout:    true,
		AttachStderr:    true,
		Tty:             spec.tty,
		NetworkDisabled: !spec.net,
		Image:           imageID,
		WorkingDir:      spec.workdir,
		Cmd:             spec.cmd,
	}

	created, err := d.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return Failure, err
	}
	if len(created.Warnings) > 0 {
		for _, w := range created.Warnings {
			d.logger.Printf("docker warning: %s", w)
		}
		_ = d.delContainer(ctx, created.ID)
		return Failure, errors.New("unexpected warning in container creation")
	}

	if err := d.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = d.delContainer(ctx, created.ID)
		return Failure, err
	}

	status, err := d.follow(ctx, created.ID, spec.console, spec.timeout)
	if err != nil {
		_ = d.delContainer(ctx, created.ID)
		return Failure, err
	}

	if spec.commit != "" {
		if status != Success {
			_ = d.delContainer(ctx, created.ID)
			return status, errors.New("aborting commit due to execution failure")
		}
		if _, err := d.api.ContainerCommit(ctx, created.ID, container.CommitOptions{Reference: spec.commit}); err != nil {
			_ = d.delContainer(ctx, created.ID)
			return status, err
		}
	}

	if err := d.delContainer(ctx, created.ID); err != nil {
		return status, err
	}
	return status, nil
}

// follow streams the container's combined log until it exits or
// deadline elapses, returning Timeout if the deadline is hit first.
func (d *Driver) follow(ctx context.Context, containerID string, console bool, timeout time.Duration) (ExitStatus, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logs, err := d.api.ContainerLogs(runCtx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return Failure, err
	}
	defer logs.Close()

	var out io.Writer = io.Discard
	if console {
		out = d.logger.Writer()
	}
	if _, err := stdcopy.StdCopy(out, out, logs); err != nil && !errors.Is(err, io.EOF) {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Timeout, nil
		}
		return Failure, err
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Timeout, nil
	}

	statusCh, errCh := d.api.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return Failure, err
		}
	case res := <-statusCh:
		if res.StatusCode == 0 {
			return Success, nil
		}
		return Failure, nil
	}
	return Failure, errors.New("container wait produced no result")
}
