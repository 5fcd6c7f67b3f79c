package fetch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerDriver runs the crawl binary inside a one-shot container instead of
// as a host subprocess, isolating concurrent fetches on the same host from
// each other's filesystem state.
type DockerDriver struct {
	client     *dockerclient.Client
	image      string
	binds      func(workDir string) []string
	OnProgress ProgressFunc
}

// NewDockerDriver connects to the Docker daemon (socketPath empty uses the
// SDK default) and returns a driver that runs image for each fetch,
// bind-mounting the per-fetch working directory into the container.
func NewDockerDriver(socketPath, image string) (*DockerDriver, error) {
	opts := []dockerclient.Opt{dockerclient.WithAPIVersionNegotiation()}
	if socketPath != "" {
		opts = append(opts, dockerclient.WithHost("unix://"+socketPath))
	}
	c, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch: docker client: %w", err)
	}
	return &DockerDriver{
		client: c,
		image:  image,
		binds: func(workDir string) []string {
			return []string{workDir + ":/work"}
		},
	}, nil
}

func (d *DockerDriver) Fetch(ctx context.Context, urls []string, workDir string) (Result, error) {
	cmd := append([]string{"--output-dir", "/work", "--json"}, urls...)

	resp, err := d.client.ContainerCreate(ctx,
		&container.Config{Image: d.image, Cmd: cmd, Tty: false},
		&container.HostConfig{Binds: d.binds(workDir), AutoRemove: false},
		nil, nil, "")
	if err != nil {
		return Result{}, fmt.Errorf("fetch: container create: %w", err)
	}
	defer d.client.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return Result{}, fmt.Errorf("fetch: container start: %w", err)
	}

	waitCh, errCh := d.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)

	logs, err := d.client.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return Result{}, fmt.Errorf("fetch: container logs: %w", err)
	}
	defer logs.Close()

	result, scanErr := scanDockerDiscoveries(logs, d.OnProgress)

	select {
	case werr := <-errCh:
		if werr != nil {
			return Result{}, fmt.Errorf("fetch: container wait: %w", werr)
		}
	case status := <-waitCh:
		if status.StatusCode != 0 {
			return Result{}, fmt.Errorf("fetch: container exited with status %d", status.StatusCode)
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if scanErr != nil {
		return Result{}, scanErr
	}
	return result, nil
}

// scanDockerDiscoveries reads the container's stdout/stderr log stream. The
// daemon multiplexes the two with an 8-byte frame header per chunk, which
// stdcopy.StdCopy strips while fanning both into a single pipe for the
// line scanner below.
func scanDockerDiscoveries(logs io.Reader, onProgress ProgressFunc) (Result, error) {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, logs)
		pw.CloseWithError(err)
	}()
	logs = pr

	var result Result
	sc := bufio.NewScanner(logs)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		var dl discoveryLine
		if err := json.Unmarshal([]byte(line), &dl); err != nil {
			continue
		}
		if dl.Parent != "" && dl.Child != "" {
			result.Discoveries = append(result.Discoveries, Discovery{Parent: dl.Parent, Child: dl.Child})
		}
		if onProgress != nil {
			onProgress(ProgressEvent{URL: dl.URL, Status: dl.Status, Raw: line})
		}
	}
	return result, sc.Err()
}

// Close releases the underlying Docker client.
func (d *DockerDriver) Close() error {
	return d.client.Close()
}
