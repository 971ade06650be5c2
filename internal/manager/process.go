package manager

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"inferd/internal/config"
)

// stopGrace is how long a backend gets to exit after SIGTERM before it is
// killed.
const stopGrace = 2 * time.Second

// Process is an exclusively owned handle to a running backend.
type Process interface {
	PID() int
	Signal(sig os.Signal) error
	Kill() error
	// Done is closed with the exit error once the process exits.
	Done() <-chan error
}

// Launcher starts a backend process for a model spec on a GPU device.
// gpuIndex is the device's position in the configured inventory, suitable
// for CUDA_VISIBLE_DEVICES.
type Launcher interface {
	Launch(ctx context.Context, spec config.ModelSpec, gpuIndex int) (Process, error)
}

// Prober checks a backend's health endpoint. Used both for readiness
// during start and for liveness afterwards.
type Prober interface {
	Probe(ctx context.Context, endpoint string) error
}

type execProcess struct {
	cmd    *exec.Cmd
	done   chan error
	stderr *bytes.Buffer
}

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Done() <-chan error { return p.done }

// stderrTail returns up to 4 KiB of captured stderr for diagnostics.
func (p *execProcess) stderrTail() string {
	s := p.stderr.String()
	if len(s) > 4096 {
		s = s[len(s)-4096:]
	}
	return s
}

// ExecLauncher launches backend processes with os/exec. The spec's command
// and args are run verbatim; the assigned GPU and port are passed through
// CUDA_VISIBLE_DEVICES and INFERD_PORT.
type ExecLauncher struct{}

func (ExecLauncher) Launch(ctx context.Context, spec config.ModelSpec, gpuIndex int) (Process, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(),
		"CUDA_VISIBLE_DEVICES="+strconv.Itoa(gpuIndex),
		"INFERD_PORT="+strconv.Itoa(spec.Port),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	p := &execProcess{cmd: cmd, done: make(chan error, 1), stderr: &stderr}
	go func() {
		p.done <- cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// stopProcess terminates a backend: SIGTERM first, then kill after the
// grace period. Always reaps the process.
func stopProcess(p Process) {
	if p == nil {
		return
	}
	_ = p.Signal(syscall.SIGTERM)
	select {
	case <-p.Done():
	case <-time.After(stopGrace):
		_ = p.Kill()
		<-p.Done()
	}
}

// HTTPProber probes the backend's /health endpoint.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber() *HTTPProber {
	// Timeout 0: every probe carries its own context deadline.
	return &HTTPProber{Client: &http.Client{Timeout: 0}}
}

func (p *HTTPProber) Probe(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health probe: %s", resp.Status)
	}
	return nil
}
