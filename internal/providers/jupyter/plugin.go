// Package jupyter runs Python code through a Jupyter server managed as
// a child process. The plugin owns the server lifecycle and a single
// long-lived kernel; cells execute serially against it.
package jupyter

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/events"
	"github.com/codebox-sh/codebox/internal/infrastructure/config"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
)

// PluginName identifies the plugin in the registry and the HTTP API.
const PluginName = "jupyter"

const defaultCellTimeout = 120 * time.Second

// Plugin manages the Jupyter server subprocess and its kernel.
type Plugin struct {
	cfg     config.JupyterConfig
	workDir string
	log     *logging.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	kernel      *Kernel
	pythonPath  string
	initialized bool
}

// NewPlugin creates the plugin. Nothing is started until Initialize.
func NewPlugin(cfg config.JupyterConfig, workDir string, log *logging.Logger) *Plugin {
	if log == nil {
		log = logging.NewNop()
	}
	return &Plugin{cfg: cfg, workDir: workDir, log: log}
}

// Name returns the registry name.
func (p *Plugin) Name() string { return PluginName }

// Initialized reports whether the server and kernel are up.
func (p *Plugin) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// PythonPath returns the interpreter path reported by the kernel, or
// "" before initialization.
func (p *Plugin) PythonPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pythonPath
}

// Initialize starts the Jupyter server, waits for it to answer, starts
// the kernel and runs a smoke cell to learn the interpreter path. It
// is idempotent: a second call on a live plugin is a no-op.
func (p *Plugin) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initialized {
		return nil
	}

	baseURL := fmt.Sprintf("http://localhost:%d", p.cfg.Port)

	cmd := exec.Command("jupyter", "server",
		"--ServerApp.ip=0.0.0.0",
		fmt.Sprintf("--ServerApp.port=%d", p.cfg.Port),
		"--ServerApp.token=",
		"--ServerApp.password=",
		"--ServerApp.disable_check_xsrf=True",
		"--ServerApp.allow_origin=*",
		"--no-browser",
	)
	cmd.Dir = p.workDir
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start jupyter server: %w", err)
	}
	p.cmd = cmd

	if err := p.waitReady(ctx, baseURL); err != nil {
		p.teardownLocked()
		return err
	}

	kernel := NewKernel(baseURL, p.cfg.KernelName, p.log)
	if err := kernel.Start(ctx); err != nil {
		p.teardownLocked()
		return err
	}
	p.kernel = kernel

	out, err := kernel.Execute(ctx, "import sys; print(sys.executable)", defaultCellTimeout)
	if err != nil {
		p.teardownLocked()
		return fmt.Errorf("kernel smoke cell: %w", err)
	}
	p.pythonPath = strings.TrimSpace(out.Text)
	p.initialized = true

	p.log.Info("jupyter plugin initialized",
		zap.Int("port", p.cfg.Port),
		zap.String("python_path", p.pythonPath),
	)
	return nil
}

// waitReady polls /api/status until the server answers or the startup
// deadline passes.
func (p *Plugin) waitReady(ctx context.Context, baseURL string) error {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 60
	client.RetryWaitMin = 250 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(ctx, p.cfg.StartupTimeout())
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", baseURL+"/api/status", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("jupyter server not ready within %s: %w", p.cfg.StartupTimeout(), err)
	}
	resp.Body.Close()
	return nil
}

// Run executes one cell. Failures are folded into the observation's
// content; the caller always gets exactly one observation.
func (p *Plugin) Run(ctx context.Context, act events.IPythonRunCellAction) events.IPythonRunCellObservation {
	p.mu.Lock()
	kernel := p.kernel
	ready := p.initialized
	p.mu.Unlock()

	if !ready {
		return events.IPythonRunCellObservation{
			Content: "Jupyter plugin is not initialized. Initialize it before running cells.",
			Code:    act.Code,
		}
	}

	timeout := defaultCellTimeout
	if act.Timeout > 0 {
		timeout = time.Duration(act.Timeout * float64(time.Second))
	}

	out, err := kernel.Execute(ctx, act.Code, timeout)
	if err != nil {
		return events.IPythonRunCellObservation{
			Content: fmt.Sprintf("Error executing cell: %v", err),
			Code:    act.Code,
		}
	}
	return events.IPythonRunCellObservation{
		Content:   out.Text,
		Code:      act.Code,
		ImageURLs: out.Images,
	}
}

// Close stops the kernel and the server subprocess.
func (p *Plugin) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardownLocked()
	p.initialized = false
}

func (p *Plugin) teardownLocked() {
	if p.kernel != nil {
		p.kernel.Close()
		p.kernel = nil
	}
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
		_ = p.cmd.Wait()
		p.cmd = nil
	}
}
