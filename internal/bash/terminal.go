package bash

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/creack/pty"
)

// Terminal abstracts the process end of a session so the state machine
// can be driven by a scripted double in tests.
type Terminal interface {
	// Write sends bytes to the terminal's input stream.
	Write(p []byte) (int, error)

	// Drain returns all output bytes buffered since the last Drain.
	Drain() []byte

	// Alive reports whether the underlying process is still running.
	Alive() bool

	// Close terminates the process unconditionally.
	Close() error
}

// ptyTerminal runs bash on a pseudo-terminal. Its input/output streams
// are exclusive to the owning session.
type ptyTerminal struct {
	cmd   *exec.Cmd
	ptmx  *os.File
	alive atomic.Bool

	mu  sync.Mutex
	buf []byte
}

// StartTerminal spawns a bash process on a pty rooted at workDir.
// --norc/--noprofile keep startup files from overriding the injected
// prompt. A wide terminal avoids wrapped lines in captured output.
func StartTerminal(workDir string) (Terminal, error) {
	if workDir == "" {
		workDir = "/tmp"
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	cmd := exec.Command("/bin/bash", "--norc", "--noprofile")
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "TERM=dumb")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: 512})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	t := &ptyTerminal{cmd: cmd, ptmx: ptmx}
	t.alive.Store(true)

	go t.readLoop()
	go t.monitor()

	return t, nil
}

// readLoop continuously reads from the pty and buffers output.
func (t *ptyTerminal) readLoop() {
	chunk := make([]byte, 4096)
	for {
		n, err := t.ptmx.Read(chunk)
		if n > 0 {
			t.mu.Lock()
			t.buf = append(t.buf, chunk[:n]...)
			t.mu.Unlock()
		}
		if err != nil {
			// EOF or a read error after pty close; process death is
			// observed separately by monitor.
			return
		}
	}
}

// monitor waits for the process to exit and marks the terminal dead.
func (t *ptyTerminal) monitor() {
	t.cmd.Wait()
	t.alive.Store(false)
	t.ptmx.Close()
}

func (t *ptyTerminal) Write(p []byte) (int, error) {
	if !t.alive.Load() {
		return 0, ErrSessionClosed
	}
	return t.ptmx.Write(p)
}

func (t *ptyTerminal) Drain() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.buf) == 0 {
		return nil
	}
	out := t.buf
	t.buf = nil
	return out
}

func (t *ptyTerminal) Alive() bool {
	return t.alive.Load()
}

func (t *ptyTerminal) Close() error {
	if !t.alive.CompareAndSwap(true, false) {
		return nil // already closed
	}
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	return t.ptmx.Close()
}
