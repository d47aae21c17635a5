package bash

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebox-sh/codebox/internal/events"
)

// fakeTerminal is a scripted Terminal double. Drain pops queued chunks
// one at a time; onWrite scripts the shell's reaction to input.
type fakeTerminal struct {
	mu      sync.Mutex
	writes  [][]byte
	queue   [][]byte
	dead    bool
	onWrite func(f *fakeTerminal, p []byte)
}

func sentinelFor(exitCode int, cwd string) string {
	return fmt.Sprintf("\n###CODEBOX[%d:0:%s]###\n", exitCode, cwd)
}

// newFakeTerminal starts with the handshake prompt queued, mirroring a
// shell that drew its first prompt after PS1 injection.
func newFakeTerminal() *fakeTerminal {
	f := &fakeTerminal{}
	f.push(sentinelFor(0, "/workspace"))
	return f
}

func (f *fakeTerminal) push(s string) {
	f.mu.Lock()
	f.queue = append(f.queue, []byte(s))
	f.mu.Unlock()
}

func (f *fakeTerminal) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.dead {
		f.mu.Unlock()
		return 0, ErrSessionClosed
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	f.writes = append(f.writes, buf)
	cb := f.onWrite
	f.mu.Unlock()

	if cb != nil {
		cb(f, p)
	}
	return len(p), nil
}

func (f *fakeTerminal) Drain() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil
	}
	out := f.queue[0]
	f.queue = f.queue[1:]
	return out
}

func (f *fakeTerminal) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.dead
}

func (f *fakeTerminal) Close() error {
	f.mu.Lock()
	f.dead = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTerminal) wroteByte(b byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.writes {
		if len(w) == 1 && w[0] == b {
			return true
		}
	}
	return false
}

func testOptions() Options {
	return Options{
		WorkDir:        "/workspace",
		SoftTimeout:    25 * time.Millisecond,
		PollInterval:   time.Millisecond,
		MaxOutputBytes: 1024,
		HistorySize:    16,
		InitTimeout:    500 * time.Millisecond,
	}
}

func newTestSession(t *testing.T, ft *fakeTerminal) *Session {
	t.Helper()
	sess, err := NewSession("test", ft, testOptions(), nil)
	require.NoError(t, err)
	return sess
}

func TestSessionHandshake(t *testing.T) {
	ft := newFakeTerminal()
	sess := newTestSession(t, ft)

	assert.Equal(t, StateIdle, sess.State())
	assert.Equal(t, "/workspace", sess.Cwd())

	// The injected init line exports the prompt and disables echo.
	require.NotEmpty(t, ft.writes)
	init := string(ft.writes[0])
	assert.Contains(t, init, "PS1=")
	assert.Contains(t, init, "stty -echo")
}

func TestSessionHandshakeTimeout(t *testing.T) {
	ft := &fakeTerminal{} // never draws a prompt
	opts := testOptions()
	opts.InitTimeout = 30 * time.Millisecond

	_, err := NewSession("test", ft, opts, nil)
	var desync *DesyncError
	require.ErrorAs(t, err, &desync)
	assert.False(t, ft.Alive(), "terminal should be torn down on a failed handshake")
}

func TestSessionCompletedCommand(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "echo hi\n" {
			f.push("hi\n" + sentinelFor(0, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "echo hi"})
	require.NoError(t, err)

	assert.Equal(t, "hi\n", obs.Content)
	require.NotNil(t, obs.ExitCode)
	assert.Equal(t, 0, *obs.ExitCode)
	assert.Equal(t, events.ClassifierCompleted, obs.Classifier)
	assert.Equal(t, "/workspace", obs.WorkingDir)
	assert.Equal(t, "test", obs.SessionID)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionReportsFailureExitCode(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "false\n" {
			f.push(sentinelFor(1, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "false"})
	require.NoError(t, err)
	require.NotNil(t, obs.ExitCode)
	assert.Equal(t, 1, *obs.ExitCode)
	assert.Equal(t, events.ClassifierCompleted, obs.Classifier)
}

func TestSessionTracksCwdFromPrompt(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "cd /tmp\n" {
			f.push(sentinelFor(0, "/tmp"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "cd /tmp"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp", obs.WorkingDir)
	assert.Equal(t, "/tmp", sess.Cwd())
}

func TestSessionSoftTimeoutAndPoll(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "cat\n" {
			f.push("waiting")
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "cat"})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierTimeoutSoft, obs.Classifier)
	assert.Nil(t, obs.ExitCode)
	assert.Equal(t, "waiting", obs.Content)
	assert.Equal(t, StateAwaitingInput, sess.State())

	// An idle follow-up poll reports the same partial output again.
	obs2, err := sess.Execute(events.CmdRunAction{Command: ""})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierTimeoutSoft, obs2.Classifier)
	assert.Equal(t, "waiting", obs2.Content)

	// Once the prompt lands, a poll closes the command.
	ft.push("done\n" + sentinelFor(0, "/workspace"))
	obs3, err := sess.Execute(events.CmdRunAction{Command: ""})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs3.Classifier)
	assert.Equal(t, "waitingdone\n", obs3.Content)
	require.NotNil(t, obs3.ExitCode)
	assert.Equal(t, 0, *obs3.ExitCode)
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionKeystrokesWhileAwaitingInput(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		switch string(p) {
		case "cat\n":
			f.push("prompt: ")
		case "yes\n":
			f.push("accepted\n" + sentinelFor(0, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "cat"})
	require.NoError(t, err)
	require.Equal(t, events.ClassifierTimeoutSoft, obs.Classifier)

	obs2, err := sess.Execute(events.CmdRunAction{Command: "yes", IsInput: true})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs2.Classifier)
	assert.Contains(t, obs2.Content, "accepted")
}

func TestSessionKeystrokesReturnWithoutBlocking(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "cat\n" {
			f.push("prompt: ")
		}
		// Keystrokes produce no immediate output.
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "cat"})
	require.NoError(t, err)
	require.Equal(t, events.ClassifierTimeoutSoft, obs.Classifier)

	// The injection reports back promptly instead of waiting out the
	// soft timeout; the command is still in flight.
	obs2, err := sess.Execute(events.CmdRunAction{Command: "data", IsInput: true})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierStillRunning, obs2.Classifier)
	assert.Nil(t, obs2.ExitCode)
	assert.Equal(t, StateAwaitingInput, sess.State())

	// A later poll observes completion.
	ft.push("done\n" + sentinelFor(0, "/workspace"))
	obs3, err := sess.Execute(events.CmdRunAction{Command: ""})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs3.Classifier)
}

func TestSessionControlKeyInterrupts(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if len(p) == 1 && p[0] == byte(KeyInterrupt) {
			f.push("^C\n" + sentinelFor(130, "/workspace"))
		} else if string(p) == "sleep 1000\n" {
			f.push("")
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "sleep 1000"})
	require.NoError(t, err)
	require.Equal(t, events.ClassifierTimeoutSoft, obs.Classifier)

	obs2, err := sess.Execute(events.CmdRunAction{Command: "C-c", IsInput: true})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs2.Classifier)
	require.NotNil(t, obs2.ExitCode)
	assert.Equal(t, 130, *obs2.ExitCode)
	assert.True(t, ft.wroteByte(byte(KeyInterrupt)))
}

func TestSessionHardTimeoutDeliversInterrupt(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if len(p) == 1 && p[0] == byte(KeyInterrupt) {
			f.push("^C\n" + sentinelFor(130, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{
		Command:     "sleep 1000",
		Blocking:    true,
		HardTimeout: 0.05,
	})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierTimeoutHard, obs.Classifier)
	require.NotNil(t, obs.ExitCode)
	assert.Equal(t, 130, *obs.ExitCode)
	assert.True(t, ft.wroteByte(byte(KeyInterrupt)))
	// The shell survives; the session is reusable.
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionBlockingIgnoresSoftTimeout(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "slow\n" {
			go func() {
				time.Sleep(60 * time.Millisecond) // past the soft timeout
				f.push("done\n" + sentinelFor(0, "/workspace"))
			}()
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "slow", Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs.Classifier)
	assert.Equal(t, "done\n", obs.Content)
}

func TestSessionRejectsConcurrentSubmission(t *testing.T) {
	ft := newFakeTerminal()
	sess := newTestSession(t, ft)

	sess.mu.Lock()
	_, err := sess.Execute(events.CmdRunAction{Command: "echo hi"})
	sess.mu.Unlock()

	assert.ErrorIs(t, err, ErrCommandInFlight)
}

func TestSessionStateGuards(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "cat\n" {
			f.push("waiting")
		}
	}
	sess := newTestSession(t, ft)

	// Idle: keystrokes and bare polls have nothing to attach to.
	_, err := sess.Execute(events.CmdRunAction{Command: "y", IsInput: true})
	assert.ErrorIs(t, err, ErrNotAwaitingInput)
	_, err = sess.Execute(events.CmdRunAction{Command: "   "})
	assert.ErrorIs(t, err, ErrEmptyCommand)

	// AwaitingInput: a new command would interleave with the running one.
	_, err = sess.Execute(events.CmdRunAction{Command: "cat"})
	require.NoError(t, err)
	require.Equal(t, StateAwaitingInput, sess.State())
	_, err = sess.Execute(events.CmdRunAction{Command: "echo next"})
	assert.ErrorIs(t, err, ErrAwaitingInput)
}

func TestSessionRejectsMultiStatementBeforeWrite(t *testing.T) {
	ft := newFakeTerminal()
	sess := newTestSession(t, ft)
	writesBefore := len(ft.writes)

	_, err := sess.Execute(events.CmdRunAction{Command: "echo a; echo b"})
	var multiErr *MultiStatementError
	require.ErrorAs(t, err, &multiErr)

	assert.Equal(t, writesBefore, len(ft.writes), "rejected command must not reach the terminal")
	assert.Equal(t, StateIdle, sess.State())
}

func TestSessionTerminalDeath(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "exit\n" {
			f.Close()
		}
	}
	sess := newTestSession(t, ft)

	_, err := sess.Execute(events.CmdRunAction{Command: "exit"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, StateClosed, sess.State())

	// Every further action fails until the session is replaced.
	_, err = sess.Execute(events.CmdRunAction{Command: "echo hi"})
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionTerminalDeathWithFinalPrompt(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "true && exit\n" {
			f.push(sentinelFor(0, "/workspace"))
			f.Close()
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "true && exit"})
	require.NoError(t, err)
	assert.Equal(t, events.ClassifierCompleted, obs.Classifier)
	assert.Equal(t, StateClosed, sess.State())
}

func TestSessionHistory(t *testing.T) {
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if s := string(p); s == "echo one\n" || s == "echo two\n" {
			f.push(sentinelFor(0, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	_, err := sess.Execute(events.CmdRunAction{Command: "echo one"})
	require.NoError(t, err)
	_, err = sess.Execute(events.CmdRunAction{Command: "echo two"})
	require.NoError(t, err)

	recent := sess.History(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "echo two", recent[0].Command)
	assert.Equal(t, "echo one", recent[1].Command)
}

func TestSessionStripsEchoedCommand(t *testing.T) {
	// First command can race the stty -echo call and come back echoed.
	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "echo hi\n" {
			f.push("echo hi\r\nhi\n" + sentinelFor(0, "/workspace"))
		}
	}
	sess := newTestSession(t, ft)

	obs, err := sess.Execute(events.CmdRunAction{Command: "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", obs.Content)
}

func TestSessionClipsRunawayOutput(t *testing.T) {
	opts := testOptions()
	opts.MaxOutputBytes = 256

	ft := newFakeTerminal()
	ft.onWrite = func(f *fakeTerminal, p []byte) {
		if string(p) == "yes\n" {
			for i := 0; i < 100; i++ {
				f.push(fmt.Sprintf("%04d %s\n", i, strings.Repeat("x", 100)))
			}
			f.push(sentinelFor(0, "/workspace"))
		}
	}
	sess, err := NewSession("test", ft, opts, nil)
	require.NoError(t, err)

	obs, err := sess.Execute(events.CmdRunAction{Command: "yes"})
	require.NoError(t, err)
	assert.True(t, obs.Truncated)
	assert.LessOrEqual(t, len(obs.Content), opts.MaxOutputBytes)
}
