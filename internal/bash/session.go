package bash

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/events"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
)

// State is the session execution state.
type State int32

const (
	// StateIdle: no command in flight.
	StateIdle State = iota
	// StateRunning: command submitted, sentinel not yet observed.
	StateRunning
	// StateAwaitingInput: output stalled with the process still alive;
	// the caller may inject keystrokes or poll again.
	StateAwaitingInput
	// StateClosed: terminal process terminated; session needs a reset.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options tunes one session's execution behavior.
type Options struct {
	WorkDir        string
	SoftTimeout    time.Duration // no-output interval before reporting back
	PollInterval   time.Duration // output poll cadence
	MaxOutputBytes int           // observation retention cap
	HistorySize    int           // command-history ring capacity
	InitTimeout    time.Duration // prompt-handshake deadline at startup
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = "/tmp"
	}
	if o.SoftTimeout <= 0 {
		o.SoftTimeout = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 50 * time.Millisecond
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = 32768
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 10000
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = 10 * time.Second
	}
	return o
}

// interruptGrace is how long poll waits for the prompt to come back
// after delivering Ctrl-C on a hard timeout.
const interruptGrace = 2 * time.Second

// Session owns one persistent terminal process and serializes command
// execution against it. At most one command is in flight at a time;
// concurrent submissions are rejected, never queued.
type Session struct {
	id   string
	opts Options
	term Terminal
	log  *logging.Logger

	// mu is held for the whole of Execute; TryLock turns concurrent
	// submissions into ErrCommandInFlight.
	mu    sync.Mutex
	state atomic.Int32

	// metaMu guards fields read by observers while a command runs.
	metaMu       sync.RWMutex
	cwd          string
	lastActivity time.Time

	// carry accumulates drained output between sentinels. Bytes before
	// the next sentinel belong to the in-flight command.
	carry       []byte
	clipped     bool
	pendingCmd  string
	seq         uint64
	submittedAt time.Time

	history *History
}

// NewSession wraps a terminal and performs the prompt handshake:
// inject PS1, disable echo, wait for the first sentinel.
func NewSession(id string, term Terminal, opts Options, log *logging.Logger) (*Session, error) {
	if log == nil {
		log = logging.NewNop()
	}
	opts = opts.withDefaults()

	s := &Session{
		id:      id,
		opts:    opts,
		term:    term,
		log:     log,
		cwd:     opts.WorkDir,
		history: NewHistory(opts.HistorySize),
	}
	s.state.Store(int32(StateRunning))
	s.touch()

	if err := s.initialize(); err != nil {
		term.Close()
		return nil, err
	}
	return s, nil
}

// initialize injects the sentinel prompt and waits for its first
// appearance. Everything the shell printed before it (banner, echoed
// init line) is discarded.
func (s *Session) initialize() error {
	init := "export PS1='" + PS1() + "' PS2='' PROMPT_COMMAND=''; stty -echo\n"
	if _, err := s.term.Write([]byte(init)); err != nil {
		return fmt.Errorf("session %s: prompt injection failed: %w", s.id, err)
	}

	deadline := time.Now().Add(s.opts.InitTimeout)
	for {
		if chunk := s.term.Drain(); len(chunk) > 0 {
			s.carry = append(s.carry, chunk...)
		}
		if m := Scan(s.carry); m.Kind == MatchFull {
			s.carry = s.carry[m.End:]
			s.setCwd(m.State.WorkingDir)
			s.state.Store(int32(StateIdle))
			return nil
		}
		if !s.term.Alive() {
			s.state.Store(int32(StateClosed))
			return fmt.Errorf("session %s: %w", s.id, ErrSessionClosed)
		}
		if time.Now().After(deadline) {
			s.state.Store(int32(StateClosed))
			return &DesyncError{SessionID: s.id}
		}
		time.Sleep(s.opts.PollInterval)
	}
}

// Execute runs one action against the session and returns exactly one
// observation or one error. The action is either a new command, raw
// keystrokes for a command awaiting input, or an empty command polling
// the still-running one.
func (s *Session) Execute(act events.CmdRunAction) (*events.CmdOutputObservation, error) {
	if !s.mu.TryLock() {
		return nil, ErrCommandInFlight
	}
	defer s.mu.Unlock()

	s.touch()

	if s.State() == StateClosed || !s.term.Alive() {
		s.state.Store(int32(StateClosed))
		return nil, ErrSessionClosed
	}

	switch {
	case act.IsInput:
		if s.State() != StateAwaitingInput {
			return nil, ErrNotAwaitingInput
		}
		in := ParseInput(act.Command)
		if _, err := s.term.Write(in.Bytes()); err != nil {
			s.state.Store(int32(StateClosed))
			return nil, ErrSessionClosed
		}
		s.state.Store(int32(StateRunning))
		// Keystrokes never block the caller; settle briefly and report,
		// leaving further progress to follow-up polls.
		return s.settleInput()

	case strings.TrimSpace(act.Command) == "":
		if s.State() != StateAwaitingInput {
			return nil, ErrEmptyCommand
		}
		// Bare poll of the running command; idempotent when nothing
		// changed.
		s.state.Store(int32(StateRunning))

	default:
		if s.State() == StateAwaitingInput {
			return nil, ErrAwaitingInput
		}
		if err := Validate(act.Command); err != nil {
			return nil, err
		}
		if _, err := s.term.Write([]byte(act.Command + "\n")); err != nil {
			s.state.Store(int32(StateClosed))
			return nil, ErrSessionClosed
		}
		s.seq++
		s.pendingCmd = act.Command
		s.submittedAt = time.Now()
		s.state.Store(int32(StateRunning))
	}

	return s.poll(act)
}

// settleInput gives injected keystrokes a few poll intervals to take
// effect. A prompt that lands in that window closes the command;
// otherwise the caller gets a still-running observation and polls.
func (s *Session) settleInput() (*events.CmdOutputObservation, error) {
	for i := 0; i < 5; i++ {
		if chunk := s.term.Drain(); len(chunk) > 0 {
			s.accumulate(chunk)
		}
		if m := Scan(s.carry); m.Kind == MatchFull {
			return s.finish(m, false), nil
		}
		if !s.term.Alive() {
			return s.finishDead(false)
		}
		time.Sleep(s.opts.PollInterval)
	}
	s.state.Store(int32(StateAwaitingInput))
	return s.partial(events.ClassifierStillRunning), nil
}

// poll reads available output in bounded increments, re-checking for
// the sentinel after each, until completion or the applicable timeout.
func (s *Session) poll(act events.CmdRunAction) (*events.CmdOutputObservation, error) {
	var hardDeadline time.Time
	if act.HardTimeout > 0 {
		hardDeadline = time.Now().Add(time.Duration(act.HardTimeout * float64(time.Second)))
	}
	softEnabled := !act.Blocking
	lastOutput := time.Now()
	interrupted := false

	for {
		if chunk := s.term.Drain(); len(chunk) > 0 {
			s.accumulate(chunk)
			lastOutput = time.Now()
		}

		if m := Scan(s.carry); m.Kind == MatchFull {
			return s.finish(m, interrupted), nil
		}

		if !s.term.Alive() {
			return s.finishDead(interrupted)
		}

		now := time.Now()

		if !hardDeadline.IsZero() && now.After(hardDeadline) {
			if !interrupted {
				// Ctrl-C through the pty line discipline interrupts the
				// foreground process group without killing the shell.
				s.term.Write([]byte{byte(KeyInterrupt)})
				interrupted = true
				hardDeadline = now.Add(interruptGrace)
				s.log.Info("command interrupted on hard timeout",
					zap.String("session_id", s.id),
					zap.String("command", s.pendingCmd),
				)
				continue
			}
			// The interrupt was swallowed; report and let the caller
			// poll again or escalate with keystrokes.
			s.state.Store(int32(StateAwaitingInput))
			return s.partial(events.ClassifierTimeoutHard), nil
		}

		if softEnabled && now.Sub(lastOutput) >= s.opts.SoftTimeout {
			s.state.Store(int32(StateAwaitingInput))
			return s.partial(events.ClassifierTimeoutSoft), nil
		}

		time.Sleep(s.opts.PollInterval)
	}
}

// finish consumes a full sentinel match: bytes before it are the
// command's output, the sentinel itself is excluded, and bytes after
// it are carried for the next command.
func (s *Session) finish(m Match, interrupted bool) *events.CmdOutputObservation {
	raw := s.carry[:m.Start]
	rest := make([]byte, len(s.carry)-m.End)
	copy(rest, s.carry[m.End:])

	clipped := s.clipped
	s.carry = rest
	s.clipped = false

	s.setCwd(m.State.WorkingDir)

	exitCode := m.State.ExitCode
	classifier := events.ClassifierCompleted
	if interrupted {
		classifier = events.ClassifierTimeoutHard
	}

	text, truncated := Normalize(s.stripEcho(raw), s.opts.MaxOutputBytes)

	s.history.Add(HistoryEntry{
		Seq:        s.seq,
		Command:    s.pendingCmd,
		StartedAt:  s.submittedAt,
		ExitCode:   &exitCode,
		Classifier: classifier,
	})

	obs := &events.CmdOutputObservation{
		Content:    text,
		Command:    s.pendingCmd,
		ExitCode:   &exitCode,
		Classifier: classifier,
		Truncated:  truncated || clipped,
		WorkingDir: s.Cwd(),
		SessionID:  s.id,
	}

	s.pendingCmd = ""
	s.state.Store(int32(StateIdle))
	return obs
}

// finishDead handles terminal death mid-command: drain whatever the
// shell flushed on the way out, honor a last-gasp sentinel, otherwise
// the session is closed.
func (s *Session) finishDead(interrupted bool) (*events.CmdOutputObservation, error) {
	for i := 0; i < 20; i++ {
		if chunk := s.term.Drain(); len(chunk) > 0 {
			s.accumulate(chunk)
			continue
		}
		break
	}
	if m := Scan(s.carry); m.Kind == MatchFull {
		obs := s.finish(m, interrupted)
		s.state.Store(int32(StateClosed))
		return obs, nil
	}
	s.state.Store(int32(StateClosed))
	s.log.Warn("terminal died without a final prompt",
		zap.String("session_id", s.id),
		zap.String("command", s.pendingCmd),
	)
	return nil, ErrSessionClosed
}

// partial builds a non-terminal observation. The carry is left
// buffered: a follow-up poll sees the same (possibly grown) output and
// the sentinel, when it arrives, still closes the command.
func (s *Session) partial(classifier string) *events.CmdOutputObservation {
	text, truncated := Normalize(s.stripEcho(s.carry), s.opts.MaxOutputBytes)
	return &events.CmdOutputObservation{
		Content:    text,
		Command:    s.pendingCmd,
		ExitCode:   nil,
		Classifier: classifier,
		Truncated:  truncated || s.clipped,
		WorkingDir: s.Cwd(),
		SessionID:  s.id,
	}
}

// accumulate appends drained bytes, clipping the middle of the carry
// when it grows far past the retention cap so a flood of output cannot
// exhaust memory. Head and tail stay intact for the final observation;
// the sentinel always arrives at the tail.
func (s *Session) accumulate(chunk []byte) {
	s.carry = append(s.carry, chunk...)

	limit := 2*s.opts.MaxOutputBytes + 4096
	if len(s.carry) <= limit {
		return
	}
	head := s.carry[:s.opts.MaxOutputBytes]
	tail := s.carry[len(s.carry)-s.opts.MaxOutputBytes:]
	next := make([]byte, 0, len(head)+len(truncationMarker)+len(tail))
	next = append(next, head...)
	next = append(next, truncationMarker...)
	next = append(next, tail...)
	s.carry = next
	s.clipped = true
}

// stripEcho drops a leading echo of the in-flight command. Echo is off
// after the handshake, but the first command of a session can race the
// stty call.
func (s *Session) stripEcho(raw []byte) []byte {
	if s.pendingCmd == "" {
		return raw
	}
	trimmed := bytes.TrimLeft(raw, "\r\n")
	if bytes.HasPrefix(trimmed, []byte(s.pendingCmd)) {
		rest := trimmed[len(s.pendingCmd):]
		if len(rest) == 0 {
			return nil
		}
		if rest[0] == '\r' || rest[0] == '\n' {
			return bytes.TrimLeft(rest, "\r\n")
		}
	}
	return raw
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current execution state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Cwd returns the working directory as of the last sentinel. Directory
// changes are observed only through the sentinel, never inferred from
// command text.
func (s *Session) Cwd() string {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.cwd
}

// LastActivity returns the time of the last action on this session.
func (s *Session) LastActivity() time.Time {
	s.metaMu.RLock()
	defer s.metaMu.RUnlock()
	return s.lastActivity
}

// History returns up to limit recent commands, newest first.
func (s *Session) History(limit int) []HistoryEntry {
	return s.history.Recent(limit)
}

// Close terminates the terminal process unconditionally and releases
// buffered state.
func (s *Session) Close() error {
	s.state.Store(int32(StateClosed))
	return s.term.Close()
}

func (s *Session) setCwd(cwd string) {
	s.metaMu.Lock()
	s.cwd = cwd
	s.metaMu.Unlock()
}

func (s *Session) touch() {
	s.metaMu.Lock()
	s.lastActivity = time.Now()
	s.metaMu.Unlock()
}
