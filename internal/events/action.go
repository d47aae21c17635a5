// Package events defines the action/observation contract between the
// transport layer and the execution core, plus the dict encoding the
// controller protocol uses on the wire.
package events

// Action kind discriminators carried in the "action" envelope field.
const (
	ActionRun        = "run"
	ActionRunIPython = "run_ipython"
	ActionRead       = "read"
	ActionWrite      = "write"
	ActionEdit       = "edit"
)

// Action is implemented by every typed action.
type Action interface {
	Action() string
}

// CmdRunAction submits a shell command, keystrokes, or a bare poll to a
// terminal session.
type CmdRunAction struct {
	Command string `json:"command"`
	Thought string `json:"thought,omitempty"`

	// IsInput routes Command as raw keystrokes (or a control-key token
	// such as "C-c") to a session awaiting input instead of as a new
	// command.
	IsInput bool `json:"is_input,omitempty"`

	// Blocking suspends the request until the command completes or the
	// hard timeout fires, ignoring the soft no-output timeout.
	Blocking bool `json:"blocking,omitempty"`

	// HardTimeout is an absolute deadline in seconds after which the
	// foreground process is interrupted. Zero means no hard limit.
	HardTimeout float64 `json:"hard_timeout,omitempty"`

	// SessionID selects the target session; empty selects the default.
	SessionID string `json:"session_id,omitempty"`
}

func (a CmdRunAction) Action() string { return ActionRun }

// IPythonRunCellAction executes Python code in the Jupyter kernel.
type IPythonRunCellAction struct {
	Code    string  `json:"code"`
	Thought string  `json:"thought,omitempty"`
	Timeout float64 `json:"timeout,omitempty"` // seconds, 0 = default
}

func (a IPythonRunCellAction) Action() string { return ActionRunIPython }

// FileReadAction reads a file, relative paths resolved against the
// session's working directory.
type FileReadAction struct {
	Path string `json:"path"`
}

func (a FileReadAction) Action() string { return ActionRead }

// FileWriteAction writes a file, creating parent directories.
type FileWriteAction struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (a FileWriteAction) Action() string { return ActionWrite }

// FileEditAction applies an edit command to an existing file.
type FileEditAction struct {
	Path    string `json:"path"`
	Command string `json:"command"` // currently only "str_replace"
	OldStr  string `json:"old_str,omitempty"`
	NewStr  string `json:"new_str,omitempty"`
}

func (a FileEditAction) Action() string { return ActionEdit }
