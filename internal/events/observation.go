package events

// Observation kind discriminators carried in the "observation"
// envelope field.
const (
	ObsRun        = "run"
	ObsRunIPython = "run_ipython"
	ObsRead       = "read"
	ObsWrite      = "write"
	ObsEdit       = "edit"
	ObsError      = "error"
)

// Completion classifiers for command observations.
const (
	ClassifierCompleted    = "completed"
	ClassifierTimeoutSoft  = "timed-out-soft"
	ClassifierTimeoutHard  = "timed-out-hard"
	ClassifierStillRunning = "still-running"
)

// Observation is implemented by every typed result. Observations are
// immutable once returned: exactly one per action.
type Observation interface {
	Observation() string
}

// CmdOutputObservation is the result of one CmdRunAction.
type CmdOutputObservation struct {
	Content    string `json:"content"`
	Command    string `json:"command"`
	ExitCode   *int   `json:"exit_code"` // nil while still running
	Classifier string `json:"classifier"`
	Truncated  bool   `json:"truncated"`
	WorkingDir string `json:"working_dir"`
	SessionID  string `json:"session_id"`
}

func (o CmdOutputObservation) Observation() string { return ObsRun }

// IPythonRunCellObservation is the result of one IPythonRunCellAction.
type IPythonRunCellObservation struct {
	Content   string   `json:"content"`
	Code      string   `json:"code"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

func (o IPythonRunCellObservation) Observation() string { return ObsRunIPython }

// FileReadObservation is the result of one FileReadAction.
type FileReadObservation struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

func (o FileReadObservation) Observation() string { return ObsRead }

// FileWriteObservation is the result of one FileWriteAction.
type FileWriteObservation struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

func (o FileWriteObservation) Observation() string { return ObsWrite }

// FileEditObservation is the result of one FileEditAction.
type FileEditObservation struct {
	Content string `json:"content"`
	Path    string `json:"path"`
	OldStr  string `json:"old_str,omitempty"`
	NewStr  string `json:"new_str,omitempty"`
}

func (o FileEditObservation) Observation() string { return ObsEdit }

// ErrorObservation reports a failure resolved into a typed result
// instead of an uncaught fault.
type ErrorObservation struct {
	Content   string `json:"content"`
	ErrorType string `json:"error_type"`
}

func (o ErrorObservation) Observation() string { return ObsError }
