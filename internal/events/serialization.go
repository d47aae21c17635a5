package events

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// envelope is the wire shape of an action: a kind discriminator and a
// kind-specific args object.
type envelope struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// ActionFromDict decodes a raw action dict into its typed form.
func ActionFromDict(raw []byte) (Action, error) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed action: %w", err)
	}
	if env.Action == "" {
		return nil, fmt.Errorf("action field is required")
	}
	args := env.Args
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	switch env.Action {
	case ActionRun:
		var a CmdRunAction
		if err := sonic.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("malformed %s args: %w", env.Action, err)
		}
		return a, nil
	case ActionRunIPython:
		var a IPythonRunCellAction
		if err := sonic.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("malformed %s args: %w", env.Action, err)
		}
		return a, nil
	case ActionRead:
		var a FileReadAction
		if err := sonic.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("malformed %s args: %w", env.Action, err)
		}
		return a, nil
	case ActionWrite:
		var a FileWriteAction
		if err := sonic.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("malformed %s args: %w", env.Action, err)
		}
		return a, nil
	case ActionEdit:
		var a FileEditAction
		if err := sonic.Unmarshal(args, &a); err != nil {
			return nil, fmt.Errorf("malformed %s args: %w", env.Action, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unsupported action type: %s", env.Action)
	}
}

// ObservationToDict encodes a typed observation into the wire dict:
// the kind, the primary content, and kind-specific extras.
func ObservationToDict(obs Observation) map[string]interface{} {
	dict := map[string]interface{}{
		"observation": obs.Observation(),
	}

	switch o := obs.(type) {
	case CmdOutputObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{
			"command":     o.Command,
			"exit_code":   o.ExitCode,
			"classifier":  o.Classifier,
			"truncated":   o.Truncated,
			"working_dir": o.WorkingDir,
			"session_id":  o.SessionID,
		}
	case IPythonRunCellObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{
			"code":       o.Code,
			"image_urls": o.ImageURLs,
		}
	case FileReadObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{"path": o.Path}
	case FileWriteObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{"path": o.Path}
	case FileEditObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{
			"path":    o.Path,
			"old_str": o.OldStr,
			"new_str": o.NewStr,
		}
	case ErrorObservation:
		dict["content"] = o.Content
		dict["extras"] = map[string]interface{}{"error_type": o.ErrorType}
	}

	return dict
}
