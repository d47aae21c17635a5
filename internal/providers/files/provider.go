// Package files implements the file read/write/edit operations exposed
// through the action interface. Failures are folded into the returned
// observation's content so the controller always gets exactly one
// observation per action.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/codebox-sh/codebox/internal/events"
	"github.com/codebox-sh/codebox/internal/infrastructure/logging"
)

// EditStrReplace is the only supported edit command.
const EditStrReplace = "str_replace"

// Provider resolves relative paths against the live working directory
// of the bash session, so file actions and shell commands agree on
// where "here" is.
type Provider struct {
	cwd func() string
	log *logging.Logger
}

// NewProvider creates a file operations provider. cwd supplies the
// current session working directory.
func NewProvider(cwd func() string, log *logging.Logger) *Provider {
	if log == nil {
		log = logging.NewNop()
	}
	return &Provider{cwd: cwd, log: log}
}

// Read returns a file's content.
func (p *Provider) Read(act events.FileReadAction) events.FileReadObservation {
	path := p.resolve(act.Path)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return events.FileReadObservation{
				Content: fmt.Sprintf("File not found: %s. Your current working directory is %s.", path, p.cwd()),
				Path:    path,
			}
		}
		return events.FileReadObservation{
			Content: fmt.Sprintf("Error reading file %s: %v", path, err),
			Path:    path,
		}
	}
	if info.IsDir() {
		return events.FileReadObservation{
			Content: fmt.Sprintf("Path is a directory: %s. You can only read files.", path),
			Path:    path,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return events.FileReadObservation{
			Content: fmt.Sprintf("Error reading file %s: %v", path, err),
			Path:    path,
		}
	}
	return events.FileReadObservation{Content: string(data), Path: path}
}

// Write writes a file, creating parent directories.
func (p *Provider) Write(act events.FileWriteAction) events.FileWriteObservation {
	path := p.resolve(act.Path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return events.FileWriteObservation{
			Content: fmt.Sprintf("Error writing file %s: %v", path, err),
			Path:    path,
		}
	}
	if err := os.WriteFile(path, []byte(act.Content), 0o644); err != nil {
		return events.FileWriteObservation{
			Content: fmt.Sprintf("Error writing file %s: %v", path, err),
			Path:    path,
		}
	}

	p.log.Debug("file written", zap.String("path", path), zap.Int("bytes", len(act.Content)))
	return events.FileWriteObservation{Content: "File written successfully", Path: path}
}

// Edit applies an edit command to an existing file.
func (p *Provider) Edit(act events.FileEditAction) events.FileEditObservation {
	path := p.resolve(act.Path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return events.FileEditObservation{
				Content: fmt.Sprintf("File not found: %s", path),
				Path:    path,
			}
		}
		return events.FileEditObservation{
			Content: fmt.Sprintf("Error editing file %s: %v", path, err),
			Path:    path,
		}
	}

	if act.Command != EditStrReplace {
		return events.FileEditObservation{
			Content: fmt.Sprintf("Unsupported edit command: %q (only %q is supported)", act.Command, EditStrReplace),
			Path:    path,
		}
	}
	if act.OldStr == "" {
		return events.FileEditObservation{
			Content: "old_str is required for str_replace",
			Path:    path,
		}
	}

	content := string(data)
	if !strings.Contains(content, act.OldStr) {
		return events.FileEditObservation{
			Content: fmt.Sprintf("old_str not found in %s; no changes made", path),
			Path:    path,
		}
	}

	updated := strings.ReplaceAll(content, act.OldStr, act.NewStr)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return events.FileEditObservation{
			Content: fmt.Sprintf("Error editing file %s: %v", path, err),
			Path:    path,
		}
	}

	return events.FileEditObservation{
		Content: "File edited successfully",
		Path:    path,
		OldStr:  act.OldStr,
		NewStr:  act.NewStr,
	}
}

func (p *Provider) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(p.cwd(), path)
}
