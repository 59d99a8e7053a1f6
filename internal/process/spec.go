package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/loykin/vitesrv/internal/logger"
)

// Spec describes a child process to launch.
type Spec struct {
	Name    string   `json:"name"`     // used for log file names
	Command string   `json:"command"`  // executable, resolved through PATH
	Args    []string `json:"args"`     // arguments passed verbatim, no shell
	WorkDir string   `json:"work_dir"` // working directory of the child
	Env     []string `json:"env"`      // extra KEY=VALUE entries on top of os.Environ

	// Log tees child output into rotated files when configured.
	Log logger.FileConfig `json:"log"`
	// Stderr, when set, additionally receives everything written to stderr.
	Stderr io.Writer `json:"-"`
}

var errEmptyCommand = errors.New("empty command")

// BuildCommand constructs the *exec.Cmd for s. Stdin is never connected
// and stdout/stderr are left for Start to wire into pipes.
func (s Spec) BuildCommand() (*exec.Cmd, error) {
	name := strings.TrimSpace(s.Command)
	if name == "" {
		return nil, errEmptyCommand
	}
	// #nosec G204 -- the command comes from daemon configuration, not from callers
	cmd := exec.Command(name, s.Args...)
	cmd.Dir = s.WorkDir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	cmd.Stdin = nil
	configureSysProcAttr(cmd)
	return cmd, nil
}

// CommandLine renders the command for logs.
func (s Spec) CommandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}
