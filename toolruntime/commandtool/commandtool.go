// Package commandtool implements shell-exec, the Tool Runtime's built-in
// subshell command handler.
//
// Follows pkg/tool/tool.go's StreamingTool command pattern ("command
// execution (docker pull, npm install, etc.)"); this contract is
// synchronous rather than streaming, so Command implements the plain
// Handler interface instead of StreamingTool.
package commandtool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/arbiterloop/engine/toolruntime"
)

// Result is shell-exec's structured output.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// ShellOutput lets the runtime's result processor recognize this type and
// apply the shell-exec-specific truncation strategy instead of the generic
// text one.
func (r Result) ShellOutput() (stdout, stderr string) { return r.Stdout, r.Stderr }

// Command implements shell-exec: runs command in a subshell, returning exit
// code, stdout, and stderr. Requires approval.
type Command struct {
	// Shell is the interpreter invoked as `Shell -c command` (default "sh").
	Shell string
}

func (Command) Name() string          { return "shell-exec" }
func (Command) Description() string   { return "Runs a command in a subshell and returns its exit code, stdout, and stderr." }
func (Command) RequiresApproval() bool { return true }
func (Command) Schema() map[string]any { return toolruntime.GenerateSchema[commandInput]() }

type commandInput struct {
	Command string `json:"command" jsonschema:"required,description=Shell command line to run"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Seconds; 0 uses the runtime default"`
}

func (c Command) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in commandInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("shell-exec: invalid input: %w", err)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if in.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(in.Timeout)*time.Second)
		defer cancel()
	}

	shell := c.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(runCtx, shell, "-c", in.Command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil && (runCtx.Err() == context.DeadlineExceeded || runCtx.Err() == context.Canceled) {
		return nil, fmt.Errorf("shell-exec: %w", runCtx.Err())
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if runErr != nil {
		return nil, fmt.Errorf("shell-exec: %w", runErr)
	}

	return result, nil
}
