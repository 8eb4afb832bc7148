// Package filetool implements the built-in file-shaped tools: file-read,
// file-glob, file-grep, file-write, and file-edit (built-in
// tool inventory). Each satisfies toolruntime.Handler.
//
// Follows pkg/tool/tool.go's functiontool-style simple tool shape
// (CallableTool), generalized from a single Call method into one Handler
// per filesystem operation.
package filetool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/arbiterloop/engine/toolruntime"
)

// Read implements file-read: returns a file's full contents.
type Read struct{}

func (Read) Name() string          { return "file-read" }
func (Read) Description() string   { return "Returns the contents of a file at the given path." }
func (Read) RequiresApproval() bool { return false }
func (Read) Schema() map[string]any { return toolruntime.GenerateSchema[readInput]() }

type readInput struct {
	Path string `json:"path" jsonschema:"required,description=Path of the file to read"`
}

func (Read) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in readInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("file-read: invalid input: %w", err)
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("file-read %s: %w", in.Path, err)
	}
	return string(data), nil
}

// Glob implements file-glob: returns paths matching a glob pattern rooted
// at an optional base path.
type Glob struct{}

func (Glob) Name() string          { return "file-glob" }
func (Glob) Description() string   { return "Returns a list of file paths matching a glob pattern." }
func (Glob) RequiresApproval() bool { return false }
func (Glob) Schema() map[string]any { return toolruntime.GenerateSchema[globInput]() }

type globInput struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Glob pattern to match"`
	Base    string `json:"base,omitempty" jsonschema:"description=Directory the pattern is rooted at"`
}

func (Glob) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in globInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("file-glob: invalid input: %w", err)
	}
	pattern := in.Pattern
	if in.Base != "" {
		pattern = filepath.Join(in.Base, in.Pattern)
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("file-glob %s: %w", pattern, err)
	}
	return matches, nil
}

// Grep implements file-grep: returns structured matches of a pattern within
// a file or, if path is a directory, every regular file beneath it.
type Grep struct{}

func (Grep) Name() string        { return "file-grep" }
func (Grep) Description() string { return "Returns structured matches of a literal substring across files." }
func (Grep) RequiresApproval() bool { return false }
func (Grep) Schema() map[string]any { return toolruntime.GenerateSchema[grepInput]() }

type grepInput struct {
	Pattern string `json:"pattern" jsonschema:"required,description=Literal substring to search for"`
	Path    string `json:"path,omitempty" jsonschema:"description=File or directory to search; defaults to the current directory"`
}

func (Grep) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in grepInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("file-grep: invalid input: %w", err)
	}
	root := in.Path
	if root == "" {
		root = "."
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil // skip unreadable files rather than aborting the whole grep
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, in.Pattern) {
				matches = append(matches, fmt.Sprintf("%s:%d: %s", path, i+1, line))
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("file-grep %s: %w", root, walkErr)
	}
	return matches, nil
}

// Write implements file-write: creates parent directories and writes content,
// overwriting any existing file. Requires approval.
type Write struct{}

func (Write) Name() string          { return "file-write" }
func (Write) Description() string   { return "Creates parent directories and writes content to a file." }
func (Write) RequiresApproval() bool { return true }
func (Write) Schema() map[string]any { return toolruntime.GenerateSchema[writeInput]() }

type writeInput struct {
	Path    string `json:"path" jsonschema:"required,description=Path of the file to write"`
	Content string `json:"content" jsonschema:"required,description=Full content to write"`
}

func (Write) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in writeInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("file-write: invalid input: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(in.Path), 0o755); err != nil {
		return nil, fmt.Errorf("file-write %s: create parent dirs: %w", in.Path, err)
	}
	if err := os.WriteFile(in.Path, []byte(in.Content), 0o644); err != nil {
		return nil, fmt.Errorf("file-write %s: %w", in.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), nil
}

// Edit implements file-edit: replaces the first (or all) occurrences of an
// exact substring. Requires approval.
type Edit struct{}

func (Edit) Name() string        { return "file-edit" }
func (Edit) Description() string { return "Replaces an exact substring within a file; fails if the substring is absent." }
func (Edit) RequiresApproval() bool { return true }
func (Edit) Schema() map[string]any { return toolruntime.GenerateSchema[editInput]() }

type editInput struct {
	Path       string `json:"path" jsonschema:"required,description=Path of the file to edit"`
	OldString  string `json:"old_string" jsonschema:"required,description=Exact substring to replace"`
	NewString  string `json:"new_string" jsonschema:"required,description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of just the first"`
}

func (Edit) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var in editInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("file-edit: invalid input: %w", err)
	}
	data, err := os.ReadFile(in.Path)
	if err != nil {
		return nil, fmt.Errorf("file-edit %s: %w", in.Path, err)
	}
	content := string(data)
	if !strings.Contains(content, in.OldString) {
		return nil, fmt.Errorf("file-edit %s: old_string not found", in.Path)
	}

	var updated string
	if in.ReplaceAll {
		updated = strings.ReplaceAll(content, in.OldString, in.NewString)
	} else {
		updated = strings.Replace(content, in.OldString, in.NewString, 1)
	}

	if err := os.WriteFile(in.Path, []byte(updated), 0o644); err != nil {
		return nil, fmt.Errorf("file-edit %s: write: %w", in.Path, err)
	}
	return fmt.Sprintf("edited %s", in.Path), nil
}
