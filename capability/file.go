package capability

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/taskory"
)

var (
	renameRe = regexp.MustCompile(`(?i)\b(?:rename|move)\s+(\S+?)\s+(?:to|into|as)\s+(\S+)`)
	writeRe  = regexp.MustCompile(`(?i)\b(?:write|save|create|put)\b.*?\b(?:to|into|as|in|named)\s+(\S+)`)
	readRe   = regexp.MustCompile(`(?i)\b(?:read|open|show|display|cat)\s+(\S+)`)
	listRe   = regexp.MustCompile(`(?i)\b(?:list|ls)\b|\bwhat files\b`)
)

// File serves filesystem tasks scoped under a root directory. The task
// description carries the operation in natural language; paths escaping
// the root are rejected. The kind requires confirmation because it can
// mutate files.
type File struct {
	root string
}

// NewFile creates the file capability rooted at dir.
func NewFile(dir string) *File {
	return &File{root: dir}
}

func (f *File) Specs(ctx context.Context) ([]taskory.CapabilitySpec, error) {
	return []taskory.CapabilitySpec{
		{
			Name:                 "file",
			Kind:                 taskory.CapabilityFile,
			Description:          "Read, write, rename and list files under the working directory",
			RequiresConfirmation: true,
			Parameters: map[string]*taskory.Parameter{
				"description": {
					Type:        taskory.TypeString,
					Description: "The file operation to perform, in natural language",
					Required:    true,
				},
			},
		},
	}, nil
}

func (f *File) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	description, err := descriptionArg(args)
	if err != nil {
		return nil, err
	}

	if m := renameRe.FindStringSubmatch(description); m != nil {
		return f.rename(trimName(m[1]), trimName(m[2]))
	}
	if m := writeRe.FindStringSubmatch(description); m != nil {
		return f.write(trimName(m[1]), writeContent(description, args))
	}
	if m := readRe.FindStringSubmatch(description); m != nil {
		return f.read(trimName(m[1]))
	}
	if listRe.MatchString(description) {
		return f.list()
	}

	return nil, goerr.Wrap(taskory.ErrInvalidParameter,
		"could not determine a file operation from the description",
		goerr.V("description", description), goerr.T(taskory.TagValidation))
}

func (f *File) rename(from, to string) (map[string]any, error) {
	src, err := f.resolve(from)
	if err != nil {
		return nil, err
	}
	dst, err := f.resolve(to)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(src, dst); err != nil {
		return nil, goerr.Wrap(err, "rename failed",
			goerr.V("from", from), goerr.V("to", to), goerr.T(taskory.TagValidation))
	}
	return map[string]any{"content": "renamed " + from + " to " + to}, nil
}

func (f *File) write(path, content string) (map[string]any, error) {
	target, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create parent directory", goerr.V("path", path))
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return nil, goerr.Wrap(err, "write failed", goerr.V("path", path))
	}
	return map[string]any{"content": "wrote " + path}, nil
}

func (f *File) read(path string) (map[string]any, error) {
	target, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, goerr.Wrap(err, "read failed",
			goerr.V("path", path), goerr.T(taskory.TagValidation))
	}
	return map[string]any{"content": string(data)}, nil
}

func (f *File) list() (map[string]any, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, goerr.Wrap(err, "list failed", goerr.V("root", f.root))
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]any{"content": strings.Join(names, "\n")}, nil
}

// resolve maps a user-supplied path into the root directory, rejecting
// absolute paths and traversal out of the root.
func (f *File) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", goerr.Wrap(taskory.ErrInvalidParameter, "absolute paths are not allowed",
			goerr.V("path", path), goerr.T(taskory.TagValidation))
	}
	cleaned := filepath.Clean(path)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", goerr.Wrap(taskory.ErrInvalidParameter, "path escapes the working directory",
			goerr.V("path", path), goerr.T(taskory.TagValidation))
	}
	return filepath.Join(f.root, cleaned), nil
}

// writeContent picks the body for a write: forwarded dependency outputs
// when present, otherwise the description itself.
func writeContent(description string, args map[string]any) string {
	inputs, ok := args["inputs"].(map[string]any)
	if !ok || len(inputs) == 0 {
		return description
	}

	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		if s, ok := inputs[k].(string); ok {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return description
	}
	return strings.Join(parts, "\n")
}

func trimName(s string) string {
	return strings.Trim(s, "`'\"“”.,;:")
}
