package capability_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
)

func invokeFile(t *testing.T, f *capability.File, description string) (map[string]any, error) {
	t.Helper()
	return f.Invoke(t.Context(), "file", map[string]any{"description": description})
}

func TestFileRename(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("memo"), 0o644))

	f := capability.NewFile(dir)
	out, err := invokeFile(t, f, "Rename notes.txt to draft.txt")
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("renamed notes.txt to draft.txt"))

	data, err := os.ReadFile(filepath.Join(dir, "draft.txt"))
	gt.NoError(t, err)
	gt.Equal(t, string(data), "memo")

	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	gt.Error(t, err)
}

func TestFileWrite(t *testing.T) {
	dir := t.TempDir()
	f := capability.NewFile(dir)

	t.Run("description as body", func(t *testing.T) {
		_, err := invokeFile(t, f, "Save the meeting summary to summary.txt")
		gt.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
		gt.NoError(t, err)
		gt.Equal(t, string(data), "Save the meeting summary to summary.txt")
	})

	t.Run("forwarded inputs as body", func(t *testing.T) {
		_, err := f.Invoke(t.Context(), "file", map[string]any{
			"description": "Save the poem to poem.txt",
			"inputs": map[string]any{
				"t2": "second stanza",
				"t1": "first stanza",
			},
		})
		gt.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(dir, "poem.txt"))
		gt.NoError(t, err)
		gt.Equal(t, string(data), "first stanza\nsecond stanza")
	})
}

func TestFileRead(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "data.txt"), []byte("payload"), 0o644))

	f := capability.NewFile(dir)
	out, err := invokeFile(t, f, "Read data.txt")
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("payload"))
}

func TestFileList(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o644))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	gt.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	f := capability.NewFile(dir)
	out, err := invokeFile(t, f, "List the files in the working directory")
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("a.txt\nb.txt\nsub/"))
}

func TestFileRejectsEscapingPaths(t *testing.T) {
	f := capability.NewFile(t.TempDir())

	cases := []struct {
		name        string
		description string
	}{
		{"absolute path", "Read /etc/passwd"},
		{"parent traversal", "Read ../secret.txt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := invokeFile(t, f, tc.description)
			gt.Error(t, err)
			gt.True(t, goerr.HasTag(err, taskory.TagValidation))
		})
	}
}

func TestFileUnrecognizedOperation(t *testing.T) {
	f := capability.NewFile(t.TempDir())
	_, err := invokeFile(t, f, "Dance a jig for the audience")
	gt.True(t, errors.Is(err, taskory.ErrInvalidParameter))
	gt.True(t, goerr.HasTag(err, taskory.TagValidation))
}

func TestFileMissingDescription(t *testing.T) {
	f := capability.NewFile(t.TempDir())
	_, err := f.Invoke(t.Context(), "file", map[string]any{})
	gt.True(t, errors.Is(err, taskory.ErrInvalidParameter))
}
