package taskory

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const SnapshotVersion = 1

// Snapshot is the serializable state of one session: its bounded
// history, the active plan and its execution bookkeeping. Versioned so
// incompatible snapshots are rejected instead of half-loaded.
type Snapshot struct {
	Version   int           `json:"version"`
	SessionID string        `json:"session_id"`
	Mode      ExecutionMode `json:"mode"`
	History   []Message     `json:"history,omitempty"`
	Plan      *Plan         `json:"plan,omitempty"`
	Executed  []string      `json:"executed,omitempty"`
	Skipped   []string      `json:"skipped,omitempty"`
	SavedAt   time.Time     `json:"saved_at"`
}

// snapshotSession captures session state under the session lock.
func snapshotSession(ssn *Session) *Snapshot {
	executed := make([]string, 0, len(ssn.executed))
	for id := range ssn.executed {
		executed = append(executed, id)
	}
	skipped := make([]string, 0, len(ssn.skipped))
	for id := range ssn.skipped {
		skipped = append(skipped, id)
	}
	return &Snapshot{
		Version:   SnapshotVersion,
		SessionID: ssn.id,
		Mode:      ssn.mode,
		History:   ssn.historyCopy(),
		Plan:      ssn.activePlan,
		Executed:  executed,
		Skipped:   skipped,
		SavedAt:   time.Now(),
	}
}

// restoreSession rebuilds a session from a snapshot. Plan-scoped
// bookkeeping that is not serialized (permission grants, pending
// confirmation, run records) starts fresh.
func restoreSession(snap *Snapshot, historyLimit int) (*Session, error) {
	if snap.Version != SnapshotVersion {
		return nil, goerr.New("snapshot version mismatch",
			goerr.V("expected", SnapshotVersion), goerr.V("actual", snap.Version))
	}

	ssn := newSession(snap.SessionID, historyLimit, snap.Mode)
	for _, msg := range snap.History {
		ssn.appendMessage(msg)
	}
	ssn.activePlan = snap.Plan
	for _, id := range snap.Executed {
		ssn.executed[id] = struct{}{}
	}
	for _, id := range snap.Skipped {
		ssn.skipped[id] = struct{}{}
	}
	return ssn, nil
}

// SnapshotRepository persists session snapshots as JSON documents keyed
// by session ID.
type SnapshotRepository interface {
	// Save persists a snapshot, replacing any previous one for the
	// same session.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves the snapshot for a session. Returns nil snapshot
	// and nil error when none exists.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
}

// fileSnapshotRepository stores one JSON file per session under a
// directory.
type fileSnapshotRepository struct {
	dir string
}

// NewFileSnapshotRepository returns a SnapshotRepository backed by the
// given directory, creating it if needed.
func NewFileSnapshotRepository(dir string) (SnapshotRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create snapshot directory", goerr.V("dir", dir))
	}
	return &fileSnapshotRepository{dir: dir}, nil
}

func (r *fileSnapshotRepository) path(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".json")
}

func (r *fileSnapshotRepository) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal snapshot", goerr.V("session_id", snap.SessionID))
	}

	// Write-then-rename keeps a crash from leaving a torn snapshot.
	path := r.path(snap.SessionID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return goerr.Wrap(err, "failed to write snapshot", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerr.Wrap(err, "failed to finalize snapshot", goerr.V("path", path))
	}

	LoggerFromContext(ctx).Debug("snapshot saved", "session_id", snap.SessionID, "path", path)
	return nil
}

func (r *fileSnapshotRepository) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := os.ReadFile(r.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read snapshot", goerr.V("session_id", sessionID))
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal snapshot", goerr.V("session_id", sessionID))
	}
	return &snap, nil
}
