// Package audit keeps the project-local records written by the editor
// hooks: an append-only log of findings and per-file edit counters.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"guardian/internal/model"
	"guardian/internal/safefile"
)

const (
	dirName       = ".guardian"
	logFile       = "findings.json"
	stateFile     = "state.json"
	maxLogEntries = 1000
	maxStateBytes = 8 << 20

	// Edit counts at which a file is reported as drifting.
	WarnIterations = 4
	HighIterations = 6
)

// Entry is one logged finding.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	File      string         `json:"file"`
	RuleID    string         `json:"rule_id"`
	Title     string         `json:"title"`
	Severity  model.Severity `json:"severity"`
	Line      int            `json:"line"`
	CWE       string         `json:"cwe,omitempty"`
}

// LogPath returns the findings log location under root.
func LogPath(root string) string {
	return filepath.Join(root, dirName, logFile)
}

// StatePath returns the tracker state location under root.
func StatePath(root string) string {
	return filepath.Join(root, dirName, stateFile)
}

// AppendFindings adds one entry per finding to the log at path, keeping the
// newest maxLogEntries. A corrupt log is replaced.
func AppendFindings(path string, file string, findings []model.Finding, now time.Time) error {
	if len(findings) == 0 {
		return nil
	}
	var entries []Entry
	if data, err := safefile.ReadFileLimited(path, maxStateBytes); err == nil {
		if json.Unmarshal(data, &entries) != nil {
			entries = nil
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read findings log: %w", err)
	}
	for _, f := range findings {
		entries = append(entries, Entry{
			Timestamp: now.UTC(),
			File:      file,
			RuleID:    f.RuleID,
			Title:     f.Title,
			Severity:  f.Severity,
			Line:      f.Line,
			CWE:       f.CWE,
		})
	}
	if len(entries) > maxLogEntries {
		entries = entries[len(entries)-maxLogEntries:]
	}
	return writeJSON(path, entries)
}

// ReadLog returns the logged entries, oldest first.
func ReadLog(path string) ([]Entry, error) {
	data, err := safefile.ReadFileLimited(path, maxStateBytes)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse findings log %s: %w", path, err)
	}
	return entries, nil
}

type Level string

const (
	LevelNone    Level = "none"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelHigh    Level = "high"
)

// FileState counts edits to one file and the rules that have fired on it.
type FileState struct {
	Iterations   int       `json:"iterations"`
	FirstSeen    time.Time `json:"first_seen"`
	LastModified time.Time `json:"last_modified"`
	RuleIDs      []string  `json:"rule_ids,omitempty"`
}

type Stats struct {
	TotalScans        int `json:"total_scans"`
	BlockedOperations int `json:"blocked_operations"`
	WarningsIssued    int `json:"warnings_issued"`
}

// Tracker is the decoded state file. It is not safe for concurrent use.
type Tracker struct {
	Created time.Time             `json:"created"`
	Updated time.Time             `json:"updated"`
	Files   map[string]*FileState `json:"files"`
	Stats   Stats                 `json:"stats"`

	path string
	root string
}

// Status is a file's edit count and how worried to be about it.
type Status struct {
	Path       string
	Iterations int
	Level      Level
	RuleIDs    []string
}

func (s Status) Message() string {
	switch s.Level {
	case LevelHigh:
		return fmt.Sprintf("%s has been rewritten %d times; review the whole file for regressions before editing it again", s.Path, s.Iterations)
	case LevelWarning:
		return fmt.Sprintf("%s has been rewritten %d times; re-check earlier security fixes", s.Path, s.Iterations)
	case LevelInfo:
		return fmt.Sprintf("%s: edit %d", s.Path, s.Iterations)
	default:
		return s.Path + ": not tracked"
	}
}

// OpenTracker loads the state under root, starting fresh when the file is
// missing or unreadable as JSON.
func OpenTracker(root string, now time.Time) (*Tracker, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	path := StatePath(root)
	t := &Tracker{path: path, root: root}
	data, readErr := safefile.ReadFileLimited(path, maxStateBytes)
	switch {
	case readErr == nil:
		if json.Unmarshal(data, t) != nil {
			*t = Tracker{path: path, root: root}
		}
	case !os.IsNotExist(readErr):
		return nil, fmt.Errorf("read tracker state: %w", readErr)
	}
	if t.Files == nil {
		t.Files = map[string]*FileState{}
	}
	if t.Created.IsZero() {
		t.Created = now.UTC()
	}
	return t, nil
}

// Save writes the state back atomically.
func (t *Tracker) Save(now time.Time) error {
	t.Updated = now.UTC()
	return writeJSON(t.path, t)
}

// Increment records one more edit of file.
func (t *Tracker) Increment(file string, now time.Time) Status {
	key := t.key(file)
	fs := t.Files[key]
	if fs == nil {
		fs = &FileState{FirstSeen: now.UTC()}
		t.Files[key] = fs
	}
	fs.Iterations++
	fs.LastModified = now.UTC()
	return t.status(key)
}

// RecordRules remembers which rules fired on file.
func (t *Tracker) RecordRules(file string, ruleIDs ...string) {
	fs := t.Files[t.key(file)]
	if fs == nil {
		return
	}
	for _, id := range ruleIDs {
		if !containsString(fs.RuleIDs, id) {
			fs.RuleIDs = append(fs.RuleIDs, id)
		}
	}
	sort.Strings(fs.RuleIDs)
}

// Reset forgets file and reports whether it was tracked.
func (t *Tracker) Reset(file string) bool {
	key := t.key(file)
	_, ok := t.Files[key]
	delete(t.Files, key)
	return ok
}

func (t *Tracker) Status(file string) Status {
	return t.status(t.key(file))
}

// All returns every tracked file, most edited first.
func (t *Tracker) All() []Status {
	out := make([]Status, 0, len(t.Files))
	for key := range t.Files {
		out = append(out, t.status(key))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Iterations != out[j].Iterations {
			return out[i].Iterations > out[j].Iterations
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func (t *Tracker) status(key string) Status {
	fs := t.Files[key]
	if fs == nil {
		return Status{Path: key, Level: LevelNone}
	}
	st := Status{Path: key, Iterations: fs.Iterations, RuleIDs: fs.RuleIDs, Level: LevelInfo}
	switch {
	case fs.Iterations >= HighIterations:
		st.Level = LevelHigh
	case fs.Iterations >= WarnIterations:
		st.Level = LevelWarning
	}
	return st
}

// key makes file relative to the project root when it lies inside it.
func (t *Tracker) key(file string) string {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(t.root, abs)
	}
	rel, err := filepath.Rel(t.root, filepath.Clean(abs))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if _, err := safefile.EnsureDir(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	return safefile.WriteFileAtomic(path, append(data, '\n'), 0o600)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
