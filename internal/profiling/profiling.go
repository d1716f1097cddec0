// Package profiling appends one JSON line per build to a local log.
//
// Profiling is best effort: a log that cannot be written never affects a build.
package profiling

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileName is the log name inside the user cache directory
const DefaultFileName = "profile.jsonl"

// Record is one profiled build
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	BuildID       string    `json:"build_id"`
	Project       string    `json:"project"`
	Toolchain     string    `json:"toolchain"`
	Success       bool      `json:"success"`
	Skipped       bool      `json:"skipped"`
	CheckOnly     bool      `json:"check_only"`
	ElapsedMillis int64     `json:"elapsed_ms"`
	Files         int       `json:"files"`
}

// Profiler writes records to path. A nil or disabled Profiler does nothing.
type Profiler struct {
	mu      sync.Mutex
	path    string
	enabled bool
}

// New creates a profiler. An empty path selects DefaultPath.
func New(path string, enabled bool) *Profiler {
	if path == "" {
		path = DefaultPath()
	}

	return &Profiler{
		path:    path,
		enabled: enabled && path != "",
	}
}

// DefaultPath returns <user cache dir>/cpplab/profile.jsonl, or "" when there is no cache dir
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	return filepath.Join(dir, "cpplab", DefaultFileName)
}

// Enabled reports whether Record writes anything
func (p *Profiler) Enabled() bool {
	return p != nil && p.enabled
}

// Path returns the log location
func (p *Profiler) Path() string {
	if p == nil {
		return ""
	}

	return p.path
}

// Record appends rec to the log, ignoring write failures
func (p *Profiler) Record(rec Record) {
	if !p.Enabled() {
		return
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	f.Write(append(data, '\n'))
}

// ReadAll reads every well-formed record in the log at path. Malformed lines are skipped.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}

		records = append(records, rec)
	}

	return records, scanner.Err()
}
