package history

import "time"

// Record describes one build attempt
type Record struct {
	// ID is the build identifier reported to the user
	ID string `json:"id"`

	Project   string `json:"project"`
	Root      string `json:"root"`
	Toolchain string `json:"toolchain"`

	Success   bool `json:"success"`
	Skipped   bool `json:"skipped"`
	CheckOnly bool `json:"check_only"`

	// Failure is the failure kind name, empty on success
	Failure string `json:"failure,omitempty"`

	ElapsedMillis int64 `json:"elapsed_ms"`
	Errors        int   `json:"errors"`
	Warnings      int   `json:"warnings"`

	Timestamp time.Time `json:"timestamp"`
}
