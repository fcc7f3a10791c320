package domain

import "strings"

// RunMode is the kind of recovery run.
type RunMode string

const (
	// RunModeFirst recomputes labels, lags and corrections over a full history.
	RunModeFirst RunMode = "first"
	// RunModeNext reuses persisted profiles for a new window.
	RunModeNext RunMode = "next"
)

// RunStatus is the lifecycle state of a recovery run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

var runModeLabels = map[RunMode]string{
	RunModeFirst: "Full recovery",
	RunModeNext:  "Incremental recovery",
}

var runModeCodes = map[string]RunMode{
	"first":       RunModeFirst,
	"full":        RunModeFirst,
	"next":        RunModeNext,
	"incremental": RunModeNext,
}

// RunModeLabel returns a human-readable label for a run mode.
func RunModeLabel(mode RunMode) string {
	if label, ok := runModeLabels[mode]; ok {
		return label
	}

	return "Unknown"
}

// ParseRunMode returns the run mode for a given name (case-insensitive).
func ParseRunMode(name string) (RunMode, bool) {
	mode, ok := runModeCodes[strings.ToLower(strings.TrimSpace(name))]

	return mode, ok
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}
