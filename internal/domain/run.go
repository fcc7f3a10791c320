package domain

import "time"

// RecoveryRun tracks one execution of the recovery pipeline.
type RecoveryRun struct {
	ID           int64      `json:"id" db:"id"`
	Mode         RunMode    `json:"mode" db:"mode"`
	Status       RunStatus  `json:"status" db:"status"`
	WindowStart  time.Time  `json:"window_start" db:"window_start"`
	WindowEnd    time.Time  `json:"window_end" db:"window_end"`
	Pairs        int        `json:"pairs" db:"pair_count"`
	Rows         int        `json:"rows" db:"row_count"`
	SkippedPairs int        `json:"skipped_pairs" db:"skipped_pairs"`
	DroppedPairs int        `json:"dropped_pairs" db:"dropped_pairs"`
	ReportKey    string     `json:"report_key,omitempty" db:"report_key"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
}

// ObservationFilter selects the input rows of a run. Zero dates are open bounds.
type ObservationFilter struct {
	From   time.Time
	To     time.Time
	Stores []string
}
