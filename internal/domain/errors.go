package domain

import (
	"fmt"
	"time"
)

// DataContractError reports a malformed input series. It is fatal for the batch.
type DataContractError struct {
	Reason string
	Key    PairKey
	Date   time.Time
}

func (e *DataContractError) Error() string {
	if e.Key == (PairKey{}) && e.Date.IsZero() {
		return "data contract violated: " + e.Reason
	}
	return fmt.Sprintf("data contract violated for %s on %s: %s",
		e.Key, e.Date.Format("2006-01-02"), e.Reason)
}

// PairFittingError reports that the imputer could not be fitted for one pair.
// The pair's censored days pass through unmodified.
type PairFittingError struct {
	Key      PairKey
	Strategy string
	Err      error
}

func (e *PairFittingError) Error() string {
	return fmt.Sprintf("fit %s imputer for %s: %v", e.Strategy, e.Key, e.Err)
}

func (e *PairFittingError) Unwrap() error {
	return e.Err
}

// UnmatchedPairWarning reports an incremental pair with no persisted profile.
type UnmatchedPairWarning struct {
	Key PairKey
}

func (e *UnmatchedPairWarning) Error() string {
	return fmt.Sprintf("no persisted profile for %s", e.Key)
}
