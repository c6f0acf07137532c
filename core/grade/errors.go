package grade

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrArtifactMissing = errors.New("prediction artifact missing")
	ErrSchemaMismatch  = errors.New("prediction artifact schema mismatch")
	ErrNotFound        = errors.New("student not found")
	ErrConflict        = errors.New("marks record was modified concurrently")
)

// Stage is a state of the prediction pipeline.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageFetchingRecord   Stage = "fetching_record"
	StageBuildingFeatures Stage = "building_features"
	StageNormalizing      Stage = "normalizing"
	StageClassifying      Stage = "classifying"
	StagePersisting       Stage = "persisting"
	StageNotifying        Stage = "notifying"
	StageDone             Stage = "done"
	StageFailed           Stage = "failed"
)

// PredictionError is returned when the pipeline transitions to StageFailed.
type PredictionError struct {
	Stage Stage
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed while %s: %v", e.Stage, e.Err)
}

func (e *PredictionError) Cause() error  { return e.Err }
func (e *PredictionError) Unwrap() error { return e.Err }

// Kind returns the sentinel error the failure is classified as, if any.
func (e *PredictionError) Kind() error {
	cause := errors.Cause(e.Err)
	switch cause {
	case ErrArtifactMissing, ErrSchemaMismatch, ErrNotFound, ErrConflict:
		return cause
	}
	return nil
}
