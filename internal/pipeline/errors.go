package pipeline

import "fmt"

// Stage names, in execution order.
const (
	StageLoadMaster      = "load-master"
	StageLoadRaw         = "load-raw"
	StageNormalize       = "normalize"
	StageValidateHeaders = "validate-headers"
	StageValidateItems   = "validate-items"
	StageRoute           = "route"
)

// Stages lists every stage in execution order.
var Stages = []string{
	StageLoadMaster,
	StageLoadRaw,
	StageNormalize,
	StageValidateHeaders,
	StageValidateItems,
	StageRoute,
}

// StageError is returned when a stage fails. The stage's writes were not
// committed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}
