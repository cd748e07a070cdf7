package correlator

import "errors"

// Each of these means the event stream broke an ordering or identity rule
// the engine guarantees. Processing stops when one is returned.
var (
	ErrFeatureMismatch        = errors.New("correlator: case uri does not match its feature")
	ErrScenarioAlreadyStarted = errors.New("correlator: scenario item already started")
	ErrScenarioNotStarted     = errors.New("correlator: scenario item not started")
	ErrScenarioFinished       = errors.New("correlator: scenario already finished")
	ErrUnknownCase            = errors.New("correlator: no running scenario for case")
	ErrUnknownStepLine        = errors.New("correlator: unknown line for feature/scenario")
	ErrNoOpenStep             = errors.New("correlator: no open step")
	ErrNoOpenHook             = errors.New("correlator: no open hook")
	ErrStepAlreadyOpen        = errors.New("correlator: previous step not finished")
	ErrHookAlreadyOpen        = errors.New("correlator: previous hook not finished")
	ErrNoFeatureEndTime       = errors.New("correlator: feature has no recorded end time")
)
