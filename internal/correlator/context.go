package correlator

import (
	"fmt"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/parser"
	"github.com/chriserin/ftrp/internal/reporting"
)

// FeatureContext is one feature file seen during the run. Its item is
// started when the first of its scenarios starts.
type FeatureContext struct {
	uri    string
	doc    *parser.Document
	handle *reporting.Handle
}

type scenarioState int

const (
	scenarioCreated scenarioState = iota
	scenarioRunning
	scenarioFinished
)

// ScenarioContext tracks one running test case. Events for a single case
// arrive in order from one worker, so it is not locked.
type ScenarioContext struct {
	key        event.CaseKey
	feature    *FeatureContext
	definition *parser.Scenario
	iteration  int

	backgroundKeyword string
	background        []*parser.Step
	steps             map[int]*parser.Step

	state      scenarioState
	handle     *reporting.Handle
	step       *reporting.Handle
	hook       *reporting.Handle
	hookStatus reporting.Status
	stepText   string
}

func newScenarioContext(fc *FeatureContext, e event.CaseStarted) (*ScenarioContext, error) {
	if fc.uri != e.URI {
		return nil, fmt.Errorf("%w: %s for %s", ErrFeatureMismatch, e.URI, fc.uri)
	}

	def, err := fc.doc.LocateScenario(e.Line, e.Name)
	if err != nil {
		return nil, fmt.Errorf("%s:%d: %w", e.URI, e.Line, err)
	}

	sc := &ScenarioContext{
		key:        e.Key(),
		feature:    fc,
		definition: def,
		hookStatus: reporting.StatusPassed,
	}

	if def.IsOutline() {
		sc.iteration, err = def.RowIndex(e.Line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", e.URI, e.Line, err)
		}
	}

	bg := fc.doc.Feature.Background
	if bg != nil {
		sc.backgroundKeyword = bg.Keyword
		sc.background = append([]*parser.Step(nil), bg.Steps...)
	}
	sc.steps = parser.StepLines(bg, def)
	return sc, nil
}

func (s *ScenarioContext) Key() event.CaseKey           { return s.key }
func (s *ScenarioContext) Feature() *FeatureContext     { return s.feature }
func (s *ScenarioContext) Definition() *parser.Scenario { return s.definition }

// OutlineIteration is the 1-based example row of an outline case, or 0.
func (s *ScenarioContext) OutlineIteration() int { return s.iteration }

// SetHandle binds the scenario's report item. It may be called once.
func (s *ScenarioContext) SetHandle(h *reporting.Handle) error {
	if s.handle != nil {
		return fmt.Errorf("%w: %s:%d", ErrScenarioAlreadyStarted, s.key.URI, s.key.Line)
	}
	s.handle = h
	s.state = scenarioRunning
	return nil
}

func (s *ScenarioContext) Handle() (*reporting.Handle, error) {
	switch {
	case s.state == scenarioFinished:
		return nil, fmt.Errorf("%w: %s:%d", ErrScenarioFinished, s.key.URI, s.key.Line)
	case s.handle == nil:
		return nil, fmt.Errorf("%w: %s:%d", ErrScenarioNotStarted, s.key.URI, s.key.Line)
	}
	return s.handle, nil
}

// HookStatus is the status of the last finished hook, PASSED until one
// reports otherwise.
func (s *ScenarioContext) HookStatus() reporting.Status { return s.hookStatus }

// WithBackground reports whether background steps are still pending.
func (s *ScenarioContext) WithBackground() bool {
	return len(s.background) > 0
}

// NextBackgroundStep dequeues the next pending background step.
func (s *ScenarioContext) NextBackgroundStep() *parser.Step {
	if len(s.background) == 0 {
		return nil
	}
	st := s.background[0]
	s.background = s.background[1:]
	return st
}

// Step returns the parsed step at line in the background or scenario.
func (s *ScenarioContext) Step(line int) (*parser.Step, error) {
	st, ok := s.steps[line]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%d", ErrUnknownStepLine, s.key.URI, line)
	}
	return st, nil
}

// target is where out-of-band output goes: the open step, then the open
// hook, then the scenario itself.
func (s *ScenarioContext) target() *reporting.Handle {
	switch {
	case s.step != nil:
		return s.step
	case s.hook != nil:
		return s.hook
	}
	return s.handle
}

func (s *ScenarioContext) finish() error {
	if _, err := s.Handle(); err != nil {
		return err
	}
	s.state = scenarioFinished
	return nil
}
