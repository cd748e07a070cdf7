package parser

import (
	"errors"
	"fmt"
)

var (
	// ErrScenarioNotFound means no scenario or example row matches a test case.
	ErrScenarioNotFound = errors.New("parser: scenario not found")

	// ErrRowNotFound means a line is not an example row of the outline.
	ErrRowNotFound = errors.New("parser: example row not found")
)

// IsOutline reports whether the scenario expands into one run per example row.
func (s *Scenario) IsOutline() bool {
	return len(s.Examples) > 0 || s.Keyword == "Scenario Outline" || s.Keyword == "Scenario Template"
}

// LocateScenario finds the scenario a test case was compiled from: either a
// scenario declared at line with the given name, or an outline owning an
// example row at line.
func (d *Document) LocateScenario(line int, name string) (*Scenario, error) {
	for _, sc := range d.Feature.Scenarios {
		if sc.Line == line && sc.Name == name {
			return sc, nil
		}
		if sc.IsOutline() && sc.hasRow(line) {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("%w: %s:%d %q", ErrScenarioNotFound, d.URI, line, name)
}

// RowIndex returns the 1-based position of the example row at line, counted
// across all example blocks in table order.
func (s *Scenario) RowIndex(line int) (int, error) {
	s.indexRows()
	idx, ok := s.rows[line]
	if !ok {
		return 0, fmt.Errorf("%w: line %d in outline %q", ErrRowNotFound, line, s.Name)
	}
	return idx, nil
}

// ExampleRow returns the header and cells of the example row at line.
func (s *Scenario) ExampleRow(line int) (header []string, cells []string, ok bool) {
	for _, ex := range s.Examples {
		for _, row := range ex.Rows {
			if row.Line == line && ex.Header != nil {
				return ex.Header.Cells, row.Cells, true
			}
		}
	}
	return nil, nil, false
}

func (s *Scenario) hasRow(line int) bool {
	s.indexRows()
	_, ok := s.rows[line]
	return ok
}

func (s *Scenario) indexRows() {
	s.rowsOnce.Do(func() {
		s.rows = make(map[int]int)
		n := 0
		for _, ex := range s.Examples {
			for _, row := range ex.Rows {
				n++
				s.rows[row.Line] = n
			}
		}
	})
}

// StepLines indexes background and scenario steps by source line.
func StepLines(bg *Background, sc *Scenario) map[int]*Step {
	idx := make(map[int]*Step)
	if bg != nil {
		for _, st := range bg.Steps {
			idx[st.Line] = st
		}
	}
	for _, st := range sc.Steps {
		idx[st.Line] = st
	}
	return idx
}
