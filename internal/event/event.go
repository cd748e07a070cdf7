// Package event defines the lifecycle events a test engine emits while it
// runs features.
package event

import (
	"time"
)

// Event is any lifecycle event.
type Event interface {
	When() time.Time
}

// CaseKey identifies one running test case: the feature file and the line of
// the scenario or example row it was compiled from.
type CaseKey struct {
	URI  string `json:"uri"`
	Line int    `json:"line"`
}

type RunStarted struct {
	Time time.Time `json:"time"`
}

type SourceRead struct {
	Time time.Time `json:"time"`
	URI  string    `json:"uri"`
	Text string    `json:"text"`
}

type CaseStarted struct {
	Time time.Time `json:"time"`
	URI  string    `json:"uri"`
	Line int       `json:"line"`
	Name string    `json:"name"`
	Tags []string  `json:"tags,omitempty"`
}

// Key returns the correlation key of the case.
func (e CaseStarted) Key() CaseKey {
	return CaseKey{URI: e.URI, Line: e.Line}
}

type StepStarted struct {
	Time time.Time `json:"time"`
	Case CaseKey   `json:"case"`
	Step TestStep  `json:"step"`
}

type StepFinished struct {
	Time   time.Time `json:"time"`
	Case   CaseKey   `json:"case"`
	Step   TestStep  `json:"step"`
	Result Result    `json:"result"`
}

type CaseFinished struct {
	Time   time.Time `json:"time"`
	Case   CaseKey   `json:"case"`
	Result Result    `json:"result"`
}

type RunFinished struct {
	Time time.Time `json:"time"`
}

// Embed carries a binary attachment. MediaType is the engine's claim and may
// be wrong.
type Embed struct {
	Time      time.Time `json:"time"`
	Case      CaseKey   `json:"case"`
	MediaType string    `json:"mediaType,omitempty"`
	Name      string    `json:"name,omitempty"`
	Data      []byte    `json:"data"`
}

type Write struct {
	Time time.Time `json:"time"`
	Case CaseKey   `json:"case"`
	Text string    `json:"text"`
}

func (e RunStarted) When() time.Time   { return e.Time }
func (e SourceRead) When() time.Time   { return e.Time }
func (e CaseStarted) When() time.Time  { return e.Time }
func (e StepStarted) When() time.Time  { return e.Time }
func (e StepFinished) When() time.Time { return e.Time }
func (e CaseFinished) When() time.Time { return e.Time }
func (e RunFinished) When() time.Time  { return e.Time }
func (e Embed) When() time.Time        { return e.Time }
func (e Write) When() time.Time        { return e.Time }
