package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/stream"
)

func eventTypes(t *testing.T, out string) []string {
	t.Helper()
	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		types = append(types, gjson.Get(line, "type").String())
	}
	return types
}

func TestEvents_SingleScenario(t *testing.T) {
	inTempDir(t)
	writeFeature(t, "features/login.feature", loginFeature)

	out := runEvents(t, event.StatusPassed, "features")

	assert.Equal(t, []string{
		"run-started", "source-read", "case-started",
		"step-started", "step-finished", "step-started", "step-finished",
		"case-finished", "run-finished",
	}, eventTypes(t, out))
}

func TestEvents_CaseKeysAndTimes(t *testing.T) {
	inTempDir(t)
	writeFeature(t, "features/login.feature", loginFeature)

	dec := stream.NewDecoder(strings.NewReader(runEvents(t, event.StatusFailed, "features/login.feature")))
	var events []event.Event
	for {
		ev, err := dec.Next()
		if err != nil {
			break
		}
		events = append(events, ev)
	}
	require.Len(t, events, 9)

	cs, ok := events[2].(event.CaseStarted)
	require.True(t, ok)
	assert.Equal(t, "features/login.feature", cs.URI)
	assert.Equal(t, 2, cs.Line)
	assert.Equal(t, "User logs in", cs.Name)

	sf, ok := events[4].(event.StepFinished)
	require.True(t, ok)
	assert.Equal(t, cs.Key(), sf.Case)
	assert.Equal(t, 3, sf.Step.Pickle.Line)
	assert.Equal(t, event.StatusFailed, sf.Result.Status)

	for i, ev := range events {
		assert.True(t, ev.When().Equal(eventsStart.Add(time.Duration(i)*time.Millisecond)), "event %d", i)
	}
}

func TestEvents_OutlineRowsAndArguments(t *testing.T) {
	inTempDir(t)
	writeFeature(t, "features/import.feature", `@data
Feature: Import
  Scenario Outline: Import <kind>
    Given a file
      """json
      {"kind": "<kind>"}
      """
    When rows are loaded
      | kind   |
      | <kind> |

    Examples:
      | kind |
      | csv  |
      | xml  |
`)

	out := runEvents(t, event.StatusPassed, "features")

	var cases []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if gjson.Get(line, "type").String() != stream.TypeCaseStarted {
			continue
		}
		cases = append(cases, gjson.Get(line, "name").String())
		assert.Equal(t, "@data", gjson.Get(line, "tags.0").String())
	}
	assert.Equal(t, []string{"Import csv", "Import xml"}, cases)
	assert.Contains(t, out, `"line":14`)
	assert.Contains(t, out, `"line":15`)

	assert.Equal(t, "json", gjson.Get(firstStep(t, out), "step.pickle.docString.mediaType").String())
	assert.Equal(t, `{"kind": "csv"}`, gjson.Get(firstStep(t, out), "step.pickle.docString.content").String())
}

func firstStep(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if gjson.Get(line, "type").String() == stream.TypeStepStarted {
			return line
		}
	}
	t.Fatal("no step-started event")
	return ""
}

func TestEvents_UnknownStatus(t *testing.T) {
	inTempDir(t)
	writeFeature(t, "features/login.feature", loginFeature)

	var buf bytes.Buffer
	err := RunEvents(context.Background(), &buf, []string{"features"}, "green", eventsStart)
	assert.Error(t, err)
	assert.Empty(t, buf.String())
}

func TestEvents_ParseError(t *testing.T) {
	inTempDir(t)
	writeFeature(t, "features/broken.feature", "Feature: Broken\n  Scenario: A\n    \"\"\"\n")

	var buf bytes.Buffer
	err := RunEvents(context.Background(), &buf, []string{"features"}, event.StatusPassed, eventsStart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features/broken.feature")
}

func TestEvents_MissingPath(t *testing.T) {
	inTempDir(t)

	var buf bytes.Buffer
	err := RunEvents(context.Background(), &buf, []string{"nope"}, event.StatusPassed, eventsStart)
	assert.Error(t, err)
}
