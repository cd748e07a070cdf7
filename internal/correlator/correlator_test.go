package correlator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/itemtree"
	"github.com/chriserin/ftrp/internal/reporting"
	"github.com/chriserin/ftrp/internal/source"
)

const billingURI = "features/billing.feature"

const billingFeature = `@area:billing
Feature: Billing
  Invoices

  Background:
    Given a customer

  Scenario: Pay invoice
    When they pay
      """
      amount: 10
      """
    Then the invoice is closed

  @wip
  Scenario Outline: Refund <n>
    When they refund <n>
    Then balance is <n>

    Examples:
      | n |
      | 1 |
      | 2 |
`

type run struct {
	t      *testing.T
	mem    *reporting.Memory
	client *reporting.Client
	c      *Correlator
	now    time.Time
}

func newRun(t *testing.T, opts ...Option) *run {
	t.Helper()
	mem := reporting.NewMemory()
	client := reporting.NewClient(context.Background(), mem)
	return &run{
		t:      t,
		mem:    mem,
		client: client,
		c:      New(client, source.NewIndex(), opts...),
		now:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (r *run) tick() time.Time {
	r.now = r.now.Add(time.Second)
	return r.now
}

func (r *run) send(ev event.Event) {
	r.t.Helper()
	require.NoError(r.t, r.c.Handle(ev))
}

func (r *run) start(uri, text string) {
	r.send(event.RunStarted{Time: r.tick()})
	r.send(event.SourceRead{Time: r.tick(), URI: uri, Text: text})
}

func (r *run) step(key event.CaseKey, line int, text string, status event.Status) {
	r.t.Helper()
	p := &event.PickleStep{Line: line, Text: text}
	r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}})
	r.send(event.StepFinished{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}, Result: event.Result{Status: status}})
}

func (r *run) hook(key event.CaseKey, t event.HookType, location string, status event.Status) {
	r.t.Helper()
	h := &event.Hook{Type: t, Location: location}
	r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}})
	r.send(event.StepFinished{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}, Result: event.Result{Status: status}})
}

func (r *run) close() {
	r.t.Helper()
	require.NoError(r.t, r.client.Close())
}

func item(t *testing.T, mem *reporting.Memory, name string) reporting.MemoryItem {
	t.Helper()
	it, ok := mem.Item(name)
	require.True(t, ok, "item %q not reported", name)
	return it
}

func TestCorrelator_StepShape(t *testing.T) {
	r := newRun(t)
	r.start(billingURI, billingFeature)

	pay := event.CaseKey{URI: billingURI, Line: 8}
	r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice", Tags: []string{"@area:billing"}})
	r.step(pay, 6, "a customer", event.StatusPassed)
	doc := &event.PickleStep{Line: 9, Text: "they pay", DocString: &event.DocString{Content: "amount: 10"}}
	r.send(event.StepStarted{Time: r.tick(), Case: pay, Step: event.TestStep{Pickle: doc}})
	r.send(event.StepFinished{Time: r.tick(), Case: pay, Step: event.TestStep{Pickle: doc}, Result: event.Result{Status: event.StatusPassed}})
	failed := &event.PickleStep{Line: 13, Text: "the invoice is closed"}
	r.send(event.StepStarted{Time: r.tick(), Case: pay, Step: event.TestStep{Pickle: failed}})
	r.send(event.StepFinished{Time: r.tick(), Case: pay, Step: event.TestStep{Pickle: failed}, Result: event.Result{Status: event.StatusFailed, ErrorMessage: "still open", StackTrace: "billing_test.go:42"}})
	r.send(event.CaseFinished{Time: r.tick(), Case: pay, Result: event.Result{Status: event.StatusFailed}})

	refund := event.CaseKey{URI: billingURI, Line: 22}
	r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 22, Name: "Refund 1", Tags: []string{"@area:billing", "@wip"}})
	r.hook(refund, event.HookBefore, "hooks.go:10", event.StatusPassed)
	r.step(refund, 6, "a customer", event.StatusPassed)
	r.step(refund, 17, "they refund 1", event.StatusPassed)
	r.step(refund, 18, "balance is 1", event.StatusUndefined)
	r.hook(refund, event.HookAfter, "hooks.go:20", event.StatusPassed)
	lastEnd := r.tick()
	r.send(event.CaseFinished{Time: lastEnd, Case: refund, Result: event.Result{Status: event.StatusUndefined}})

	end := r.tick()
	r.send(event.RunFinished{Time: end})
	r.close()

	launches := r.mem.Launches()
	require.Len(t, launches, 1)
	require.NotNil(t, launches[0].Finish)
	assert.Equal(t, end, launches[0].Finish.EndTime)

	features := r.mem.ItemsOfType(reporting.ItemStory)
	require.Len(t, features, 1)
	feature := features[0]
	assert.Equal(t, "Feature: Billing", feature.Start.Name)
	assert.Equal(t, "", feature.ParentID)
	assert.Equal(t, billingURI+":0", feature.Start.CodeRef)
	assert.Equal(t, []reporting.Attribute{{Key: "area", Value: "billing"}}, feature.Start.Attributes)
	require.NotNil(t, feature.Finish)
	assert.Equal(t, lastEnd, feature.Finish.EndTime)

	payItem := item(t, r.mem, "Scenario: Pay invoice")
	assert.Equal(t, reporting.ItemScenario, payItem.Start.Type)
	assert.Equal(t, feature.ID, payItem.ParentID)
	assert.Equal(t, billingURI+":8", payItem.Start.CodeRef)
	assert.Equal(t, billingURI+":8", payItem.Start.TestCaseID)
	assert.Equal(t, reporting.StatusFailed, payItem.Finish.Status)

	refundItem := item(t, r.mem, "Scenario Outline: Refund 1 [1]")
	assert.Equal(t, []reporting.Parameter{{Key: "n", Value: "1"}}, refundItem.Start.Parameters)
	assert.Contains(t, refundItem.Start.Attributes, reporting.Attribute{Value: "wip"})
	assert.Equal(t, reporting.StatusSkipped, refundItem.Finish.Status)

	var backgrounds []string
	for _, it := range r.mem.ItemsOfType(reporting.ItemStep) {
		if it.Start.Name == "Background: Given a customer" {
			backgrounds = append(backgrounds, it.ParentID)
			assert.True(t, it.Start.HasStats)
		}
	}
	assert.ElementsMatch(t, []string{payItem.ID, refundItem.ID}, backgrounds)

	payStep := item(t, r.mem, "When they pay")
	assert.Equal(t, "\n\"\"\"\namount: 10\n\"\"\"\n", payStep.Start.Description)

	closed := item(t, r.mem, "Then the invoice is closed")
	assert.Equal(t, reporting.StatusFailed, closed.Finish.Status)
	logs := r.mem.LogsFor(closed.ID)
	require.Len(t, logs, 2)
	var messages []string
	for _, l := range logs {
		assert.Equal(t, reporting.LevelError, l.Log.Level)
		messages = append(messages, l.Log.Message)
	}
	assert.ElementsMatch(t, []string{"still open", "billing_test.go:42"}, messages)

	before := item(t, r.mem, "Before hooks")
	assert.Equal(t, reporting.ItemBeforeTest, before.Start.Type)
	assert.Equal(t, refundItem.ID, before.ParentID)
	hookLogs := r.mem.LogsFor(before.ID)
	require.Len(t, hookLogs, 1)
	assert.Equal(t, "Before hook: hooks.go:10", hookLogs[0].Log.Message)
	assert.Equal(t, reporting.LevelInfo, hookLogs[0].Log.Level)

	after := item(t, r.mem, "After hooks")
	assert.Equal(t, reporting.ItemAfterTest, after.Start.Type)

	ids := map[string]bool{}
	for _, it := range r.mem.Items() {
		ids[it.ID] = true
	}
	for _, it := range r.mem.Items() {
		assert.NotNil(t, it.Finish, "%s left open", it.Start.Name)
		if it.ParentID != "" {
			assert.True(t, ids[it.ParentID], "%s has unknown parent", it.Start.Name)
		}
	}
}

func TestCorrelator_ScenarioShape(t *testing.T) {
	r := newRun(t, WithShape(ScenarioShape{}))
	r.start(billingURI, billingFeature)

	pay := event.CaseKey{URI: billingURI, Line: 8}
	r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
	r.hook(pay, event.HookBefore, "hooks.go:10", event.StatusPassed)
	r.step(pay, 6, "a customer", event.StatusPassed)
	r.send(event.CaseFinished{Time: r.tick(), Case: pay, Result: event.Result{Status: event.StatusPassed}})
	r.send(event.RunFinished{Time: r.tick()})
	r.close()

	root := item(t, r.mem, RootName)
	assert.Equal(t, reporting.ItemSuite, root.Start.Type)
	assert.Equal(t, "", root.ParentID)
	require.NotNil(t, root.Finish)

	feature := item(t, r.mem, "Feature: Billing")
	assert.Equal(t, reporting.ItemTest, feature.Start.Type)
	assert.Equal(t, root.ID, feature.ParentID)

	scenario := item(t, r.mem, "Scenario: Pay invoice")
	assert.Equal(t, reporting.ItemStep, scenario.Start.Type)
	assert.True(t, scenario.Start.HasStats)

	assert.False(t, item(t, r.mem, "Background: Given a customer").Start.HasStats)
	assert.False(t, item(t, r.mem, "Before hooks").Start.HasStats)
}

func TestCorrelator_OutputRouting(t *testing.T) {
	r := newRun(t)
	r.start(billingURI, billingFeature)
	key := event.CaseKey{URI: billingURI, Line: 8}
	r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})

	r.send(event.Write{Time: r.tick(), Case: key, Text: "to scenario"})

	h := &event.Hook{Type: event.HookBefore, Location: "hooks.go:1"}
	r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}})
	r.send(event.Write{Time: r.tick(), Case: key, Text: "to hook"})
	r.send(event.StepFinished{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}, Result: event.Result{Status: event.StatusPassed}})

	p := &event.PickleStep{Line: 6, Text: "a customer"}
	r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}})
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	r.send(event.Embed{Time: r.tick(), Case: key, MediaType: "application/pdf", Data: png})
	r.send(event.StepFinished{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}, Result: event.Result{Status: event.StatusPassed}})

	r.send(event.Write{Time: r.tick(), Text: "to launch"})
	r.send(event.CaseFinished{Time: r.tick(), Case: key, Result: event.Result{Status: event.StatusPassed}})
	r.send(event.RunFinished{Time: r.tick()})
	r.close()

	scenario := item(t, r.mem, "Scenario: Pay invoice")
	hook := item(t, r.mem, "Before hooks")
	step := item(t, r.mem, "Background: Given a customer")

	messages := func(id string) []string {
		var out []string
		for _, l := range r.mem.LogsFor(id) {
			out = append(out, l.Log.Message)
		}
		return out
	}
	assert.Equal(t, []string{"to scenario"}, messages(scenario.ID))
	assert.ElementsMatch(t, []string{"to hook", "Before hook: hooks.go:1"}, messages(hook.ID))

	stepLogs := r.mem.LogsFor(step.ID)
	require.Len(t, stepLogs, 1)
	require.NotNil(t, stepLogs[0].Log.File)
	assert.Equal(t, "image/png", stepLogs[0].Log.File.MediaType)
	assert.Equal(t, reporting.LevelUnknown, stepLogs[0].Log.Level)

	assert.Equal(t, []string{"to launch"}, messages(""))
}

func TestCorrelator_Errors(t *testing.T) {
	t.Run("unknown case", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		err := r.c.Handle(event.CaseFinished{Time: r.tick(), Case: event.CaseKey{URI: billingURI, Line: 8}})
		assert.ErrorIs(t, err, ErrUnknownCase)
	})

	t.Run("case started twice", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		started := event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"}
		r.send(started)
		assert.ErrorIs(t, r.c.Handle(started), ErrScenarioAlreadyStarted)
	})

	t.Run("unknown step line", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		p := &event.PickleStep{Line: 99, Text: "nowhere"}
		err := r.c.Handle(event.StepStarted{Time: r.tick(), Case: event.CaseKey{URI: billingURI, Line: 8}, Step: event.TestStep{Pickle: p}})
		assert.ErrorIs(t, err, ErrUnknownStepLine)
	})

	t.Run("unread source", func(t *testing.T) {
		r := newRun(t)
		r.send(event.RunStarted{Time: r.tick()})
		err := r.c.Handle(event.CaseStarted{Time: r.tick(), URI: "missing.feature", Line: 2, Name: "x"})
		assert.ErrorIs(t, err, source.ErrUnknownSource)
	})

	t.Run("feature without end time", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		err := r.c.Handle(event.RunFinished{Time: r.tick()})
		assert.ErrorIs(t, err, ErrNoFeatureEndTime)
	})

	t.Run("step finished without start", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		key := event.CaseKey{URI: billingURI, Line: 8}
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		p := &event.PickleStep{Line: 6, Text: "a customer"}
		err := r.c.Handle(event.StepFinished{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}})
		assert.ErrorIs(t, err, ErrNoOpenStep)
	})

	t.Run("step started while another is open", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		key := event.CaseKey{URI: billingURI, Line: 8}
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		first := &event.PickleStep{Line: 6, Text: "a customer"}
		r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: first}})
		second := &event.PickleStep{Line: 9, Text: "they pay"}
		err := r.c.Handle(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: second}})
		assert.ErrorIs(t, err, ErrStepAlreadyOpen)
	})

	t.Run("hook started while another is open", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		key := event.CaseKey{URI: billingURI, Line: 8}
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		h := &event.Hook{Type: event.HookBefore, Location: "hooks.go:10"}
		r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}})
		err := r.c.Handle(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Hook: h}})
		assert.ErrorIs(t, err, ErrHookAlreadyOpen)
	})

	t.Run("hook may run inside an open step", func(t *testing.T) {
		r := newRun(t)
		r.start(billingURI, billingFeature)
		key := event.CaseKey{URI: billingURI, Line: 8}
		r.send(event.CaseStarted{Time: r.tick(), URI: billingURI, Line: 8, Name: "Pay invoice"})
		p := &event.PickleStep{Line: 6, Text: "a customer"}
		r.send(event.StepStarted{Time: r.tick(), Case: key, Step: event.TestStep{Pickle: p}})
		r.hook(key, event.HookAfterStep, "hooks.go:30", event.StatusPassed)
	})
}

// Features finish at their last case's end time, not at run end and not in
// start order. A feature started first can therefore finish after one that
// started later; that ordering is kept as is.
func TestCorrelator_FeatureEndIsLastCaseEnd(t *testing.T) {
	const (
		alpha = "features/alpha.feature"
		beta  = "features/beta.feature"
	)
	r := newRun(t)
	r.send(event.RunStarted{Time: r.tick()})
	r.send(event.SourceRead{Time: r.tick(), URI: alpha, Text: "Feature: Alpha\n  Scenario: a1\n    Given one\n  Scenario: a2\n    Given two\n"})
	r.send(event.SourceRead{Time: r.tick(), URI: beta, Text: "Feature: Beta\n  Scenario: b1\n    Given one\n"})

	a1 := event.CaseKey{URI: alpha, Line: 2}
	a2 := event.CaseKey{URI: alpha, Line: 4}
	b1 := event.CaseKey{URI: beta, Line: 2}

	r.send(event.CaseStarted{Time: r.tick(), URI: alpha, Line: 2, Name: "a1"})
	r.send(event.CaseFinished{Time: r.tick(), Case: a1, Result: event.Result{Status: event.StatusPassed}})
	r.send(event.CaseStarted{Time: r.tick(), URI: beta, Line: 2, Name: "b1"})
	r.send(event.CaseStarted{Time: r.tick(), URI: alpha, Line: 4, Name: "a2"})
	betaEnd := r.tick()
	r.send(event.CaseFinished{Time: betaEnd, Case: b1, Result: event.Result{Status: event.StatusPassed}})
	alphaEnd := r.tick()
	r.send(event.CaseFinished{Time: alphaEnd, Case: a2, Result: event.Result{Status: event.StatusPassed}})
	runEnd := r.tick()
	r.send(event.RunFinished{Time: runEnd})
	r.close()

	alphaItem := item(t, r.mem, "Feature: Alpha")
	betaItem := item(t, r.mem, "Feature: Beta")
	require.NotNil(t, alphaItem.Finish)
	require.NotNil(t, betaItem.Finish)
	assert.Equal(t, alphaEnd, alphaItem.Finish.EndTime)
	assert.Equal(t, betaEnd, betaItem.Finish.EndTime)
	assert.True(t, betaItem.Finish.EndTime.Before(alphaItem.Finish.EndTime))
	assert.True(t, alphaItem.Finish.EndTime.Before(runEnd))
}

func TestCorrelator_ConcurrentCases(t *testing.T) {
	const cases = 16
	var b strings.Builder
	b.WriteString("Feature: Parallel\n")
	for i := 0; i < cases; i++ {
		fmt.Fprintf(&b, "  Scenario: s%d\n    Given step %d\n", i, i)
	}

	tree := itemtree.New(true)
	r := newRun(t, WithTree(tree))
	r.start("parallel.feature", b.String())
	base := r.tick()

	var wg sync.WaitGroup
	errs := make(chan error, cases)
	for i := 0; i < cases; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			line := 2 + 2*i
			key := event.CaseKey{URI: "parallel.feature", Line: line}
			at := base.Add(time.Duration(i) * time.Millisecond)
			p := &event.PickleStep{Line: line + 1, Text: fmt.Sprintf("step %d", i)}
			for _, ev := range []event.Event{
				event.CaseStarted{Time: at, URI: key.URI, Line: line, Name: fmt.Sprintf("s%d", i)},
				event.StepStarted{Time: at, Case: key, Step: event.TestStep{Pickle: p}},
				event.StepFinished{Time: at, Case: key, Step: event.TestStep{Pickle: p}, Result: event.Result{Status: event.StatusPassed}},
				event.CaseFinished{Time: at, Case: key, Result: event.Result{Status: event.StatusPassed}},
			} {
				if err := r.c.Handle(ev); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, ok := tree.Feature("parallel.feature")
	assert.True(t, ok)
	_, ok = tree.Scenario("parallel.feature", 2)
	assert.False(t, ok, "finished scenarios leave the tree")

	r.send(event.RunFinished{Time: r.tick()})
	r.close()

	assert.Len(t, r.mem.ItemsOfType(reporting.ItemStory), 1)
	assert.Len(t, r.mem.ItemsOfType(reporting.ItemScenario), cases)
	assert.Len(t, r.mem.ItemsOfType(reporting.ItemStep), cases)
	_, ok = tree.Feature("parallel.feature")
	assert.False(t, ok)
}

func TestScenarioContext_Background(t *testing.T) {
	r := newRun(t)
	r.start(billingURI, billingFeature)
	fc, err := r.c.feature(billingURI, r.tick())
	require.NoError(t, err)

	sc, err := newScenarioContext(fc, event.CaseStarted{URI: billingURI, Line: 23, Name: "Refund 2"})
	require.NoError(t, err)
	assert.Equal(t, 2, sc.OutlineIteration())
	assert.Equal(t, reporting.StatusPassed, sc.HookStatus())

	require.True(t, sc.WithBackground())
	st := sc.NextBackgroundStep()
	require.NotNil(t, st)
	assert.Equal(t, "a customer", st.Text)
	assert.False(t, sc.WithBackground())
	assert.Nil(t, sc.NextBackgroundStep())

	_, err = sc.Handle()
	assert.ErrorIs(t, err, ErrScenarioNotStarted)
	require.NoError(t, sc.SetHandle(&reporting.Handle{}))
	require.NoError(t, sc.finish())
	_, err = sc.Handle()
	assert.ErrorIs(t, err, ErrScenarioFinished)

	_, err = newScenarioContext(fc, event.CaseStarted{URI: "other.feature", Line: 8, Name: "Pay invoice"})
	assert.ErrorIs(t, err, ErrFeatureMismatch)
}
