// Package correlator turns a stream of test-engine lifecycle events into a
// hierarchy of report items: launch, features, scenarios, steps and hooks.
package correlator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/itemtree"
	"github.com/chriserin/ftrp/internal/parser"
	"github.com/chriserin/ftrp/internal/reporting"
	"github.com/chriserin/ftrp/internal/source"
)

type Correlator struct {
	client     *reporting.Client
	sources    *source.Index
	shape      Shape
	tree       *itemtree.Tree
	logger     *zap.Logger
	launch     reporting.StartLaunchRQ
	sourceRoot string

	root *reporting.Handle

	mu       sync.Mutex
	features map[string]*FeatureContext
	endTimes map[string]time.Time

	smu       sync.Mutex
	scenarios map[event.CaseKey]*ScenarioContext
}

type Option func(*Correlator)

func WithShape(s Shape) Option {
	return func(c *Correlator) { c.shape = s }
}

func WithTree(t *itemtree.Tree) Option {
	return func(c *Correlator) { c.tree = t }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

// WithLaunch sets the launch request sent on run start. Its start time is
// overwritten with the event's.
func WithLaunch(rq reporting.StartLaunchRQ) Option {
	return func(c *Correlator) { c.launch = rq }
}

// WithSourceRoot makes code refs relative to root.
func WithSourceRoot(root string) Option {
	return func(c *Correlator) { c.sourceRoot = root }
}

func New(client *reporting.Client, sources *source.Index, opts ...Option) *Correlator {
	c := &Correlator{
		client:    client,
		sources:   sources,
		shape:     StepShape{},
		logger:    zap.NewNop(),
		launch:    reporting.StartLaunchRQ{Name: "ftrp", Mode: reporting.ModeDefault},
		features:  make(map[string]*FeatureContext),
		endTimes:  make(map[string]time.Time),
		scenarios: make(map[event.CaseKey]*ScenarioContext),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle dispatches one event. A returned error means the stream broke an
// ordering rule and processing should stop.
func (c *Correlator) Handle(ev event.Event) error {
	switch e := ev.(type) {
	case event.RunStarted:
		return c.RunStarted(e)
	case event.SourceRead:
		c.SourceRead(e)
		return nil
	case event.CaseStarted:
		return c.CaseStarted(e)
	case event.StepStarted:
		return c.StepStarted(e)
	case event.StepFinished:
		return c.StepFinished(e)
	case event.CaseFinished:
		return c.CaseFinished(e)
	case event.RunFinished:
		return c.RunFinished(e)
	case event.Embed:
		return c.Embed(e)
	case event.Write:
		return c.Write(e)
	}
	return fmt.Errorf("correlator: unsupported event %T", ev)
}

func (c *Correlator) RunStarted(e event.RunStarted) error {
	rq := c.launch
	rq.StartTime = e.Time
	if _, err := c.client.StartLaunch(rq); err != nil {
		return err
	}
	root, err := c.shape.Root(c.client, e.Time)
	if err != nil {
		return err
	}
	c.root = root
	c.logger.Debug("launch started", zap.String("name", rq.Name))
	return nil
}

func (c *Correlator) SourceRead(e event.SourceRead) {
	c.sources.Put(e.URI, e.Text)
	c.logger.Debug("source read", zap.String("uri", e.URI))
}

func (c *Correlator) CaseStarted(e event.CaseStarted) error {
	fc, err := c.feature(e.URI, e.Time)
	if err != nil {
		return err
	}

	sc, err := c.scenario(fc, e)
	if err != nil {
		return err
	}

	def := sc.Definition()
	name := def.Keyword + ": " + e.Name
	var params []reporting.Parameter
	if sc.OutlineIteration() > 0 {
		name = fmt.Sprintf("%s [%d]", name, sc.OutlineIteration())
		if header, cells, ok := def.ExampleRow(e.Line); ok {
			for i := range header {
				params = append(params, reporting.Parameter{Key: header[i], Value: cells[i]})
			}
		}
	}

	codeRef := CodeRef(c.sourceRoot, e.URI, e.Line)
	h, err := c.client.StartItem(fc.handle, reporting.StartItemRQ{
		Name:        name,
		Description: def.Description,
		Type:        c.shape.ScenarioType(),
		StartTime:   e.Time,
		Attributes:  TagAttributes(e.Tags),
		CodeRef:     codeRef,
		Parameters:  params,
		TestCaseID:  codeRef,
		HasStats:    true,
	})
	if err != nil {
		return err
	}
	if err := sc.SetHandle(h); err != nil {
		return err
	}
	c.tree.AddScenario(e.URI, e.Line, h)
	return nil
}

// feature returns the context for uri, starting its item on first use.
func (c *Correlator) feature(uri string, at time.Time) (*FeatureContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fc, ok := c.features[uri]; ok {
		return fc, nil
	}

	doc, err := c.sources.Document(uri)
	if err != nil {
		return nil, err
	}

	f := doc.Feature
	h, err := c.client.StartItem(c.root, reporting.StartItemRQ{
		Name:        f.Keyword + ": " + f.Name,
		Description: f.Description,
		Type:        c.shape.FeatureType(),
		StartTime:   at,
		Attributes:  TagAttributes(tagNames(f.Tags)),
		CodeRef:     CodeRef(c.sourceRoot, uri, 0),
		HasStats:    true,
	})
	if err != nil {
		return nil, err
	}

	fc := &FeatureContext{uri: doc.URI, doc: doc, handle: h}
	c.features[uri] = fc
	c.tree.AddFeature(uri, h)
	c.logger.Debug("feature started", zap.String("uri", uri))
	return fc, nil
}

func (c *Correlator) scenario(fc *FeatureContext, e event.CaseStarted) (*ScenarioContext, error) {
	c.smu.Lock()
	defer c.smu.Unlock()

	if sc, ok := c.scenarios[e.Key()]; ok {
		return sc, nil
	}
	sc, err := newScenarioContext(fc, e)
	if err != nil {
		return nil, err
	}
	c.scenarios[e.Key()] = sc
	return sc, nil
}

func (c *Correlator) active(key event.CaseKey) (*ScenarioContext, error) {
	c.smu.Lock()
	defer c.smu.Unlock()
	sc, ok := c.scenarios[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s:%d", ErrUnknownCase, key.URI, key.Line)
	}
	return sc, nil
}

func (c *Correlator) StepStarted(e event.StepStarted) error {
	sc, err := c.active(e.Case)
	if err != nil {
		return err
	}
	if e.Step.IsHook() {
		return c.startHook(sc, e.Step.Hook, e.Time)
	}
	return c.startStep(sc, e.Step.Pickle, e.Time)
}

func (c *Correlator) startStep(sc *ScenarioContext, p *event.PickleStep, at time.Time) error {
	if sc.step != nil {
		return fmt.Errorf("%w: %s:%d line %d", ErrStepAlreadyOpen, sc.key.URI, sc.key.Line, p.Line)
	}
	var prefix string
	if sc.WithBackground() {
		sc.NextBackgroundStep()
		prefix = sc.backgroundKeyword + ": "
	}

	st, err := sc.Step(p.Line)
	if err != nil {
		return err
	}
	parent, err := sc.Handle()
	if err != nil {
		return err
	}

	uri := sc.key.URI
	codeRef := CodeRef(c.sourceRoot, uri, p.Line)
	params, names, values := StepParameters(p)
	var template string
	if p.Definition != nil {
		template = p.Definition.TestCaseID
	}

	h, err := c.client.StartItem(parent, reporting.StartItemRQ{
		Name:        prefix + st.Keyword + " " + p.Text,
		Description: MultilineArgument(p),
		Type:        reporting.ItemStep,
		StartTime:   at,
		Attributes:  definitionAttributes(p),
		CodeRef:     codeRef,
		Parameters:  params,
		TestCaseID:  TestCaseID(template, codeRef, names, values),
		HasStats:    c.shape.StepHasStats(),
	})
	if err != nil {
		return err
	}
	sc.step = h
	sc.stepText = p.Text
	c.tree.AddStep(uri, sc.key.Line, p.Text, h)
	return nil
}

func (c *Correlator) startHook(sc *ScenarioContext, hook *event.Hook, at time.Time) error {
	if sc.hook != nil {
		return fmt.Errorf("%w: %s:%d %s", ErrHookAlreadyOpen, sc.key.URI, sc.key.Line, hook.Location)
	}
	parent, err := sc.Handle()
	if err != nil {
		return err
	}
	typ, name := hookItem(hook.Type)
	h, err := c.client.StartItem(parent, reporting.StartItemRQ{
		Name:      name,
		Type:      typ,
		StartTime: at,
		CodeRef:   hook.Location,
		HasStats:  c.shape.StepHasStats(),
	})
	if err != nil {
		return err
	}
	sc.hook = h
	sc.hookStatus = reporting.StatusPassed
	return nil
}

func (c *Correlator) StepFinished(e event.StepFinished) error {
	sc, err := c.active(e.Case)
	if err != nil {
		return err
	}
	if e.Step.IsHook() {
		return c.finishHook(sc, e)
	}

	if sc.step == nil {
		return fmt.Errorf("%w: %s:%d", ErrNoOpenStep, e.Case.URI, e.Case.Line)
	}
	if err := c.reportResult(sc.step, e.Result, "", e.Time); err != nil {
		return err
	}
	err = c.client.FinishItem(sc.step, reporting.FinishExecutionRQ{
		EndTime: e.Time,
		Status:  MapStatus(e.Result.Status, c.logger),
	})
	sc.step = nil
	return err
}

func (c *Correlator) finishHook(sc *ScenarioContext, e event.StepFinished) error {
	if sc.hook == nil {
		return fmt.Errorf("%w: %s:%d", ErrNoOpenHook, e.Case.URI, e.Case.Line)
	}
	hook := e.Step.Hook
	if err := c.reportResult(sc.hook, e.Result, hookMessage(hook), e.Time); err != nil {
		return err
	}
	sc.hookStatus = MapStatus(e.Result.Status, c.logger)
	err := c.client.FinishItem(sc.hook, reporting.FinishExecutionRQ{
		EndTime: e.Time,
		Status:  sc.hookStatus,
	})
	sc.hook = nil
	if hook.Type == event.HookAfterStep {
		c.tree.RemoveStep(sc.key.URI, sc.key.Line, sc.stepText)
	}
	return err
}

// reportResult logs the message and the result's error details at the
// level the status maps to.
func (c *Correlator) reportResult(target *reporting.Handle, r event.Result, message string, at time.Time) error {
	level := MapLevel(r.Status)
	if message != "" {
		if err := c.client.Log(target, reporting.LogRQ{Time: at, Level: level, Message: message}); err != nil {
			return err
		}
	}
	for _, detail := range []string{r.ErrorMessage, r.StackTrace} {
		if detail == "" {
			continue
		}
		if err := c.client.Log(target, reporting.LogRQ{Time: at, Level: level, Message: detail}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Correlator) CaseFinished(e event.CaseFinished) error {
	sc, err := c.active(e.Case)
	if err != nil {
		return err
	}
	h, err := sc.Handle()
	if err != nil {
		return err
	}
	if err := c.client.FinishItem(h, reporting.FinishExecutionRQ{
		EndTime: e.Time,
		Status:  MapStatus(e.Result.Status, c.logger),
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.endTimes[e.Case.URI] = e.Time
	c.mu.Unlock()

	c.smu.Lock()
	delete(c.scenarios, e.Case)
	c.smu.Unlock()

	c.tree.RemoveScenario(e.Case.URI, e.Case.Line)
	return sc.finish()
}

// RunFinished closes every feature at its last recorded scenario end, then
// the root, then the launch.
func (c *Correlator) RunFinished(e event.RunFinished) error {
	c.mu.Lock()
	uris := make([]string, 0, len(c.features))
	for uri := range c.features {
		if _, ok := c.endTimes[uri]; !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrNoFeatureEndTime, uri)
		}
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	features := make([]*FeatureContext, 0, len(uris))
	ends := make([]time.Time, 0, len(uris))
	for _, uri := range uris {
		features = append(features, c.features[uri])
		ends = append(ends, c.endTimes[uri])
	}
	c.features = make(map[string]*FeatureContext)
	c.endTimes = make(map[string]time.Time)
	c.mu.Unlock()

	for i, fc := range features {
		if err := c.client.FinishItem(fc.handle, reporting.FinishExecutionRQ{EndTime: ends[i]}); err != nil {
			return err
		}
		c.tree.RemoveFeature(fc.uri)
	}

	if c.root != nil {
		if err := c.client.FinishItem(c.root, reporting.FinishExecutionRQ{EndTime: e.Time}); err != nil {
			return err
		}
	}
	c.logger.Debug("launch finishing", zap.Int("features", len(features)))
	return c.client.FinishLaunch(reporting.FinishExecutionRQ{EndTime: e.Time})
}

// Embed attaches binary data to whatever the case has open. Data without a
// running case goes to the launch.
func (c *Correlator) Embed(e event.Embed) error {
	target, err := c.outputTarget(e.Case)
	if err != nil {
		return err
	}
	mediaType := DetectMediaType(e.Data, e.MediaType, c.logger)
	message := e.Name
	if message == "" {
		message = mediaType
	}
	return c.client.Log(target, reporting.LogRQ{
		Time:    e.Time,
		Level:   reporting.LevelUnknown,
		Message: message,
		File:    &reporting.File{Name: e.Name, MediaType: mediaType, Data: e.Data},
	})
}

func (c *Correlator) Write(e event.Write) error {
	target, err := c.outputTarget(e.Case)
	if err != nil {
		return err
	}
	return c.client.Log(target, reporting.LogRQ{
		Time:    e.Time,
		Level:   reporting.LevelInfo,
		Message: e.Text,
	})
}

func (c *Correlator) outputTarget(key event.CaseKey) (*reporting.Handle, error) {
	if key == (event.CaseKey{}) {
		return nil, nil
	}
	sc, err := c.active(key)
	if err != nil {
		return nil, err
	}
	return sc.target(), nil
}

func tagNames(tags []parser.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}
