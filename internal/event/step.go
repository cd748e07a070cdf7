package event

// TestStep is either a pickle step or a hook; exactly one field is set.
type TestStep struct {
	Pickle *PickleStep `json:"pickle,omitempty"`
	Hook   *Hook       `json:"hook,omitempty"`
}

// IsHook reports whether the step is a hook invocation.
func (s TestStep) IsHook() bool {
	return s.Hook != nil
}

type PickleStep struct {
	Line       int             `json:"line"`
	Text       string          `json:"text"`
	Keyword    string          `json:"keyword,omitempty"`
	Arguments  []Argument      `json:"arguments,omitempty"`
	DocString  *DocString      `json:"docString,omitempty"`
	DataTable  [][]string      `json:"dataTable,omitempty"`
	Definition *StepDefinition `json:"definition,omitempty"`
}

// Argument is a value the step definition matched out of the step text.
type Argument struct {
	Value  string `json:"value"`
	Offset int    `json:"offset,omitempty"`
}

type DocString struct {
	MediaType string `json:"mediaType,omitempty"`
	Content   string `json:"content"`
}

// StepDefinition is what the engine knows about the code bound to a step:
// where it lives and what it declares about itself.
type StepDefinition struct {
	Location       string      `json:"location,omitempty"`
	Attributes     []Attribute `json:"attributes,omitempty"`
	TestCaseID     string      `json:"testCaseId,omitempty"` // template, {0} or {name} placeholders
	ParameterNames []string    `json:"parameterNames,omitempty"`
}

type Attribute struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

type HookType string

const (
	HookBefore     HookType = "before"
	HookAfter      HookType = "after"
	HookBeforeStep HookType = "before-step"
	HookAfterStep  HookType = "after-step"
)

// IsBefore reports whether the hook runs ahead of its scenario or step.
func (h HookType) IsBefore() bool {
	return h == HookBefore || h == HookBeforeStep
}

type Hook struct {
	Type     HookType `json:"type"`
	Location string   `json:"location"`
}
