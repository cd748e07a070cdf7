// Package reporting talks to the report store: launches, a tree of test
// items under each launch, and logs attached to items.
package reporting

import "time"

type ItemType string

const (
	ItemSuite        ItemType = "SUITE"
	ItemStory        ItemType = "STORY"
	ItemTest         ItemType = "TEST"
	ItemScenario     ItemType = "SCENARIO"
	ItemStep         ItemType = "STEP"
	ItemBeforeTest   ItemType = "BEFORE_TEST"
	ItemAfterTest    ItemType = "AFTER_TEST"
	ItemBeforeMethod ItemType = "BEFORE_METHOD"
	ItemAfterMethod  ItemType = "AFTER_METHOD"
)

type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

type LogLevel string

const (
	LevelError   LogLevel = "ERROR"
	LevelWarn    LogLevel = "WARN"
	LevelInfo    LogLevel = "INFO"
	LevelDebug   LogLevel = "DEBUG"
	LevelUnknown LogLevel = "UNKNOWN"
)

type Mode string

const (
	ModeDefault Mode = "DEFAULT"
	ModeDebug   Mode = "DEBUG"
)

type Attribute struct {
	Key    string `msgpack:"k" yaml:"key,omitempty" json:"key,omitempty"`
	Value  string `msgpack:"v" yaml:"value" json:"value"`
	System bool   `msgpack:"s" yaml:"system,omitempty" json:"system,omitempty"`
}

type Parameter struct {
	Key   string `msgpack:"k" yaml:"key" json:"key"`
	Value string `msgpack:"v" yaml:"value" json:"value"`
}

type StartLaunchRQ struct {
	Name        string
	Description string
	StartTime   time.Time
	Mode        Mode
	Attributes  []Attribute
	Rerun       bool
	RerunOf     string
}

type StartItemRQ struct {
	Name        string
	Description string
	Type        ItemType
	StartTime   time.Time
	Attributes  []Attribute
	CodeRef     string
	Parameters  []Parameter
	TestCaseID  string
	HasStats    bool
}

// FinishExecutionRQ closes a launch or an item. An empty Status lets the
// store derive it from the children.
type FinishExecutionRQ struct {
	EndTime time.Time
	Status  Status
}

type LogRQ struct {
	Time    time.Time
	Level   LogLevel
	Message string
	File    *File
}

type File struct {
	Name      string
	MediaType string
	Data      []byte
}
