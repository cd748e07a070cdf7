package parser

import "sync"

type Document struct {
	URI     string
	Feature *Feature
}

type Feature struct {
	Tags        []Tag
	Keyword     string
	Name        string
	Description string
	Line        int // 1-based line number of Feature: line, 0 when absent
	Background  *Background
	Scenarios   []*Scenario // scenarios and outlines in file order
}

type Background struct {
	Keyword     string
	Name        string
	Description string
	Line        int
	Steps       []*Step
}

// Scenario is a Scenario or a Scenario Outline. Outlines carry Examples.
type Scenario struct {
	Tags        []Tag
	Keyword     string
	Name        string
	Description string
	Line        int
	Steps       []*Step
	Examples    []*Examples

	rowsOnce sync.Once
	rows     map[int]int // example row line -> 1-based iteration
}

type Examples struct {
	Tags    []Tag
	Keyword string
	Name    string
	Line    int
	Header  *TableRow
	Rows    []TableRow
}

type Tag struct {
	Name string // e.g. "@smoke", "@owner:qa"
	Line int
}

type Step struct {
	Keyword  string // Given, When, Then, And, But, *
	Text     string
	Line     int
	Argument *StepArgument
}

type StepArgument struct {
	DocString *DocString
	DataTable *DataTable
}

type DocString struct {
	MediaType string
	Content   string
	Line      int
}

type DataTable struct {
	Rows []TableRow
}

type TableRow struct {
	Line  int
	Cells []string
}
