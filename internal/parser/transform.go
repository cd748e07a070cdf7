package parser

import (
	"strings"
)

// Pickle is one executable instantiation of a scenario or of one outline row.
type Pickle struct {
	URI   string
	Name  string
	Line  int // scenario line, or example row line for outlines
	Tags  []string
	Steps []PickleStep
}

// PickleStep keeps the source line of the step it came from so it can be
// matched back against the parsed feature.
type PickleStep struct {
	Line     int
	Keyword  string
	Text     string
	Argument *StepArgument
}

// Compile expands a Document into pickles: background steps are prepended to
// every scenario and outlines produce one pickle per example row.
func Compile(doc *Document) []Pickle {
	f := doc.Feature
	var pickles []Pickle

	for _, sc := range f.Scenarios {
		if !sc.IsOutline() {
			pickles = append(pickles, Pickle{
				URI:   doc.URI,
				Name:  sc.Name,
				Line:  sc.Line,
				Tags:  tagNames(f.Tags, sc.Tags),
				Steps: compileSteps(f.Background, sc.Steps, nil, nil),
			})
			continue
		}

		for _, ex := range sc.Examples {
			if ex.Header == nil {
				continue
			}
			for _, row := range ex.Rows {
				pickles = append(pickles, Pickle{
					URI:   doc.URI,
					Name:  substitute(sc.Name, ex.Header.Cells, row.Cells),
					Line:  row.Line,
					Tags:  tagNames(f.Tags, sc.Tags, ex.Tags),
					Steps: compileSteps(f.Background, sc.Steps, ex.Header.Cells, row.Cells),
				})
			}
		}
	}

	return pickles
}

func compileSteps(bg *Background, steps []*Step, header, cells []string) []PickleStep {
	var out []PickleStep
	if bg != nil {
		for _, st := range bg.Steps {
			out = append(out, PickleStep{Line: st.Line, Keyword: st.Keyword, Text: st.Text, Argument: st.Argument})
		}
	}
	for _, st := range steps {
		out = append(out, PickleStep{
			Line:     st.Line,
			Keyword:  st.Keyword,
			Text:     substitute(st.Text, header, cells),
			Argument: substituteArgument(st.Argument, header, cells),
		})
	}
	return out
}

func substituteArgument(arg *StepArgument, header, cells []string) *StepArgument {
	if arg == nil || len(header) == 0 {
		return arg
	}
	if arg.DocString != nil {
		ds := *arg.DocString
		ds.Content = substitute(ds.Content, header, cells)
		return &StepArgument{DocString: &ds}
	}
	table := &DataTable{}
	for _, row := range arg.DataTable.Rows {
		out := TableRow{Line: row.Line, Cells: make([]string, len(row.Cells))}
		for i, c := range row.Cells {
			out.Cells[i] = substitute(c, header, cells)
		}
		table.Rows = append(table.Rows, out)
	}
	return &StepArgument{DataTable: table}
}

func substitute(text string, header, cells []string) string {
	for i, name := range header {
		if i < len(cells) {
			text = strings.ReplaceAll(text, "<"+name+">", cells[i])
		}
	}
	return text
}

func tagNames(groups ...[]Tag) []string {
	var names []string
	for _, g := range groups {
		for _, t := range g {
			names = append(names, t.Name)
		}
	}
	return names
}
