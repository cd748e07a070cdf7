package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`@[^@\s]+`)

// Longest keywords first so "Scenario Outline:" is not read as "Scenario:".
var headerKeywords = []string{
	"Scenario Outline",
	"Scenario Template",
	"Background",
	"Scenario",
	"Scenarios",
	"Examples",
	"Example",
	"Feature",
	"Rule",
}

var stepKeywords = []string{"Given", "When", "Then", "And", "But", "*"}

type ParseError struct {
	Line    int
	Message string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// ParseErrors holds every problem found in one file. A file with any
// ParseErrors is rejected as a whole.
type ParseErrors []ParseError

func (e ParseErrors) Error() string {
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Error()
	}
	return strings.Join(msgs, "; ")
}

type block int

const (
	inNothing block = iota
	inFeature
	inBackground
	inScenario
	inExamples
)

type parseState struct {
	uri   string
	lines []string
	i     int

	feature     *Feature
	block       block
	scenario    *Scenario
	examples    *Examples
	steps       *[]*Step
	lastStep    *Step
	desc        *string
	pendingTags []Tag
	errors      ParseErrors
}

// Parse parses a feature file. Parsing is all-or-nothing: when any line is
// malformed the returned error is a ParseErrors and the document is nil.
func Parse(uri string, content []byte) (*Document, error) {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	p := &parseState{uri: uri, lines: strings.Split(text, "\n")}

	for p.i < len(p.lines) {
		p.parseLine()
	}

	// No Feature: line, use filename without extension
	p.ensureFeature()

	if len(p.errors) > 0 {
		return nil, p.errors
	}
	return &Document{URI: uri, Feature: p.feature}, nil
}

func (p *parseState) fail(line int, format string, args ...any) {
	p.errors = append(p.errors, ParseError{Line: line, Message: fmt.Sprintf(format, args...)})
}

func (p *parseState) parseLine() {
	lineNo := p.i + 1
	trimmed := strings.TrimSpace(p.lines[p.i])

	switch {
	case trimmed == "" || strings.HasPrefix(trimmed, "#"):
		p.i++
	case isDocStringDelimiter(trimmed):
		p.parseDocString()
	case strings.HasPrefix(trimmed, "|"):
		p.parseTableRow(trimmed, lineNo)
		p.i++
	case isTagLine(trimmed):
		p.pendingTags = append(p.pendingTags, parseTags(trimmed, lineNo)...)
		p.i++
	default:
		if kw, rest, ok := cutHeader(trimmed); ok {
			p.openHeader(kw, rest, lineNo)
		} else if kw, text, ok := cutStep(trimmed); ok {
			p.addStep(kw, text, lineNo)
		} else {
			p.addDescription(trimmed, lineNo)
		}
		p.i++
	}
}

func (p *parseState) ensureFeature() *Feature {
	if p.feature == nil {
		p.feature = &Feature{Keyword: "Feature", Name: filenameWithoutExt(p.uri)}
	}
	return p.feature
}

func (p *parseState) takeTags() []Tag {
	tags := p.pendingTags
	p.pendingTags = nil
	return tags
}

func (p *parseState) openHeader(keyword, rest string, line int) {
	switch keyword {
	case "Feature":
		if p.feature != nil {
			p.fail(line, "duplicate Feature")
			return
		}
		p.feature = &Feature{Tags: p.takeTags(), Keyword: keyword, Name: rest, Line: line}
		p.enter(inFeature, nil, &p.feature.Description)

	case "Background":
		f := p.ensureFeature()
		if f.Background != nil {
			p.fail(line, "multiple Background sections")
			return
		}
		if len(f.Scenarios) > 0 {
			p.fail(line, "Background must come before the first Scenario")
			return
		}
		p.takeTags() // Background doesn't get tags
		bg := &Background{Keyword: keyword, Name: rest, Line: line}
		f.Background = bg
		p.scenario = nil
		p.enter(inBackground, &bg.Steps, &bg.Description)

	case "Scenario", "Example", "Scenario Outline", "Scenario Template":
		f := p.ensureFeature()
		sc := &Scenario{Tags: p.takeTags(), Keyword: keyword, Name: rest, Line: line}
		f.Scenarios = append(f.Scenarios, sc)
		p.scenario = sc
		p.enter(inScenario, &sc.Steps, &sc.Description)

	case "Examples", "Scenarios":
		if p.scenario == nil || (p.block != inScenario && p.block != inExamples) {
			p.fail(line, "%s outside of a Scenario Outline", keyword)
			return
		}
		ex := &Examples{Tags: p.takeTags(), Keyword: keyword, Name: rest, Line: line}
		p.scenario.Examples = append(p.scenario.Examples, ex)
		p.examples = ex
		p.enter(inExamples, nil, nil)

	case "Rule":
		p.fail(line, "Rule is not supported")
	}
}

func (p *parseState) enter(b block, steps *[]*Step, desc *string) {
	p.block = b
	p.steps = steps
	p.desc = desc
	p.lastStep = nil
	if b != inExamples {
		p.examples = nil
	}
}

func (p *parseState) addStep(keyword, text string, line int) {
	if p.steps == nil {
		p.fail(line, "step outside of a Scenario or Background")
		return
	}
	step := &Step{Keyword: keyword, Text: text, Line: line}
	*p.steps = append(*p.steps, step)
	p.lastStep = step
	p.desc = nil
}

func (p *parseState) addDescription(trimmed string, line int) {
	if p.desc == nil {
		p.fail(line, "unexpected line %q", trimmed)
		return
	}
	if *p.desc != "" {
		*p.desc += "\n"
	}
	*p.desc += trimmed
}

func (p *parseState) parseTableRow(trimmed string, line int) {
	row := TableRow{Line: line, Cells: splitCells(trimmed)}

	if p.block == inExamples {
		ex := p.examples
		switch {
		case ex.Header == nil:
			ex.Header = &row
		case len(row.Cells) != len(ex.Header.Cells):
			p.fail(line, "inconsistent cell count")
		default:
			ex.Rows = append(ex.Rows, row)
		}
		return
	}

	if p.lastStep == nil {
		p.fail(line, "table row without a step")
		return
	}
	arg := p.lastStep.Argument
	if arg == nil {
		arg = &StepArgument{DataTable: &DataTable{}}
		p.lastStep.Argument = arg
	}
	if arg.DataTable == nil {
		p.fail(line, "step already has a doc string")
		return
	}
	if len(arg.DataTable.Rows) > 0 && len(arg.DataTable.Rows[0].Cells) != len(row.Cells) {
		p.fail(line, "inconsistent cell count")
		return
	}
	arg.DataTable.Rows = append(arg.DataTable.Rows, row)
}

// parseDocString consumes a doc string block. p.i points at the opening delimiter.
func (p *parseState) parseDocString() {
	start := p.i
	raw := p.lines[start]
	trimmed := strings.TrimSpace(raw)
	delimiter := `"""`
	if strings.HasPrefix(trimmed, "```") {
		delimiter = "```"
	}
	indent := strings.Index(raw, delimiter)
	mediaType := strings.TrimSpace(strings.TrimPrefix(trimmed, delimiter))

	var content []string
	p.i++
	closed := false
	for p.i < len(p.lines) {
		line := p.lines[p.i]
		p.i++
		if strings.TrimSpace(line) == delimiter {
			closed = true
			break
		}
		line = dedent(line, indent)
		if delimiter == `"""` {
			line = strings.ReplaceAll(line, `\"\"\"`, `"""`)
		} else {
			line = strings.ReplaceAll(line, "\\`\\`\\`", "```")
		}
		content = append(content, line)
	}

	if !closed {
		p.fail(start+1, "unterminated doc string")
		return
	}
	if p.lastStep == nil {
		p.fail(start+1, "doc string without a step")
		return
	}
	if p.lastStep.Argument != nil {
		p.fail(start+1, "step already has an argument")
		return
	}
	p.lastStep.Argument = &StepArgument{DocString: &DocString{
		MediaType: mediaType,
		Content:   strings.Join(content, "\n"),
		Line:      start + 1,
	}}
}

func cutHeader(trimmed string) (string, string, bool) {
	for _, kw := range headerKeywords {
		if rest, ok := strings.CutPrefix(trimmed, kw+":"); ok {
			return kw, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func cutStep(trimmed string) (string, string, bool) {
	for _, kw := range stepKeywords {
		if rest, ok := strings.CutPrefix(trimmed, kw+" "); ok {
			return kw, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

func parseTags(line string, lineNo int) []Tag {
	// Trailing comments are not tags
	if idx := strings.Index(line, " #"); idx >= 0 {
		line = line[:idx]
	}
	matches := tagPattern.FindAllString(line, -1)
	var tags []Tag
	for _, m := range matches {
		tags = append(tags, Tag{Name: m, Line: lineNo})
	}
	return tags
}

func isTagLine(trimmed string) bool {
	return strings.HasPrefix(trimmed, "@")
}

func isDocStringDelimiter(trimmed string) bool {
	return strings.HasPrefix(trimmed, `"""`) || strings.HasPrefix(trimmed, "```")
}

// splitCells splits a "| a | b |" row, honouring \|, \\ and \n escapes.
func splitCells(row string) []string {
	var cells []string
	var cell strings.Builder
	for i := 1; i < len(row); i++ {
		c := row[i]
		switch {
		case c == '\\' && i+1 < len(row):
			i++
			switch row[i] {
			case 'n':
				cell.WriteByte('\n')
			case '|', '\\':
				cell.WriteByte(row[i])
			default:
				cell.WriteByte('\\')
				cell.WriteByte(row[i])
			}
		case c == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteByte(c)
		}
	}
	return cells
}

func dedent(line string, indent int) string {
	n := 0
	for n < indent && n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return line[n:]
}

func filenameWithoutExt(filename string) string {
	name := filename
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[:idx]
	}
	return name
}
