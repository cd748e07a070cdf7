package correlator

import (
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/reporting"
)

const (
	tableIndent    = "          "
	tableSeparator = "|"
	lineSeparator  = "\r\n"
	docStringQuote = `"""`
)

// MapStatus collapses engine statuses onto report statuses. Anything but
// passed and failed is reported as skipped; unknown input is logged.
func MapStatus(s event.Status, logger *zap.Logger) reporting.Status {
	switch s {
	case event.StatusPassed:
		return reporting.StatusPassed
	case event.StatusFailed:
		return reporting.StatusFailed
	case event.StatusSkipped, event.StatusPending, event.StatusAmbiguous,
		event.StatusUndefined, event.StatusUnused:
		return reporting.StatusSkipped
	}
	logger.Warn("unknown step status, reporting as skipped", zap.String("status", string(s)))
	return reporting.StatusSkipped
}

// MapLevel picks the log level for a result's messages.
func MapLevel(s event.Status) reporting.LogLevel {
	switch s {
	case event.StatusPassed:
		return reporting.LevelInfo
	case event.StatusSkipped:
		return reporting.LevelWarn
	default:
		return reporting.LevelError
	}
}

// RenderDocString frames content between triple-quote lines.
func RenderDocString(content string) string {
	return "\n" + docStringQuote + "\n" + content + "\n" + docStringQuote + "\n"
}

// RenderDataTable writes one indented, pipe-framed line per row.
func RenderDataTable(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(tableIndent)
		b.WriteString(tableSeparator)
		for _, cell := range row {
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" ")
			b.WriteString(tableSeparator)
		}
		b.WriteString(lineSeparator)
	}
	return b.String()
}

// MultilineArgument renders a step's doc string or data table, if any.
func MultilineArgument(step *event.PickleStep) string {
	switch {
	case step.DocString != nil:
		return RenderDocString(step.DocString.Content)
	case len(step.DataTable) > 0:
		return RenderDataTable(step.DataTable)
	}
	return ""
}

// CodeRef renders "<path-from-source-root>:<line>".
func CodeRef(sourceRoot, uri string, line int) string {
	return relativePath(sourceRoot, uri) + ":" + strconv.Itoa(line)
}

func relativePath(sourceRoot, uri string) string {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	} else if rest, ok := strings.CutPrefix(uri, "classpath:"); ok {
		path = rest
	}
	if sourceRoot != "" && filepath.IsAbs(path) {
		if rel, err := filepath.Rel(sourceRoot, path); err == nil && !strings.HasPrefix(rel, "..") {
			path = rel
		}
	}
	return filepath.ToSlash(path)
}

// TestCaseID derives a stable id for a step invocation. A declared template
// has its {N} and {name} placeholders filled from the arguments; otherwise
// the code ref is used, followed by the argument values in brackets.
func TestCaseID(template, codeRef string, names, values []string) string {
	if template != "" {
		id := template
		for i, v := range values {
			id = strings.ReplaceAll(id, "{"+strconv.Itoa(i)+"}", v)
			if i < len(names) && names[i] != "" {
				id = strings.ReplaceAll(id, "{"+names[i]+"}", v)
			}
		}
		return id
	}
	if len(values) == 0 {
		return codeRef
	}
	return codeRef + "[" + strings.Join(values, ",") + "]"
}

// StepParameters pairs argument values with declared names, falling back
// to positional "argN" keys.
func StepParameters(step *event.PickleStep) ([]reporting.Parameter, []string, []string) {
	var declared []string
	if step.Definition != nil {
		declared = step.Definition.ParameterNames
	}

	params := make([]reporting.Parameter, 0, len(step.Arguments))
	names := make([]string, 0, len(step.Arguments))
	values := make([]string, 0, len(step.Arguments))
	for i, arg := range step.Arguments {
		name := "arg" + strconv.Itoa(i)
		if i < len(declared) && declared[i] != "" {
			name = declared[i]
		}
		params = append(params, reporting.Parameter{Key: name, Value: arg.Value})
		names = append(names, name)
		values = append(values, arg.Value)
	}
	return params, names, values
}

// TagAttributes turns "@key:value" tags into key/value attributes and
// plain tags into value-only ones.
func TagAttributes(tags []string) []reporting.Attribute {
	var attrs []reporting.Attribute
	for _, tag := range tags {
		tag = strings.TrimPrefix(tag, "@")
		if tag == "" {
			continue
		}
		if k, v, ok := strings.Cut(tag, ":"); ok && k != "" && v != "" {
			attrs = append(attrs, reporting.Attribute{Key: k, Value: v})
			continue
		}
		attrs = append(attrs, reporting.Attribute{Value: tag})
	}
	return attrs
}

func definitionAttributes(step *event.PickleStep) []reporting.Attribute {
	if step.Definition == nil {
		return nil
	}
	attrs := make([]reporting.Attribute, 0, len(step.Definition.Attributes))
	for _, a := range step.Definition.Attributes {
		attrs = append(attrs, reporting.Attribute{Key: a.Key, Value: a.Value})
	}
	return attrs
}

// hookItem names the item opened for a hook of type t.
func hookItem(t event.HookType) (reporting.ItemType, string) {
	switch t {
	case event.HookBefore:
		return reporting.ItemBeforeTest, "Before hooks"
	case event.HookAfter:
		return reporting.ItemAfterTest, "After hooks"
	case event.HookBeforeStep:
		return reporting.ItemBeforeMethod, "Before step"
	default:
		return reporting.ItemAfterMethod, "After step"
	}
}

func hookMessage(h *event.Hook) string {
	if h.Type.IsBefore() {
		return "Before hook: " + h.Location
	}
	return "After hook: " + h.Location
}
