package correlator

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/chriserin/ftrp/internal/reporting"
)

// AgentName identifies this reporter in launch system attributes.
const AgentName = "ftrp"

// ParseAttributes reads "key:value;value2;key3:value3".
func ParseAttributes(s string) []reporting.Attribute {
	var attrs []reporting.Attribute
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, ":"); ok {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if v == "" {
				continue
			}
			attrs = append(attrs, reporting.Attribute{Key: k, Value: v})
			continue
		}
		attrs = append(attrs, reporting.Attribute{Value: part})
	}
	return attrs
}

// SystemAttributes describes the host and agent. skippedIssue is reported
// only when set.
func SystemAttributes(agentVersion string, skippedIssue *bool) []reporting.Attribute {
	attrs := []reporting.Attribute{
		{Key: "os", Value: strings.Join([]string{runtime.GOOS, runtime.GOARCH, strconv.Itoa(runtime.NumCPU())}, "|"), System: true},
		{Key: "runtime", Value: strings.Join([]string{"go", runtime.Version(), runtime.Compiler}, "|"), System: true},
		{Key: "agent", Value: AgentName + "|" + agentVersion, System: true},
	}
	if skippedIssue != nil {
		attrs = append(attrs, reporting.Attribute{
			Key:    "skippedIssue",
			Value:  strconv.FormatBool(*skippedIssue),
			System: true,
		})
	}
	return attrs
}
