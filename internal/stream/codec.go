// Package stream reads and writes lifecycle events as newline-delimited
// JSON and feeds them to a handler.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/chriserin/ftrp/internal/event"
)

// Event type names carried in the "type" field of every line.
const (
	TypeRunStarted   = "run-started"
	TypeSourceRead   = "source-read"
	TypeCaseStarted  = "case-started"
	TypeStepStarted  = "step-started"
	TypeStepFinished = "step-finished"
	TypeCaseFinished = "case-finished"
	TypeRunFinished  = "run-finished"
	TypeEmbed        = "embed"
	TypeWrite        = "write"
)

// maxLine bounds a single event line. Embeds carry base64 payloads.
const maxLine = 64 << 20

var (
	ErrMissingType = errors.New("stream: event has no type")
	ErrUnknownType = errors.New("stream: unknown event type")
)

// Decode parses one event line.
func Decode(line []byte) (event.Event, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("stream: invalid json")
	}
	typ := gjson.GetBytes(line, "type")
	if !typ.Exists() {
		return nil, ErrMissingType
	}

	switch typ.String() {
	case TypeRunStarted:
		return decodeAs[event.RunStarted](line)
	case TypeSourceRead:
		return decodeAs[event.SourceRead](line)
	case TypeCaseStarted:
		return decodeAs[event.CaseStarted](line)
	case TypeStepStarted:
		return decodeAs[event.StepStarted](line)
	case TypeStepFinished:
		return decodeAs[event.StepFinished](line)
	case TypeCaseFinished:
		return decodeAs[event.CaseFinished](line)
	case TypeRunFinished:
		return decodeAs[event.RunFinished](line)
	case TypeEmbed:
		return decodeAs[event.Embed](line)
	case TypeWrite:
		return decodeAs[event.Write](line)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ.String())
}

func decodeAs[T event.Event](line []byte) (event.Event, error) {
	var ev T
	if err := json.Unmarshal(line, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// TypeOf names an event for the wire and for logs.
func TypeOf(ev event.Event) string {
	switch ev.(type) {
	case event.RunStarted:
		return TypeRunStarted
	case event.SourceRead:
		return TypeSourceRead
	case event.CaseStarted:
		return TypeCaseStarted
	case event.StepStarted:
		return TypeStepStarted
	case event.StepFinished:
		return TypeStepFinished
	case event.CaseFinished:
		return TypeCaseFinished
	case event.RunFinished:
		return TypeRunFinished
	case event.Embed:
		return TypeEmbed
	case event.Write:
		return TypeWrite
	}
	return ""
}

// Encode renders ev as a single line, without the trailing newline.
func Encode(ev event.Event) ([]byte, error) {
	typ := TypeOf(ev)
	if typ == "" {
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, ev)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", typ)
}

// Decoder reads events line by line. Blank lines are skipped.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Decoder{sc: sc}
}

// Next returns io.EOF after the last event.
func (d *Decoder) Next() (event.Event, error) {
	for d.sc.Scan() {
		d.line++
		b := d.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		ev, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, err)
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

type Encoder struct {
	w io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(ev event.Event) error {
	b, err := Encode(ev)
	if err != nil {
		return err
	}
	_, err = e.w.Write(append(b, '\n'))
	return err
}
