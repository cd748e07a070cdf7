package cmd

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/parser"
	"github.com/chriserin/ftrp/internal/stream"
)

var eventsStatusFlag string

var eventsCmd = &cobra.Command{
	Use:   "events <path>...",
	Short: "Write a dry-run event stream for feature files",
	Long: "Write a dry-run event stream for feature files. Every step and case gets the same\n" +
		"status. Directories are searched for *.feature files.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunEvents(cmd.Context(), cmd.OutOrStdout(), args, event.Status(eventsStatusFlag), time.Now())
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsStatusFlag, "status", string(event.StatusSkipped), "Status given to every step and case")
	rootCmd.AddCommand(eventsCmd)
}

// RunEvents writes one run covering every feature under paths. Event times
// start at start and advance a millisecond per event.
func RunEvents(ctx context.Context, w io.Writer, paths []string, status event.Status, start time.Time) error {
	if !status.Known() {
		return fmt.Errorf("unknown status %q", status)
	}
	files, err := featureFiles(paths)
	if err != nil {
		return err
	}

	type feature struct {
		uri  string
		text string
		doc  *parser.Document
	}
	features := make([]feature, 0, len(files))
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		uri := filepath.ToSlash(path)
		doc, err := parser.Parse(uri, content)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		features = append(features, feature{uri: uri, text: string(content), doc: doc})
	}

	enc := stream.NewEncoder(w)
	at := start
	tick := func() time.Time {
		t := at
		at = at.Add(time.Millisecond)
		return t
	}
	result := event.Result{Status: status}

	if err := enc.Encode(event.RunStarted{Time: tick()}); err != nil {
		return err
	}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(event.SourceRead{Time: tick(), URI: f.uri, Text: f.text}); err != nil {
			return err
		}
		for _, p := range parser.Compile(f.doc) {
			key := event.CaseKey{URI: p.URI, Line: p.Line}
			if err := enc.Encode(event.CaseStarted{Time: tick(), URI: p.URI, Line: p.Line, Name: p.Name, Tags: p.Tags}); err != nil {
				return err
			}
			for _, s := range p.Steps {
				step := event.TestStep{Pickle: pickleStep(s)}
				if err := enc.Encode(event.StepStarted{Time: tick(), Case: key, Step: step}); err != nil {
					return err
				}
				if err := enc.Encode(event.StepFinished{Time: tick(), Case: key, Step: step, Result: result}); err != nil {
					return err
				}
			}
			if err := enc.Encode(event.CaseFinished{Time: tick(), Case: key, Result: result}); err != nil {
				return err
			}
		}
	}
	return enc.Encode(event.RunFinished{Time: tick()})
}

func pickleStep(s parser.PickleStep) *event.PickleStep {
	out := &event.PickleStep{Line: s.Line, Keyword: s.Keyword, Text: s.Text}
	if s.Argument == nil {
		return out
	}
	if ds := s.Argument.DocString; ds != nil {
		out.DocString = &event.DocString{MediaType: ds.MediaType, Content: ds.Content}
	}
	if dt := s.Argument.DataTable; dt != nil {
		for _, row := range dt.Rows {
			out.DataTable = append(out.DataTable, row.Cells)
		}
	}
	return out
}

// featureFiles expands directories into their *.feature files, sorted.
func featureFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".feature") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", p, err)
		}
	}
	sort.Strings(files)
	return files, nil
}
