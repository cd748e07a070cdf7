package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chriserin/ftrp/internal/config"
	"github.com/chriserin/ftrp/internal/correlator"
	"github.com/chriserin/ftrp/internal/event"
	"github.com/chriserin/ftrp/internal/itemtree"
	"github.com/chriserin/ftrp/internal/reporting"
	"github.com/chriserin/ftrp/internal/source"
	"github.com/chriserin/ftrp/internal/stream"
	"github.com/chriserin/ftrp/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report [events.ndjson|-]",
	Short: "Replay an event stream into a new launch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		_, err := RunReport(cmd.Context(), cmd.OutOrStdout(), in, cfg, logger)
		return err
	},
}

func init() {
	reportCmd.Flags().String("name", "", "launch name")
	rootCmd.AddCommand(reportCmd)
}

// ErrNoRun is returned for a stream that never started a run.
var ErrNoRun = errors.New("event stream has no run-started event")

type countingHandler struct {
	stream.Handler
	n atomic.Int64
}

func (c *countingHandler) Handle(ev event.Event) error {
	c.n.Add(1)
	return c.Handler.Handle(ev)
}

// RunReport replays the events read from in and returns the new launch id.
func RunReport(ctx context.Context, w io.Writer, in io.Reader, c *config.Config, logger *zap.Logger) (string, error) {
	st, sqlDB, err := openStore(ctx, c.Store.Path)
	if err != nil {
		return "", err
	}
	defer sqlDB.Close()

	client := reporting.NewClient(ctx, st,
		reporting.WithLogger(logger),
		reporting.WithPoolSize(c.Reporting.IOPoolSize))
	corr := correlator.New(client, source.NewIndex(),
		correlator.WithShape(c.Shape()),
		correlator.WithTree(itemtree.New(c.Reporting.Callback)),
		correlator.WithLogger(logger),
		correlator.WithLaunch(c.LaunchRequest(Version)),
		correlator.WithSourceRoot(c.Reporting.SourceRoot))

	handler := &countingHandler{Handler: corr}
	dispatcher := stream.NewDispatcher(handler,
		stream.WithWorkers(c.Reporting.Workers),
		stream.WithDispatchLogger(logger))

	runErr := dispatcher.Run(ctx, stream.NewDecoder(in))
	closeErr := client.Close()
	if runErr != nil {
		return "", runErr
	}
	if closeErr != nil {
		return "", fmt.Errorf("writing report: %w", closeErr)
	}

	launch := client.Launch()
	if launch == nil {
		return "", ErrNoRun
	}
	id, err := launch.ID(ctx)
	if err != nil {
		return "", err
	}
	ui.SummaryLine(w, id, int(handler.n.Load()))
	return id, nil
}
