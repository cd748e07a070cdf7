package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftrp/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status [<launch>]",
	Short: "Count a launch's results by status",
	Long:  "Count a launch's results by status. <launch> defaults to \"latest\".",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := "latest"
		if len(args) == 1 {
			ref = args[0]
		}
		return RunStatus(cmd.Context(), cmd.OutOrStdout(), cfg.Store.Path, ref)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func RunStatus(ctx context.Context, w io.Writer, storePath, ref string) error {
	st, sqlDB, err := openStore(ctx, storePath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launch, err := st.Launch(ctx, ref)
	if err != nil {
		return err
	}
	counts, err := st.StatusCounts(ctx, launch.ID)
	if err != nil {
		return err
	}

	ui.LaunchHeader(w, launch.ID, launch.Name, string(launch.Status))
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	fmt.Fprintf(w, "Results: %d\n", total)
	for _, c := range counts {
		ui.CountLine(w, string(c.Status), c.Count)
	}
	return nil
}
