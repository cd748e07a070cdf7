package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftrp/internal/reporting"
	"github.com/chriserin/ftrp/internal/ui"
)

var listStatusFlag string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List reported launches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunList(cmd.Context(), cmd.OutOrStdout(), cfg.Store.Path, listStatusFlag)
	},
}

func init() {
	listCmd.Flags().StringVar(&listStatusFlag, "status", "", "Filter by launch status (PASSED, FAILED, IN_PROGRESS)")
	rootCmd.AddCommand(listCmd)
}

func RunList(ctx context.Context, w io.Writer, storePath, statusFilter string) error {
	st, sqlDB, err := openStore(ctx, storePath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launches, err := st.Launches(ctx)
	if err != nil {
		return err
	}

	nameWidth := 0
	for _, l := range launches {
		if len(l.Name) > nameWidth {
			nameWidth = len(l.Name)
		}
	}

	shown := 0
	for _, l := range launches {
		if statusFilter != "" && !statusMatches(l.Status, statusFilter) {
			continue
		}
		ui.LaunchRow(w, l.ID, l.Name, string(l.Status), l.Start, nameWidth)
		shown++
	}
	if shown == 0 {
		fmt.Fprintln(w, "no launches")
	}
	return nil
}

func statusMatches(status reporting.Status, filter string) bool {
	if status == "" {
		return filter == "IN_PROGRESS"
	}
	return string(status) == filter
}
