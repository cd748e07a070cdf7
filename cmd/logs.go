package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriserin/ftrp/internal/store"
	"github.com/chriserin/ftrp/internal/ui"
)

var (
	logsItemFlag string
	logsSaveFlag string
)

var logsCmd = &cobra.Command{
	Use:   "logs <launch>",
	Short: "Print the logs of a launch or of one of its items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunLogs(cmd.Context(), cmd.OutOrStdout(), cfg.Store.Path, args[0], logsItemFlag, logsSaveFlag)
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsItemFlag, "item", "", "Item id or unique id prefix; launch logs when empty")
	logsCmd.Flags().StringVar(&logsSaveFlag, "save", "", "Directory to write attachments into")
	rootCmd.AddCommand(logsCmd)
}

func RunLogs(ctx context.Context, w io.Writer, storePath, launchRef, itemRef, saveDir string) error {
	st, sqlDB, err := openStore(ctx, storePath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launch, err := st.Launch(ctx, launchRef)
	if err != nil {
		return err
	}

	itemID := ""
	if itemRef != "" {
		items, err := st.Items(ctx, launch.ID)
		if err != nil {
			return err
		}
		item, err := findItem(items, itemRef)
		if err != nil {
			return err
		}
		itemID = item.ID
		fmt.Fprintf(w, "%s %s\n", item.Name, ui.Status(string(item.Status)))
	}

	logs, err := st.Logs(ctx, launch.ID, itemID)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Fprintln(w, "no logs")
		return nil
	}

	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", saveDir, err)
		}
	}
	for _, l := range logs {
		ui.LogLine(w, l.ID, l.Time, string(l.Level), l.Message)
		if l.Attachment == nil {
			continue
		}
		ui.AttachmentLine(w, l.Attachment.Name, l.Attachment.MediaType, l.Attachment.Size)
		if saveDir == "" {
			continue
		}
		path, err := saveAttachment(ctx, st, saveDir, l.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "    saved %s\n", path)
	}
	return nil
}

// findItem resolves an id or unique id prefix among a launch's items.
func findItem(items []store.Item, ref string) (store.Item, error) {
	var found []store.Item
	for _, it := range items {
		if it.ID == ref {
			return it, nil
		}
		if strings.HasPrefix(it.ID, ref) {
			found = append(found, it)
		}
	}
	switch len(found) {
	case 0:
		return store.Item{}, fmt.Errorf("%w: item %s", store.ErrNotFound, ref)
	case 1:
		return found[0], nil
	}
	return store.Item{}, fmt.Errorf("item prefix %s is ambiguous", ref)
}

func saveAttachment(ctx context.Context, st *store.Store, dir string, logID int64) (string, error) {
	a, data, err := st.AttachmentData(ctx, logID)
	if err != nil {
		return "", err
	}
	name := filepath.Base(a.Name)
	if a.Name == "" || name == "." || name == string(filepath.Separator) {
		name = "attachment"
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%s", logID, name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
