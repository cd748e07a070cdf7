package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"

	"github.com/chriserin/ftrp/internal/store"
	"github.com/chriserin/ftrp/internal/ui"
)

var showOutputFlag string

var showCmd = &cobra.Command{
	Use:   "show <launch>",
	Short: "Show a launch's item tree",
	Long:  "Show a launch's item tree. <launch> is a launch id, a unique id prefix, or \"latest\".",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunShow(cmd.Context(), cmd.OutOrStdout(), cfg.Store.Path, args[0], showOutputFlag)
	},
}

func init() {
	showCmd.Flags().StringVarP(&showOutputFlag, "output", "o", "text", "Output format (text, yaml, json)")
	rootCmd.AddCommand(showCmd)
}

// treeNode is the nested form written by yaml and json output.
type treeNode struct {
	store.Item `yaml:",inline"`
	Children   []*treeNode `yaml:"children,omitempty" json:"children,omitempty"`
}

type launchTree struct {
	Launch store.Launch `yaml:"launch" json:"launch"`
	Items  []*treeNode  `yaml:"items" json:"items"`
}

func RunShow(ctx context.Context, w io.Writer, storePath, ref, output string) error {
	st, sqlDB, err := openStore(ctx, storePath)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	launch, err := st.Launch(ctx, ref)
	if err != nil {
		return err
	}
	items, err := st.Items(ctx, launch.ID)
	if err != nil {
		return err
	}
	roots := buildTree(items)

	switch output {
	case "text", "":
		ui.LaunchHeader(w, launch.ID, launch.Name, string(launch.Status))
		var walk func(nodes []*treeNode, depth int)
		walk = func(nodes []*treeNode, depth int) {
			for _, n := range nodes {
				ui.TreeLine(w, depth, n.Name, string(n.Type), string(n.Status))
				walk(n.Children, depth+1)
			}
		}
		walk(roots, 1)
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(launchTree{Launch: launch, Items: roots}); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		b, err := json.Marshal(launchTree{Launch: launch, Items: roots})
		if err != nil {
			return err
		}
		_, err = w.Write(pretty.Pretty(b))
		return err
	}
	return fmt.Errorf("unknown output format %q", output)
}

// buildTree nests items under their parents, keeping start order.
func buildTree(items []store.Item) []*treeNode {
	nodes := make(map[string]*treeNode, len(items))
	for i := range items {
		nodes[items[i].ID] = &treeNode{Item: items[i]}
	}
	var roots []*treeNode
	for i := range items {
		n := nodes[items[i].ID]
		if parent, ok := nodes[items[i].ParentID]; ok {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}
