package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"comb/internal/artifact"
	"comb/internal/bootstrap"
	"comb/internal/config"
	"comb/internal/meta"
	"comb/internal/node"
	"comb/internal/pullback"
)

var (
	rootCmd = &cobra.Command{
		Use:   "comb",
		Short: "Metadata-described research data workspaces",
	}
	configPath   string
	rootOverride string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the comb configuration file")
	rootCmd.PersistentFlags().StringVarP(&rootOverride, "root", "r", "", "Workspace root directory (overrides configuration)")

	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(joinCmd)
}

// openWorkspace loads the configuration and opens the workspace it names.
func openWorkspace() (*bootstrap.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if rootOverride != "" {
		cfg.Project.Root = rootOverride
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	return bootstrap.Open(cfg.RootMetaDir(), artifact.Classes(), logger)
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the artifact hierarchy of the workspace",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := openWorkspace()
		if err != nil {
			log.Fatalf("Failed to open workspace: %v", err)
		}

		fmt.Printf("📂 Workspace: %s (%d nodes)\n", ctx.Graph.RootDataDir(), ctx.Graph.Len())
		if err := printTree(ctx.Root(), 0); err != nil {
			log.Fatalf("Failed to walk workspace: %v", err)
		}
	},
}

// printTree prints the node and its interior descendants depth-first. File
// payloads are not read.
func printTree(n *node.Node, depth int) error {
	location, err := n.Location()
	if err != nil {
		location = "?"
	}
	fmt.Printf("%s- [%s] %s  %s\n", strings.Repeat("  ", depth), n.Kind(), n.ID(), location)

	if n.Kind() == meta.KindFile {
		return nil
	}
	children, err := n.Children()
	if err != nil {
		return err
	}
	for _, c := range children {
		child, ok := c.(*node.Node)
		if !ok {
			continue
		}
		if err := printTree(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Materialize every recorded artifact and report the ones that fail",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, err := openWorkspace()
		if err != nil {
			log.Fatalf("Failed to open workspace: %v", err)
		}

		// 1. Materialize every descriptor through the factory
		failures := ctx.Check()
		for _, f := range failures {
			fmt.Printf("❌ %s: %v\n", f.ID, f.Err)
		}

		// 2. Summarize
		total := ctx.Graph.Len() - 1
		if len(failures) > 0 {
			fmt.Printf("🚨 %d of %d artifacts failed to materialize\n", len(failures), total)
			os.Exit(1)
		}
		fmt.Printf("✅ All %d artifacts materialized\n", total)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <left-id> <right-id>",
	Short: "Join two key/value files on their point keys",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		leftID, err := uuid.Parse(args[0])
		if err != nil {
			log.Fatalf("Invalid left id: %v", err)
		}
		rightID, err := uuid.Parse(args[1])
		if err != nil {
			log.Fatalf("Invalid right id: %v", err)
		}

		ctx, err := openWorkspace()
		if err != nil {
			log.Fatalf("Failed to open workspace: %v", err)
		}

		left, err := ctx.Factory.Create(leftID)
		if err != nil {
			log.Fatalf("Failed to materialize %s: %v", leftID, err)
		}
		right, err := ctx.Factory.Create(rightID)
		if err != nil {
			log.Fatalf("Failed to materialize %s: %v", rightID, err)
		}

		pairKey := func(child any) (any, error) {
			pair, ok := child.(artifact.Pair)
			if !ok {
				return nil, fmt.Errorf("not a key/value point: %T", child)
			}
			return pair.Key, nil
		}

		table, err := pullback.New(ctx.Log).Join(left, right, pairKey, pairKey)
		if err != nil {
			log.Fatalf("Join failed: %v", err)
		}

		rows, err := table.Children()
		if err != nil {
			log.Fatalf("Failed to read join result: %v", err)
		}
		fmt.Printf("🔗 %d rows (arity %d)\n", len(rows), table.Arity())
		for _, row := range rows {
			fmt.Printf("  %v\n", row)
		}
	},
}
