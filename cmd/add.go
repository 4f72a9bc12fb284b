package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <name> <dir>",
	Short: "Register a local model directory",
	Long: `Register an existing model directory under a name. The directory
must contain model.onnx, config.json, vocab.json and merges.txt. Files
stay in place; only a manifest is written.`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

func runAdd(_ *cobra.Command, args []string) error {
	name, dir := args[0], args[1]

	mgr, err := newManager()
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	if err := mgr.AddLocalModel(name, dir); err != nil {
		return fmt.Errorf("add '%s': %w", name, err)
	}

	fmt.Printf("Registered %s -> %s\n", name, dir)
	return nil
}
