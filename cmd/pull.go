package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model",
	Long: `Download a model's ONNX weights and tokenizer files from the
configured hub and register it locally. The name follows the hub layout,
e.g. 'gpt2' or 'distilbert/distilgpt2'.`,
	Args: cobra.ExactArgs(1),
	RunE: runPull,
}

func runPull(cmd *cobra.Command, args []string) error {
	name := args[0]

	mgr, err := newManager()
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Pulling %s...\n", name)
	if err := mgr.Pull(cmd.Context(), name); err != nil {
		return fmt.Errorf("pull '%s': %w", name, err)
	}

	m, err := mgr.GetModel(name)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Pulled %s (%s)\n", m.Name, formatSize(m.Size))
	return nil
}
