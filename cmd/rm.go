package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:     "rm <model>",
	Aliases: []string{"remove"},
	Short:   "Remove a registered model",
	Long: `Remove a model from the registry. Pulled models also have their
downloaded files deleted; models added from a local directory keep their
files.`,
	Args: cobra.ExactArgs(1),
	RunE: runRm,
}

func runRm(_ *cobra.Command, args []string) error {
	name := args[0]

	mgr, err := newManager()
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	if err := mgr.RemoveModel(name); err != nil {
		return fmt.Errorf("remove '%s': %w", name, err)
	}

	fmt.Printf("Removed %s\n", name)
	return nil
}
