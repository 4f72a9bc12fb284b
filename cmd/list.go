package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lmforge/tgen/config"
	"github.com/lmforge/tgen/registry"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local models",
	Long:    "List all models registered in the local model registry.",
	RunE:    runList,
}

func newManager() (*registry.ModelManager, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return registry.NewModelManager(cfg.BaseDir, registry.WithPullHost(cfg.PullHost))
}

func runList(_ *cobra.Command, _ []string) error {
	mgr, err := newManager()
	if err != nil {
		return fmt.Errorf("init model manager: %w", err)
	}

	models, err := mgr.ListModels()
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	if len(models) == 0 {
		fmt.Println("No models registered. Use 'tgen pull gpt2' or 'tgen add <name> <dir>' to get one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tARCHITECTURE\tSOURCE\tADDED")
	for _, m := range models {
		arch := m.Architecture
		if arch == "" {
			arch = "-"
		}
		source := m.Source
		if source == "" {
			source = "local"
		}
		added := m.AddedAt.Format("2006-01-02 15:04")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, formatSize(m.Size), arch, source, added)
	}
	return w.Flush()
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
