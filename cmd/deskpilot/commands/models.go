package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models",
	Long: `List all available models from configured providers.

Examples:
  deskpilot models              # List all models
  deskpilot models anthropic    # List only Anthropic models`,
	RunE: runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var providerFilter string
	if len(args) > 0 {
		providerFilter = args[0]
	}
	return printModels(ctx, a, os.Stdout, providerFilter)
}

func printModels(ctx context.Context, a *app, out io.Writer, providerFilter string) error {
	models, err := a.orch.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}

	current := a.source.Model()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tPROVIDER\tMODEL\tCONTEXT\tFEATURES\t")
	for _, model := range models {
		if providerFilter != "" && model.ProviderID != providerFilter {
			continue
		}

		mark := ""
		if model.ProviderID+"/"+model.ID == current {
			mark = "*"
		}
		features := ""
		if model.SupportsVision {
			features += "vision "
		}
		if model.SupportsTools {
			features += "tools "
		}
		if model.SupportsReasoning {
			features += "reasoning "
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%dk\t%s\t\n",
			mark,
			model.ProviderID,
			model.ID,
			model.ContextLength/1000,
			features,
		)
	}
	return w.Flush()
}
