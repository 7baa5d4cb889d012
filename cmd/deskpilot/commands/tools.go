package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Long: `List the built-in desktop tools and the tools of every connected MCP
server, after the "tools" enable/disable patterns of the config are applied.`,
	RunE: runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tDESCRIPTION\t")
	for _, t := range a.tools.List() {
		desc, _, _ := strings.Cut(t.Description(), "\n")
		fmt.Fprintf(w, "%s\t%s\t\n", t.ID(), desc)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, st := range a.mcp.Status() {
		line := fmt.Sprintf("mcp %s: %s, %d tools", st.Name, st.Status, st.ToolCount)
		if st.Error != nil {
			line += " (" + *st.Error + ")"
		}
		fmt.Fprintln(os.Stderr, line)
	}
	return nil
}
