// internal/commands/models.go
package modrec

import (
	"fmt"
	"io"
	"strings"

	"github.com/k0kubun/pp"
	"github.com/mwiater/modrec/internal/bandit"
	"github.com/spf13/cobra"
)

// modelsCmd implements 'models', which lists the registered models and their
// parameter bounds.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the available models",
	Long:  `The 'models' command lists every model that can be named in the config, with its description and fitted parameter bounds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listModels(cmd.OutOrStdout(), DebugEnabled())
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func listModels(out io.Writer, debug bool) error {
	names := bandit.Available()
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}

	fmt.Fprintln(out, "Available models:")
	for _, n := range names {
		m, err := bandit.Lookup(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s%s%s\n", n, strings.Repeat(" ", width-len(n)+2), m.Description())
		var bounds []string
		for _, b := range m.Bounds() {
			bounds = append(bounds, fmt.Sprintf("%s∈[%g, %g]", b.Name, b.Lower, b.Upper))
		}
		fmt.Fprintf(out, "  %s%s\n", strings.Repeat(" ", width+2), strings.Join(bounds, "  "))
		if debug {
			pp.Fprintln(out, m.Priors())
		}
	}
	return nil
}
