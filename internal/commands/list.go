// internal/commands/list.go
package modrec

import (
	"github.com/spf13/cobra"
)

// listCmd represents the 'list' command group.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Group commands for listing resources",
	Long:  `The 'list' command groups subcommands that list resources related to modrec.`,
}

func init() {
	rootCmd.AddCommand(listCmd)
}
