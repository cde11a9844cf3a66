package modrec

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/modrec/internal/appconfig"
	"github.com/spf13/cobra"
)

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		file := ""
		if cfg := GetConfig(); cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), file, GetConfig())
		if DebugEnabled() {
			pp.Fprintln(cmd.OutOrStdout(), GetConfig())
		}
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
}
