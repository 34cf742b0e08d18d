package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"promocast/internal/app"
)

var cfgFile string

// NewRootCmd builds the promocast command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "promocast",
		Short: "Publish content to many platforms and stream progress",
		Long: `promocast fans one content batch out to social platforms, mail and chat
through webhook, API or browser automation channels, and streams live
progress events to connected sessions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "./promocast.yaml", "path to config file (yaml or json)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newPublishCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newSchedulesCmd())
	return root
}

// openApp builds the app for commands that never call Start.
func openApp() (*app.App, error) {
	return app.New(cfgFile)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
