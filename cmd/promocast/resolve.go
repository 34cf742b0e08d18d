package main

import (
	"github.com/spf13/cobra"

	"promocast/internal/channel"
	"promocast/internal/publish"
	"promocast/internal/target"
)

func newResolveCmd() *cobra.Command {
	var platform, field string
	cmd := &cobra.Command{
		Use:   "resolve <batch-file>",
		Short: "Print the recipients a platform's targets resolve to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := publish.LoadRequest(args[0])
			if err != nil {
				return err
			}
			content, err := platformContent(req, platform)
			if err != nil {
				return err
			}
			post, err := channel.DecodePost(content)
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			project := target.Projector[string](target.BaseField)
			if field != "" {
				project = target.CustomField(field)
			}
			out, err := target.ResolveFrom(cmd.Context(), a.Logger(), post.Targets, a.Store(), project)
			if err != nil {
				return err
			}
			if out == nil {
				out = []string{}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"recipients": out, "count": len(out)})
		},
	}
	cmd.Flags().StringVar(&platform, "platform", "", "platform whose content holds the targets")
	cmd.Flags().StringVar(&field, "field", "", "custom field to project instead of the base value")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
