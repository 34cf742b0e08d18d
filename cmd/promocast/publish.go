package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"promocast/internal/publish"
)

func newPublishCmd() *cobra.Command {
	var (
		dry     bool
		session string
	)
	cmd := &cobra.Command{
		Use:   "publish <batch-file>",
		Short: "Publish one batch file and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := publish.LoadRequest(args[0])
			if err != nil {
				return err
			}
			if dry {
				req.DryMode = true
			}
			if session != "" {
				req.SessionID = session
			}
			req.Trigger = "cli"

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Publish(cmd.Context(), req)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Success {
				return errors.New("failed platforms: " + strings.Join(res.Failed(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dry, "dry", false, "simulate every platform without side effects")
	cmd.Flags().StringVar(&session, "session", "", "session id for telemetry and the run id")
	return cmd
}

func platformContent(req publish.Request, platform string) (any, error) {
	content, ok := req.Content[platform]
	if !ok || content == nil {
		return nil, fmt.Errorf("batch has no content for %q", platform)
	}
	return content, nil
}
