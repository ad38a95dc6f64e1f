package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"stave/internal/ipc"
)

func newNoticesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "List recent notices, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Notices(limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					if len(resp.Notices) == 0 {
						fmt.Fprintln(out, "No notices")
						return nil
					}
					rows := make([][]string, 0, len(resp.Notices))
					for _, n := range resp.Notices {
						rows = append(rows, []string{n.Time, n.Kind, n.Title, n.Message})
					}
					fmt.Fprint(out, renderTable([]string{"Time", "Kind", "Title", "Message"}, rows, nil))
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum notices to show (0 for all)")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					if resp != nil && resp.Message != "" {
						fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
					}
					return err
				}
				if resp == nil {
					return errors.New("missing notification response")
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
