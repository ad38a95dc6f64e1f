package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stave/internal/ipc"
)

func newMountCommand(ctx *commandContext) *cobra.Command {
	mountCmd := &cobra.Command{
		Use:   "mount",
		Short: "Inspect and clear mount points",
	}

	var withSVG bool
	showCmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show what a mount point displays",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Mount(args[0], withSVG)
				if err != nil {
					return err
				}
				mp := resp.Mount
				return ctx.emit(cmd, mp, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Mount:      %s\n", mp.Name)
					fmt.Fprintf(out, "Generation: %d (revision %d)\n", mp.Generation, mp.Revision)
					switch {
					case mp.Error != "":
						fmt.Fprintf(out, "Error:      %s\n", mp.Error)
					case mp.SessionID != "":
						fmt.Fprintf(out, "Session:    %s\n", mp.SessionID)
						fmt.Fprintf(out, "Source:     %s\n", mp.Source)
						fmt.Fprintf(out, "Page:       %d of %d\n", mp.Page, mp.Pages)
					default:
						fmt.Fprintln(out, "Empty")
					}
					if len(mp.Playing) > 0 {
						fmt.Fprintf(out, "Playing:    %s\n", strings.Join(mp.Playing, ", "))
					}
					if withSVG && mp.SVG != "" {
						fmt.Fprintln(out)
						fmt.Fprintln(out, mp.SVG)
					}
					return nil
				})
			})
		},
	}
	showCmd.Flags().BoolVar(&withSVG, "svg", false, "Include the rendered SVG")

	rmCmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"unmount"},
		Short:   "Unmount a mount point and evict its sessions",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Unmount(args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Unmounted %s\n", args[0])
					return nil
				})
			})
		},
	}

	mountCmd.AddCommand(showCmd, rmCmd)
	return mountCmd
}

func newPlaybackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "playback",
		Short: "Show the playback synchronizer state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Playback()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					if resp.State != "playing" {
						fmt.Fprintln(out, "Idle")
						return nil
					}
					fmt.Fprintf(out, "Playing %s since %s\n", resp.SessionID, resp.StartedAt)
					fmt.Fprintf(out, "Position: %.0f ms\n", resp.PositionMS)
					if len(resp.Highlighted) > 0 {
						fmt.Fprintf(out, "Highlighted: %s\n", strings.Join(resp.Highlighted, " "))
					}
					return nil
				})
			})
		},
	}
}
