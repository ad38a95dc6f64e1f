package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stave/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Inspect and drive rendering sessions",
	}

	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	sessionCmd.AddCommand(newSessionActionCommand(ctx, "play", "Start playback with note highlighting", (*ipc.Client).Play))
	sessionCmd.AddCommand(newSessionActionCommand(ctx, "stop", "Stop playback", (*ipc.Client).StopPlayback))
	sessionCmd.AddCommand(newSessionActionCommand(ctx, "open", "Open the score source in its default application", (*ipc.Client).Open))
	sessionCmd.AddCommand(newSessionActionCommand(ctx, "reload", "Re-fetch the source and render it again", (*ipc.Client).Reload))
	sessionCmd.AddCommand(newSessionPageCommand(ctx))
	sessionCmd.AddCommand(newSessionDownloadCommand(ctx))

	return sessionCmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sessions()
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					if len(resp.Sessions) == 0 {
						fmt.Fprintln(out, "No sessions")
						return nil
					}
					rows := make([][]string, 0, len(resp.Sessions))
					for _, s := range resp.Sessions {
						page := strconv.Itoa(s.Page)
						if s.Pages > 0 {
							page = fmt.Sprintf("%d/%d", s.Page, s.Pages)
						}
						rows = append(rows, []string{shortID(s.ID), s.Mount, s.SourcePath, page, yesNo(s.Playing)})
					}
					fmt.Fprint(out, renderTable(
						[]string{"ID", "Mount", "Source", "Page", "Playing"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					))
					return nil
				})
			})
		},
	}
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveSessionID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Session(id)
				if err != nil {
					return err
				}
				s := resp.Session
				return ctx.emit(cmd, s, func() error {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "ID:       %s\n", s.ID)
					fmt.Fprintf(out, "Source:   %s\n", s.SourcePath)
					fmt.Fprintf(out, "Mount:    %s (mounted: %s)\n", s.Mount, yesNo(s.Mounted))
					fmt.Fprintf(out, "Page:     %d of %d\n", s.Page, s.Pages)
					if s.MeasureRange != "" {
						fmt.Fprintf(out, "Measures: %s\n", s.MeasureRange)
					}
					fmt.Fprintf(out, "Playing:  %s\n", yesNo(s.Playing))
					fmt.Fprintf(out, "Updated:  %s\n", s.UpdatedAt)
					return nil
				})
			})
		},
	}
}

type sessionAction func(*ipc.Client, string) (*ipc.ActionResponse, error)

func newSessionActionCommand(ctx *commandContext, use, short string, action sessionAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveSessionID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := action(client, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), actionMessage(resp))
					return nil
				})
			})
		},
	}
}

func newSessionPageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "page <id> <n>",
		Short: "Show page n of a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid page %q", args[1])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveSessionID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Page(id, n)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintln(cmd.OutOrStdout(), actionMessage(resp))
					return nil
				})
			})
		},
	}
}

func newSessionDownloadCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the current page as an SVG image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				id, err := resolveSessionID(client, args[0])
				if err != nil {
					return err
				}
				resp, err := client.Download(id)
				if err != nil {
					return err
				}
				target := strings.TrimSpace(output)
				if target == "" {
					target = resp.Name
				}
				if target == "-" {
					_, err := cmd.OutOrStdout().Write(resp.Data)
					return err
				}
				if err := os.WriteFile(target, resp.Data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				abs, _ := filepath.Abs(target)
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes)\n", abs, len(resp.Data))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (- for stdout)")
	return cmd
}

// resolveSessionID expands an unambiguous id prefix to the full session id.
func resolveSessionID(client *ipc.Client, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("session id is required")
	}
	resp, err := client.Sessions()
	if err != nil {
		return "", err
	}
	var match string
	for _, s := range resp.Sessions {
		if s.ID == ref {
			return ref, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("session id %q is ambiguous", ref)
			}
			match = s.ID
		}
	}
	if match == "" {
		return ref, nil
	}
	return match, nil
}

func actionMessage(resp *ipc.ActionResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return fmt.Sprintf("%s: %s ok", shortID(resp.SessionID), resp.Action)
}
