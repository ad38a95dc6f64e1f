package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stave/internal/config"
	"stave/internal/ipc"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "render <mount> [block-file|-]",
		Short: "Render one score block onto a mount point",
		Long: "Render the body of a score block onto the named mount point. The block\n" +
			"body is read from --source, from the given file, or from stdin.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := source
			if body == "" {
				path := "-"
				if len(args) > 1 {
					path = args[1]
				}
				data, err := readInput(cmd, path)
				if err != nil {
					return err
				}
				body = string(data)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Render(args[0], body)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					fmt.Fprintf(cmd.OutOrStdout(), "Rendered %s (session %s)\n", resp.Mount, resp.SessionID)
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Block body text")
	return cmd
}

func newDocumentCommand(ctx *commandContext) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "document <note.md|->",
		Short: "Render every score block in a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			name := strings.TrimSpace(note)
			if name == "" {
				if args[0] == "-" {
					return errors.New("--note is required when reading from stdin")
				}
				name = filepath.Base(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RenderDocument(name, string(data))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, resp, func() error {
					out := cmd.OutOrStdout()
					if len(resp.Blocks) == 0 {
						fmt.Fprintf(out, "No score blocks in %s\n", resp.Note)
						return nil
					}
					rows := make([][]string, 0, len(resp.Blocks))
					for _, block := range resp.Blocks {
						result := shortID(block.SessionID)
						if block.Error != "" {
							result = block.Error
						}
						rows = append(rows, []string{block.Mount, strconv.Itoa(block.Line), result})
					}
					fmt.Fprint(out, renderTable([]string{"Mount", "Line", "Session"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
					return nil
				})
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Note name used to derive mount points (defaults to the file name)")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
