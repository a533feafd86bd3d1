// cmd/precursor/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"precursor/client"
	"precursor/internal/bridge"
	"precursor/internal/change"
	"precursor/internal/config"
	"precursor/internal/diff"
	"precursor/internal/view"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "precursor",
	Short: "Precursor shows what changed in your files before and after each save",
	Long: `Precursor keeps the previous saved, current saved and live unsaved
version of every file in a workspace, and shows line diffs between them.
This command talks to a running precursor daemon.`,
	SilenceUsage: true,
}

// newClient resolves the daemon address from --server or the config file
func newClient() (*client.Client, error) {
	if serverURL != "" {
		return client.New(strings.TrimRight(serverURL, "/")), nil
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return client.New("http://" + cfg.Addr()), nil
}

// eventContent picks the buffer content for an event: --content if given,
// otherwise the file at --file, otherwise the file at path
func eventContent(cmd *cobra.Command, path string) (string, error) {
	if cmd.Flags().Changed("content") {
		return cmd.Flags().GetString("content")
	}
	file, _ := cmd.Flags().GetString("file")
	if file == "" {
		file = path
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading content: %w", err)
	}
	return string(data), nil
}

func postEvent(cmd *cobra.Command, ev change.Event) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	resp, err := c.PostEvent(cmd.Context(), ev)
	if err != nil {
		return fmt.Errorf("sending %s event: %w", ev.Kind, err)
	}

	state := color.New(color.FgYellow).Sprint("untracked")
	if resp.Tracked {
		state = color.New(color.FgGreen).Sprint("clean")
		if resp.Record.IsDirty() {
			state = color.New(color.FgRed).Sprint("dirty")
		}
	}
	fmt.Printf("%s %s (%s)\n", ev.Kind, resp.Path, state)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "Daemon URL (default from config)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.Path(), "Config file")

	var filesCmd = &cobra.Command{
		Use:   "files",
		Short: "List tracked files",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			entries, err := c.Files(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing files: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No files tracked")
				return nil
			}

			dirty := color.New(color.FgRed).SprintFunc()
			folder := color.New(color.FgBlue).SprintFunc()
			for _, e := range entries {
				mark := " "
				if e.IsDirty() {
					mark = dirty("*")
				}
				fmt.Printf("%s %-30s %s\n", mark, e.DisplayName, folder(e.FolderLabel))
			}
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <path>",
		Short: "Show the diff for a file",
		Long: `Show a line diff for a tracked file.
--mode prev compares the last two saves; --mode now compares the last save
with the unsaved buffer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeFlag, _ := cmd.Flags().GetString("mode")
			mode, err := diff.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			d, err := c.Diff(cmd.Context(), args[0], mode)
			if err != nil {
				return fmt.Errorf("getting diff: %w", err)
			}

			color.New(color.Bold).Println(d.Path)
			color.New(color.FgCyan).Printf("%s  %s\n", d.Label, d.Summary)
			return view.RenderLines(os.Stdout, d.Lines)
		},
	}

	var followCmd = &cobra.Command{
		Use:   "follow [path]",
		Short: "Follow live changes",
		Long: `Subscribe to the daemon's change stream. With a path, the diff for that
file is redrawn every time it changes; without one, each change is listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeFlag, _ := cmd.Flags().GetString("mode")
			mode, err := diff.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			c, err := newClient()
			if err != nil {
				return err
			}
			surface := view.New(nil)
			surface.SetMode(mode)
			listed := false

			// The stream opens with the file list, so the surface is hydrated
			// from the same connection that delivers later changes.
			err = c.Stream(cmd.Context(), func(msg bridge.Message) error {
				if list, ok := msg.(bridge.FileList); ok && !listed {
					listed = true
					surface.Load(list.Files)
					if len(args) == 1 {
						if _, err := surface.View(args[0]); err != nil {
							return err
						}
						return surface.Render(os.Stdout)
					}
					fmt.Printf("Following %d file(s)\n", len(list.Files))
					return nil
				}

				_, touched := surface.Apply(msg)
				if touched {
					fmt.Println()
					return surface.Render(os.Stdout)
				}
				if len(args) == 0 {
					switch m := msg.(type) {
					case bridge.DocumentContent:
						state := "saved"
						if m.IsDirty {
							state = color.New(color.FgRed).Sprint("unsaved")
						}
						fmt.Printf("changed %s (%s)\n", m.Path, state)
					case bridge.RemoveUnsavedContent:
						fmt.Printf("removed %s\n", m.Path)
					}
				}
				return nil
			})
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}

	var openCmd = &cobra.Command{
		Use:   "open <path>",
		Short: "Report a buffer opened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			untitled, _ := cmd.Flags().GetBool("untitled")
			dirty, _ := cmd.Flags().GetBool("dirty")
			ev := change.Event{Kind: change.Opened, Path: args[0], Dirty: dirty, Untitled: untitled}
			if !untitled || cmd.Flags().Changed("content") {
				content, err := eventContent(cmd, args[0])
				if err != nil {
					return err
				}
				ev.Content = content
			}
			return postEvent(cmd, ev)
		},
	}

	var editCmd = &cobra.Command{
		Use:   "edit <path>",
		Short: "Report unsaved buffer content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := eventContent(cmd, args[0])
			if err != nil {
				return err
			}
			untitled, _ := cmd.Flags().GetBool("untitled")
			clean, _ := cmd.Flags().GetBool("clean")
			return postEvent(cmd, change.Event{
				Kind:     change.Changed,
				Path:     args[0],
				Content:  content,
				Dirty:    !clean,
				Untitled: untitled,
			})
		},
	}

	var saveCmd = &cobra.Command{
		Use:   "save <path>",
		Short: "Report a save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := eventContent(cmd, args[0])
			if err != nil {
				return err
			}
			untitled, _ := cmd.Flags().GetBool("untitled")
			return postEvent(cmd, change.Event{Kind: change.Saved, Path: args[0], Content: content, Untitled: untitled})
		},
	}

	var closeCmd = &cobra.Command{
		Use:   "close <path>",
		Short: "Report a buffer closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dirty, _ := cmd.Flags().GetBool("dirty")
			untitled, _ := cmd.Flags().GetBool("untitled")
			return postEvent(cmd, change.Event{Kind: change.Closed, Path: args[0], WasDirty: dirty, Untitled: untitled})
		},
	}

	var scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Rescan the workspace for new files",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Scan(cmd.Context())
			if err != nil {
				return fmt.Errorf("scanning: %w", err)
			}
			fmt.Printf("%d added, %d already tracked\n", res.Added, res.Known)
			for _, p := range res.Skipped {
				color.New(color.FgYellow).Printf("skipped %s\n", p)
			}
			return nil
		},
	}

	var flushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Archive buffers that were closed with unsaved edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			n, err := c.Flush(cmd.Context())
			if err != nil {
				return fmt.Errorf("flushing: %w", err)
			}
			fmt.Printf("Archived %d file(s)\n", n)
			return nil
		},
	}

	var archiveCmd = &cobra.Command{
		Use:   "archive [id]",
		Short: "List archived unsaved work, or show one entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				rec, err := c.Restore(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("restoring: %w", err)
				}
				res := rec.Diff(diff.Now)
				color.New(color.Bold).Println(rec.Path)
				color.New(color.FgCyan).Printf("%s  %s\n", res.Label(), res.Summary())
				return view.RenderLines(os.Stdout, res.Lines)
			}

			entries, err := c.Archive(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing archive: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("Archive is empty")
				return nil
			}
			id := color.New(color.FgYellow).SprintFunc()
			for _, e := range entries {
				fmt.Printf("%s  %s  %s\n", id(e.ID), e.ArchivedAt.Format("2006-01-02 15:04:05"), e.Path)
			}
			return nil
		},
	}

	var archiveDeleteCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.DeleteArchived(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("deleting: %w", err)
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}

	var resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Forget every tracked file",
		Long: `Drop every record from the daemon. Buffers that were closed with unsaved
edits are archived first; nothing is dropped if that fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			resp, err := c.Reset(cmd.Context())
			if err != nil {
				return fmt.Errorf("resetting: %w", err)
			}
			fmt.Printf("Dropped %d file(s), archived %d\n", resp.Dropped, resp.Flushed)
			return nil
		},
	}

	var loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Start the login flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			if err := c.Login(cmd.Context()); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Println("Login requested")
			return nil
		},
	}

	diffCmd.Flags().StringP("mode", "m", string(diff.Now), "Diff mode (prev, now)")
	followCmd.Flags().StringP("mode", "m", string(diff.Now), "Diff mode (prev, now)")

	for _, cmd := range []*cobra.Command{openCmd, editCmd, saveCmd} {
		cmd.Flags().String("content", "", "Buffer content")
		cmd.Flags().StringP("file", "f", "", "Read buffer content from this file")
	}
	for _, cmd := range []*cobra.Command{openCmd, editCmd, saveCmd, closeCmd} {
		cmd.Flags().BoolP("untitled", "u", false, "The buffer has no backing file")
	}
	openCmd.Flags().Bool("dirty", false, "The buffer opens with unsaved content")
	closeCmd.Flags().Bool("dirty", false, "The buffer had unsaved content")
	editCmd.Flags().Bool("clean", false, "The edit returned the buffer to its saved state")

	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(followCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(flushCmd)
	archiveCmd.AddCommand(archiveDeleteCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(loginCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
