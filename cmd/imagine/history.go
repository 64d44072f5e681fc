package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"imagine/internal/domain"
)

func newHistoryCommand(e *env) *cobra.Command {
	var (
		page     int
		pageSize int
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved generations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 1 {
				return fmt.Errorf("%w: --page starts at 1", domain.ErrInvalidInput)
			}
			if all && !e.cfg.IsAdmin(e.cfg.UserEmail) {
				return errors.New("--all is reserved for the administrator (USER_EMAIL must match ADMIN_EMAIL)")
			}
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			filter := domain.ListFilter{
				OwnerID:    e.cfg.OwnerID,
				IncludeAll: all,
				Page:       page - 1,
				PageSize:   pageSize,
			}.Normalize()
			items, err := store.ListResults(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No generations found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tRATIO\tIMAGES\tPROMPT")
			for _, g := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
					g.ID, formatTime(g.CreatedAt), g.AspectRatio.Ratio(), len(g.Images), truncate(g.Prompt, 60))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(items) == filter.PageSize {
				fmt.Fprintf(cmd.OutOrStdout(), "More results: imagine history --page %d\n", page+1)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&pageSize, "page-size", domain.DefaultPageSize, "generations per page")
	cmd.Flags().BoolVar(&all, "all", false, "list every owner (administrator only)")
	return cmd
}

func newShowCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one saved generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			g, err := store.FindResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:           %s\n", g.ID)
			fmt.Fprintf(out, "Created:      %s\n", formatTime(g.CreatedAt))
			fmt.Fprintf(out, "Prompt:       %s\n", g.Prompt)
			fmt.Fprintf(out, "Aspect ratio: %s\n", g.AspectRatio.Ratio())
			if g.ExternalID != "" {
				fmt.Fprintf(out, "Remote job:   %s\n", g.ExternalID)
			}
			for i, u := range g.Images {
				fmt.Fprintf(out, "Image %d:      %s\n", i+1, u)
			}
			return nil
		},
	}
}

func newDeleteCommand(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !yes && !confirm(cmd, fmt.Sprintf("Delete generation %s? [y/N]: ", id)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			store, err := e.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.DeleteResult(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newRatiosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ratios",
		Short: "List the supported aspect ratios",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tRATIO\tDESCRIPTION")
			for _, opt := range domain.AspectRatioOptions {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", opt.Name, opt.Value.Ratio(), opt.Label)
			}
			return tw.Flush()
		},
	}
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprint(cmd.OutOrStdout(), question)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
