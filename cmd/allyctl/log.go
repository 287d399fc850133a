package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"allyboard/internal/models"

	"github.com/spf13/cobra"
)

func newLogCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "log",
		GroupID: GroupData,
		Short:   "Inspect the send log",
	}
	cmd.AddCommand(newLogListCmd(c), newLogClearCmd(c))
	return cmd
}

func newLogListCmd(c *cli) *cobra.Command {
	var filter models.LogFilter
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List send attempts, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.services.SendLog.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, entries); ok {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME (UTC)\tSOURCE\tCHANNEL\tOK\tDETAIL\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
					e.Timestamp.UTC().Format(time.RFC3339),
					e.Source,
					e.ChannelName,
					e.OK,
					truncate(e.Detail, 30),
					truncate(e.MessagePreview, 40),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&filter.FailuresOnly, "failures", false, "Only show failed attempts")
	cmd.Flags().StringVarP(&filter.Query, "query", "q", "", "Case-insensitive text to match")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "Show at most this many entries")
	return cmd
}

func newLogClearCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every send log entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.services.SendLog.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Send log cleared")
			return nil
		},
	}
}
