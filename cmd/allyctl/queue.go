package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"allyboard/internal/constants"
	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/spf13/cobra"
)

func newQueueCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "queue",
		GroupID: GroupData,
		Short:   "Manage scheduled sends",
	}
	cmd.AddCommand(
		newQueueListCmd(c),
		newQueueAddCmd(c),
		newQueueSendCmd(c),
		newQueueCancelCmd(c),
		newQueueRemoveCmd(c),
	)
	return cmd
}

func newQueueListCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queued items by scheduled time",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := c.services.Queue.List(cmd.Context(), service.ListFilter{Status: models.SendStatus(status)})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, items); ok {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCHEDULED (UTC)\tSTATUS\tCHANNEL\tMESSAGE\tLAST RESULT")
			for _, item := range items {
				last := ""
				if item.LastResult != nil {
					last = *item.LastResult
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					item.ID,
					item.ScheduledAt.UTC().Format(time.RFC3339),
					item.Status,
					item.ChannelName,
					truncate(item.ResolvedMessage, 40),
					truncate(last, 30),
				)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show items in this status (pending, sent, failed, cancelled)")
	return cmd
}

type queueAddFlags struct {
	at      string
	in      time.Duration
	scope   string
	channel string
	roles   []string
}

func newQueueAddCmd(c *cli) *cobra.Command {
	var f queueAddFlags
	cmd := &cobra.Command{
		Use:   "add <message>",
		Short: "Schedule a message; mentions are resolved now",
		Long: `Schedule a message for later. Mentions and the channel ID are resolved
when the item is created; later registry edits do not change it.

Examples:
  allyctl queue add --at 2026-03-01T20:00:00Z --channel war-room "@officers rally"
  allyctl queue add --in 30m --channel trade --scope wolves "Trade window open"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := f.scheduledAt(time.Now())
			if err != nil {
				return err
			}
			item, err := c.services.Queue.Create(cmd.Context(), service.CreateRequest{
				ScheduledAt:      at,
				Scope:            models.Scope{Group: f.scope},
				ChannelName:      f.channel,
				MentionRoleNames: f.roles,
				RawMessage:       strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, item); ok {
				return err
			}
			fmt.Fprintf(out, "Queued %s for %s\n", item.ID, item.ScheduledAt.Format(time.RFC3339))
			if item.ChannelID == nil {
				fmt.Fprintf(out, "Warning: channel %q has no ID; the send will fail until it is mapped and the item is recreated\n", item.ChannelName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.at, "at", "", "Send time (RFC 3339)")
	cmd.Flags().DurationVar(&f.in, "in", 0, "Send after this delay instead of --at")
	cmd.Flags().StringVar(&f.channel, "channel", "", "Channel name to send to (required)")
	cmd.Flags().StringVar(&f.scope, "scope", "", "Group scope for mention lookup")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "Role to mention alongside the message (repeatable)")
	_ = cmd.MarkFlagRequired("channel")
	cmd.MarkFlagsMutuallyExclusive("at", "in")
	return cmd
}

func (f queueAddFlags) scheduledAt(now time.Time) (time.Time, error) {
	switch {
	case f.at != "":
		at, err := time.Parse(time.RFC3339, f.at)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at %q: use RFC 3339, e.g. 2026-03-01T20:00:00Z", f.at)
		}
		return at.UTC(), nil
	case f.in > 0:
		return now.Add(f.in).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("one of --at or --in is required")
	}
}

func newQueueSendCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "send <id>",
		Short: "Send one pending or failed item now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := c.services.Queue.SendOne(cmd.Context(), args[0], constants.SourceCLI)
			if err != nil {
				return err
			}
			return c.printItemResult(cmd.OutOrStdout(), item)
		},
	}
}

func newQueueCancelCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or failed item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := c.services.Queue.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printItemResult(cmd.OutOrStdout(), item)
		},
	}
}

func newQueueRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete an item whatever its status",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.services.Queue.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) printItemResult(out io.Writer, item *models.ScheduledSendItem) error {
	if ok, err := c.printJSON(out, item); ok {
		return err
	}
	last := ""
	if item.LastResult != nil {
		last = ": " + *item.LastResult
	}
	fmt.Fprintf(out, "%s %s%s\n", item.ID, item.Status, last)
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
