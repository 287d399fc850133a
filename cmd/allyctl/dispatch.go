package main

import (
	"fmt"
	"strings"

	"allyboard/internal/constants"
	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/spf13/cobra"
)

func newSendDueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "send-due",
		GroupID: GroupDispatch,
		Short:   "Send every pending item whose time has come",
		Long: `Send every pending item scheduled at or before now, one at a time in
queue order. Each attempt is written to the send log.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.services.Queue.SendDueNow(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, report); ok {
				return err
			}
			if report.Attempted == 0 {
				fmt.Fprintln(out, "No due items")
				return nil
			}
			fmt.Fprintf(out, "Attempted %d: %d sent, %d failed\n", report.Attempted, report.Sent, report.Failed)
			for _, id := range report.ItemIDs {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	}
}

type sendFlags struct {
	scope   string
	channel string
	roles   []string
	dryRun  bool
}

func newSendCmd(c *cli) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:     "send <message>",
		GroupID: GroupDispatch,
		Short:   "Resolve and send a message now, skipping the queue",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, sendErr := c.services.Direct.Send(cmd.Context(), service.DirectSendRequest{
				Scope:            models.Scope{Group: f.scope},
				ChannelName:      f.channel,
				MentionRoleNames: f.roles,
				RawMessage:       strings.Join(args, " "),
				Source:           constants.SourceCLI,
				DryRun:           f.dryRun,
			})
			if res == nil {
				return sendErr
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, res); ok {
				if err != nil {
					return err
				}
				return sendErr
			}
			printPreview(out, &res.Preview)
			if res.Result.OK {
				fmt.Fprintf(out, "Sent: %s\n", res.Result.Detail())
			} else {
				fmt.Fprintf(out, "Failed: %s\n", res.Result.Detail())
			}
			if sendErr == nil && !res.Result.OK {
				return fmt.Errorf("send failed: %s", res.Result.Detail())
			}
			return sendErr
		},
	}
	cmd.Flags().StringVar(&f.channel, "channel", "", "Channel name to send to (required)")
	cmd.Flags().StringVar(&f.scope, "scope", "", "Group scope for mention lookup")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "Role to mention alongside the message (repeatable)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Ask the gateway to validate without posting")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}
