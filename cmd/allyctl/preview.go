package main

import (
	"fmt"
	"io"
	"strings"

	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/spf13/cobra"
)

func newPreviewCmd(c *cli) *cobra.Command {
	var f sendFlags
	cmd := &cobra.Command{
		Use:     "preview <template>",
		GroupID: GroupDispatch,
		Short:   "Show how a template resolves against the current registry",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := c.services.Queue.Preview(cmd.Context(), service.CreateRequest{
				Scope:            models.Scope{Group: f.scope},
				ChannelName:      f.channel,
				MentionRoleNames: f.roles,
				RawMessage:       strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, preview); ok {
				return err
			}
			printPreview(out, preview)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.channel, "channel", "", "Channel name to resolve")
	cmd.Flags().StringVar(&f.scope, "scope", "", "Group scope for mention lookup")
	cmd.Flags().StringSliceVar(&f.roles, "role", nil, "Role to mention alongside the message (repeatable)")
	return cmd
}

func printPreview(out io.Writer, p *models.Preview) {
	fmt.Fprintln(out, p.ResolvedMessage)
	if p.ChannelName != "" {
		if p.ChannelID != nil {
			fmt.Fprintf(out, "Channel: %s -> %s\n", p.ChannelName, *p.ChannelID)
		} else {
			fmt.Fprintf(out, "Channel: %s (no ID)\n", p.ChannelName)
		}
	}
	if len(p.MentionRoleIDs) > 0 {
		fmt.Fprintf(out, "Mentions: %s\n", strings.Join(p.MentionRoleIDs, ", "))
	}
	if len(p.UnmappedRoles) > 0 {
		fmt.Fprintf(out, "Unmapped roles: %s\n", strings.Join(p.UnmappedRoles, ", "))
	}
	if len(p.UnresolvedTokens) > 0 {
		fmt.Fprintf(out, "Unresolved: %s\n", strings.Join(p.UnresolvedTokens, ", "))
	}
}
