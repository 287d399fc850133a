package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	apperrors "allyboard/internal/errors"
	"allyboard/internal/models"

	"github.com/spf13/cobra"
)

func newMentionsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mentions",
		Aliases: []string{"mention"},
		GroupID: GroupData,
		Short:   "Map role and channel names to platform IDs",
	}
	cmd.AddCommand(newMentionsListCmd(c), newMentionsSetCmd(c), newMentionsRemoveCmd(c))
	return cmd
}

func parseKind(raw string) (models.MentionKind, error) {
	kind, err := models.ParseMentionKind(raw)
	if err != nil {
		return "", apperrors.NewValidationError("kind", raw, "kind must be role or channel")
	}
	return kind, nil
}

func newMentionsListCmd(c *cli) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:     "list <role|channel>",
		Aliases: []string{"ls"},
		Short:   "Show the effective names for a scope",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			names, err := c.services.Mentions.Lookup(cmd.Context(), kind, models.Scope{Group: scope})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ok, err := c.printJSON(out, names); ok {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintf(out, "No %s mappings\n", kind)
				return nil
			}
			keys := make([]string, 0, len(names))
			for k := range names {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID")
			for _, k := range keys {
				id := names[k]
				if id == "" {
					id = "(unset)"
				}
				fmt.Fprintf(tw, "%s\t%s\n", k, id)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Group scope; empty shows the global map")
	return cmd
}

func newMentionsSetCmd(c *cli) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "set <role|channel> <name> <id>",
		Short: "Create or replace a mapping",
		Long: `Create or replace a mapping. Names are matched case-insensitively.
An empty ID ("") records the name without an ID; it stays unresolved.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			s := models.Scope{Group: scope}
			if err := c.services.Mentions.Upsert(cmd.Context(), kind, s, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s %q in %s\n", kind, args[1], s)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Group scope; empty edits the global map")
	return cmd
}

func newMentionsRemoveCmd(c *cli) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:     "rm <role|channel> <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a mapping",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			s := models.Scope{Group: scope}
			if err := c.services.Mentions.Remove(cmd.Context(), kind, s, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s %q from %s\n", kind, args[1], s)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "Group scope; empty edits the global map")
	return cmd
}
