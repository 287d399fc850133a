package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"allyboard/internal/app"
	"allyboard/internal/config"
	"allyboard/internal/models"
	"allyboard/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Command groups
const (
	GroupDispatch = "dispatch"
	GroupData     = "data"
)

type buildFunc func(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*app.Services, error)

// cli holds the state shared by every subcommand.
type cli struct {
	configPath string
	verbose    bool
	jsonOut    bool

	logger   *logrus.Logger
	build    buildFunc
	services *app.Services
}

func newCLI() *cli {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	return &cli{
		logger: logger,
		build: func(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*app.Services, error) {
			return app.Build(ctx, cfg, logger)
		},
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "allyctl",
		Short: "Operate the allyboard mention registry and send queue",
		Long: `allyctl works directly against the allyboard store named in the
configuration file. It is safe to run next to the server: sends from both
hold the same lock.

Examples:
  allyctl mentions set role officers 123456789
  allyctl preview "{{role:officers}} rally in #war-room"
  allyctl queue add --at 2026-03-01T20:00:00Z --channel war-room "@officers go"
  allyctl send-due`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.json", "Path to configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "Print results as JSON")

	root.AddGroup(
		&cobra.Group{ID: GroupDispatch, Title: "Dispatch Commands:"},
		&cobra.Group{ID: GroupData, Title: "Data Commands:"},
	)

	root.AddCommand(
		newSendDueCmd(c),
		newSendCmd(c),
		newQueueCmd(c),
		newLogCmd(c),
		newMentionsCmd(c),
		newPreviewCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cmd.SetContext(service.WithVerbose(cmd.Context(), c.verbose))
	if c.services != nil || skipsSetup(cmd) {
		return nil
	}

	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.LogLevel
	if !c.verbose {
		// keep stderr quiet unless something goes wrong
		level = logrus.WarnLevel.String()
	}
	app.ApplyLogLevel(c.logger, level, c.verbose)

	services, err := c.build(cmd.Context(), cfg, c.logger)
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func skipsSetup(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "help", "completion":
			return true
		}
	}
	return false
}

// execute runs root and closes the services whether or not the command failed.
func execute(ctx context.Context, c *cli, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if closeErr := c.teardown(); err == nil {
		err = closeErr
	}
	return err
}

func (c *cli) teardown() error {
	if c.services == nil {
		return nil
	}
	err := c.services.Close()
	c.services = nil
	return err
}

// printJSON writes v indented when --json is set and reports whether it did.
func (c *cli) printJSON(w io.Writer, v interface{}) (bool, error) {
	if !c.jsonOut {
		return false, nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}
