package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attunepos/poslink/internal/linkio"
)

// linkCmd represents the link command
var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Expose the controller as a PTY",
	Long: `Connect to a controller and expose its data characteristic as a
pseudo-terminal. Lines written to the PTY are sent as tagged commands;
values pushed by the controller appear on the PTY one per line.

Point a serial tool at the printed device path, e.g.:
  picocom $(poslink link --name POS-Terminal)`,
	RunE: runLink,
}

var (
	linkDevice string
	linkName   string
)

func init() {
	linkCmd.Flags().StringVarP(&linkDevice, "device", "a", "", "Controller address")
	linkCmd.Flags().StringVarP(&linkName, "name", "n", "", "Controller advertised name")
	linkCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runLink(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	session := newSession(cfg, logger)
	defer session.Close()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := connectTarget(ctx, session, linkDevice, linkName, cfg)
	if err != nil {
		return err
	}
	if err := session.EnableAutoPush(); err != nil {
		return err
	}

	terminal, err := linkio.NewTerminal(logger)
	if err != nil {
		return err
	}
	link := linkio.NewLink(ctx, session, terminal, logger)
	defer link.Close()

	fmt.Printf("Controller %s linked to %s, Ctrl+C to stop\n",
		color.CyanString(result.Address), color.New(color.Bold).Sprint(terminal.Name()))

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !session.Connected() {
				return ErrConnectionLost
			}
		}
	}
}
