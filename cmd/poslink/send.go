package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <command>",
	Short: "Send a command to the controller",
	Long: `Connect to a controller and send one command. The command is tagged
with the firmware's command prefix and written as plain UTF-8.

Example:
  poslink send LED_ON --name POS-Terminal`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

var (
	sendDevice string
	sendName   string
)

func init() {
	sendCmd.Flags().StringVarP(&sendDevice, "device", "a", "", "Controller address")
	sendCmd.Flags().StringVarP(&sendName, "name", "n", "", "Controller advertised name")
	sendCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runSend(cmd *cobra.Command, args []string) error {
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

	if _, err := connectTarget(ctx, session, sendDevice, sendName, cfg); err != nil {
		return err
	}

	if err := session.SendCommand(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", color.GreenString("sent"), args[0])
	return nil
}
