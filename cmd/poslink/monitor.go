package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch values the controller pushes",
	Long: `Connect to a controller, enable notifications on the data
characteristic, and print every pushed value until interrupted.`,
	RunE: runMonitor,
}

var (
	monitorDevice string
	monitorName   string
	monitorHex    bool
)

func init() {
	monitorCmd.Flags().StringVarP(&monitorDevice, "device", "a", "", "Controller address")
	monitorCmd.Flags().StringVarP(&monitorName, "name", "n", "", "Controller advertised name")
	monitorCmd.Flags().BoolVarP(&monitorHex, "hex", "x", false, "Always print values as hex")
	monitorCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runMonitor(cmd *cobra.Command, args []string) error {
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

	result, err := connectTarget(ctx, session, monitorDevice, monitorName, cfg)
	if err != nil {
		return err
	}

	remove := session.AddListener(func(value []byte) {
		fmt.Printf("%s  %s\n", color.HiBlackString(time.Now().Format("15:04:05.000")), formatValue(value, monitorHex))
	})
	defer remove()

	if err := session.EnableAutoPush(); err != nil {
		return err
	}

	fmt.Printf("Monitoring %s, Ctrl+C to stop\n", color.CyanString(result.Address))

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
