package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/attunepos/poslink/internal/bridge"
	"github.com/attunepos/poslink/internal/device/goble"
	"github.com/attunepos/poslink/internal/platform"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for controllers",
	Long: `Scan for nearby BLE point-of-sale controllers and display what was
found: advertised name, address and signal strength. Results are
deduplicated by address within the scan window.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanName     string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", "", "Only show controllers advertising this name")
	scanCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	duration := cfg.Scan.Timeout
	if scanDuration > 0 {
		duration = scanDuration
	}
	name := scanName
	if name == "" {
		name = cfg.Scan.Name
	}

	transport := goble.NewTransport(logger)
	authority := platform.NewSystemAuthority(cfg.Adapter)
	b := bridge.New(transport, authority, logger)

	ctx, cancel := signalContext()
	defer cancel()

	progress := NewCountdownProgressPrinter("Scanning for controllers", "scanning", duration)
	progress.Start()
	results, err := b.Scan(ctx, bridge.ScanOptions{Timeout: duration, Name: name})
	progress.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if scanFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	}
	return displayScanTable(results)
}

func displayScanTable(results []bridge.DiscoveredDevice) error {
	if len(results) == 0 {
		fmt.Println("No controllers discovered")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 48))

	nameColor := color.New(color.FgCyan)
	for _, d := range results {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", nameColor.Sprint(name), d.Address, d.RSSI)
	}
	return w.Flush()
}
