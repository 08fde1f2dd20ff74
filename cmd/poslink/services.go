package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// servicesCmd represents the services command
var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "Show the controller's capability tree",
	Long: `Connect to a controller and print its discovered services and
characteristics with their property bitmasks, in discovery order.`,
	RunE: runServices,
}

var (
	servicesDevice string
	servicesName   string
)

func init() {
	servicesCmd.Flags().StringVarP(&servicesDevice, "device", "a", "", "Controller address")
	servicesCmd.Flags().StringVarP(&servicesName, "name", "n", "", "Controller advertised name")
	servicesCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runServices(cmd *cobra.Command, args []string) error {
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

	progress := NewProgressPrinter("Connecting", "connecting")
	progress.Start()
	result, err := connectTarget(ctx, session, servicesDevice, servicesName, cfg)
	progress.Stop()
	if err != nil {
		return err
	}

	services, err := session.Services()
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s (%d services)\n\n", color.CyanString(result.Address), result.Services)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, svc := range services {
		label := svc.UUID()
		if name := svc.KnownName(); name != "" {
			label = fmt.Sprintf("%s (%s)", label, name)
		}
		fmt.Fprintf(w, "service %s\n", color.New(color.Bold).Sprint(label))

		for _, char := range svc.Characteristics() {
			charLabel := char.UUID()
			if name := char.KnownName(); name != "" {
				charLabel = fmt.Sprintf("%s (%s)", charLabel, name)
			}
			fmt.Fprintf(w, "  %s\t[%s]\n", charLabel, char.Properties().String())
		}
		fmt.Fprintln(w, strings.Repeat("-", 40))
	}
	return w.Flush()
}
