package main

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the controller's data endpoint",
	Long: `Connect to a controller and read the current value of the data
characteristic. The value is printed as UTF-8 when printable, hex otherwise.`,
	RunE: runRead,
}

var (
	readDevice string
	readName   string
	readHex    bool
)

func init() {
	readCmd.Flags().StringVarP(&readDevice, "device", "a", "", "Controller address")
	readCmd.Flags().StringVarP(&readName, "name", "n", "", "Controller advertised name")
	readCmd.Flags().BoolVarP(&readHex, "hex", "x", false, "Always print the value as hex")
	readCmd.Flags().BoolP("verbose", "V", false, "Enable verbose logging")
}

func runRead(cmd *cobra.Command, args []string) error {
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

	if _, err := connectTarget(ctx, session, readDevice, readName, cfg); err != nil {
		return err
	}

	value, err := session.ReadValue(ctx)
	if err != nil {
		return err
	}

	fmt.Println(formatValue(value, readHex))
	return nil
}

// formatValue renders a characteristic value for the operator.
func formatValue(value []byte, forceHex bool) string {
	if len(value) == 0 {
		return "(empty)"
	}
	if !forceHex && utf8.Valid(value) && isPrintable(value) {
		return string(value)
	}
	return hex.EncodeToString(value)
}

func isPrintable(value []byte) bool {
	for _, b := range value {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			return false
		}
	}
	return true
}
