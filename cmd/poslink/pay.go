package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/attunepos/poslink/internal/payment"
	"github.com/attunepos/poslink/pkg/config"
)

// payCmd groups the card terminal operations
var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Drive the attached card terminal",
	Long: `Card terminal operations: run a sale, void a transaction, query a
transaction's status, and list merchant profiles. The terminal endpoint and
merchant credentials come from the payment section of the config file.`,
}

var (
	payAmount   int64
	payOrderID  string
	payTxID     string
	payCardType string
)

var paySaleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Run a card sale",
	RunE:  runPaySale,
}

var payVoidCmd = &cobra.Command{
	Use:   "void",
	Short: "Void a transaction",
	RunE:  runPayVoid,
}

var payStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a transaction's status",
	RunE:  runPayStatus,
}

var payProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List merchant profiles",
	RunE:  runPayProfiles,
}

var payLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the transaction log path",
	RunE:  runPayLog,
}

var payLogClear bool

func init() {
	paySaleCmd.Flags().Int64Var(&payAmount, "amount", 0, "Amount in minor currency units")
	paySaleCmd.Flags().StringVar(&payOrderID, "order", "", "Order identifier")

	payVoidCmd.Flags().StringVar(&payTxID, "tx", "", "Transaction identifier")
	payVoidCmd.Flags().StringVar(&payCardType, "card-type", "", "Card type of the original transaction")

	payStatusCmd.Flags().StringVar(&payTxID, "tx", "", "Transaction identifier")
	payStatusCmd.Flags().StringVar(&payCardType, "card-type", "", "Card type of the original transaction")

	payLogCmd.Flags().BoolVar(&payLogClear, "clear", false, "Truncate the transaction log")

	payCmd.AddCommand(paySaleCmd)
	payCmd.AddCommand(payVoidCmd)
	payCmd.AddCommand(payStatusCmd)
	payCmd.AddCommand(payProfilesCmd)
	payCmd.AddCommand(payLogCmd)
	payCmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose logging")
}

// newGateway builds the terminal gateway from the config's payment section.
func newGateway(cmd *cobra.Command) (*payment.Gateway, *logrus.Logger, error) {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Payment.Endpoint == "" {
		return nil, nil, fmt.Errorf("no terminal endpoint: set payment.endpoint in the config")
	}

	cmd.SilenceUsage = true

	creds := paymentCredentials(&cfg.Payment)
	client := payment.NewHTTPClient(cfg.Payment.Endpoint, creds, logger)

	var txlog *payment.TxLog
	if cfg.Payment.LogFile != "" {
		txlog, err = payment.NewTxLog(cfg.Payment.LogFile)
		if err != nil {
			return nil, nil, err
		}
	}
	return payment.NewGateway(client, creds, txlog, logger), logger, nil
}

func paymentCredentials(p *config.PaymentConfig) payment.Credentials {
	return payment.Credentials{
		ClientID:   p.ClientID,
		ClientName: p.ClientName,
		APIKey:     p.APIKey,
	}
}

func runPaySale(cmd *cobra.Command, args []string) error {
	gateway, _, err := newGateway(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	progress := NewProgressPrinter("Waiting for the terminal", "card")
	progress.Start()
	result, err := gateway.Pay(ctx, payment.SaleRequest{Amount: payAmount, OrderID: payOrderID})
	progress.Stop()
	if err != nil {
		return err
	}

	fmt.Printf("%s tx=%s card=%s approval=%s\n",
		color.GreenString("APPROVED"), result.TxID, result.CardType, result.ApprovalCode)
	return nil
}

func runPayVoid(cmd *cobra.Command, args []string) error {
	gateway, _, err := newGateway(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := gateway.Void(ctx, payment.VoidRequest{TxID: payTxID, CardType: payCardType})
	if err != nil {
		return err
	}

	fmt.Printf("%s tx=%s\n", color.GreenString("VOIDED"), result.TxID)
	return nil
}

func runPayStatus(cmd *cobra.Command, args []string) error {
	gateway, _, err := newGateway(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	status, err := gateway.Status(ctx, payment.StatusRequest{TxID: payTxID, CardType: payCardType})
	if err != nil {
		return err
	}

	fmt.Printf("state=%s status=%d %s\n", status.State, status.Status, status.Message)
	return nil
}

func runPayProfiles(cmd *cobra.Command, args []string) error {
	gateway, _, err := newGateway(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	profiles, err := gateway.Profiles(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles configured")
		return nil
	}
	for _, p := range profiles {
		fmt.Printf("%s\t%s\n", p.ID, p.Name)
	}
	return nil
}

func runPayLog(cmd *cobra.Command, args []string) error {
	gateway, _, err := newGateway(cmd)
	if err != nil {
		return err
	}

	path := gateway.LogPath()
	if path == "" {
		fmt.Fprintln(os.Stderr, "Transaction logging is disabled (set payment.log_file in the config)")
		return nil
	}
	if payLogClear {
		if err := gateway.ClearLog(); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", path)
		return nil
	}
	fmt.Println(path)
	return nil
}
