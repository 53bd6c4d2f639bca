package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/taji-labs/signing-service/pkg/client"
	"github.com/taji-labs/signing-service/pkg/logger"
)

const envPrivateKey = "SIGNER_PRIVATE_KEY"

func main() {
	app := &cli.App{
		Name:  "signing-client",
		Usage: "Client for the transaction signing service",
		Description: `Sends transactions to a signing service and prints the signed envelope.

This client can:
- Sign a transaction described in a JSON file
- Verify that the returned envelope recovers to the expected sender
- Check service health and list signing receipts`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Signing service base URL",
				Value:   "http://localhost:3000",
				EnvVars: []string{"SIGNER_URL"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "Bearer token for authenticated services",
				EnvVars: []string{"SIGNER_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "sign",
				Usage: "Sign a transaction read from a JSON file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "tx",
						Usage:    "Path to the transaction JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "private-key",
						Usage:   "Hex private key to sign with",
						EnvVars: []string{envPrivateKey},
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Check the envelope recovers to the key's address",
						Value: true,
					},
				},
				Action: signCommand,
			},
			{
				Name:   "health",
				Usage:  "Check service health",
				Action: healthCommand,
			},
			{
				Name:  "receipts",
				Usage: "List signing receipts for a sender",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "Sender address",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of receipts",
						Value: 20,
					},
				},
				Action: receiptsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// createClient creates a signing service client from CLI context
func createClient(c *cli.Context, verify bool) (*client.Client, error) {
	zapLogger, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose"), Format: logger.FormatConsole})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return client.NewClient(&client.ClientConfig{
		BaseURL:      c.String("url"),
		Logger:       zapLogger,
		BearerToken:  c.String("token"),
		VerifySender: verify,
	})
}

func signCommand(c *cli.Context) error {
	privateKey := c.String("private-key")
	if privateKey == "" {
		return fmt.Errorf("a private key is required, pass --private-key or set %s", envPrivateKey)
	}

	raw, err := os.ReadFile(c.String("tx"))
	if err != nil {
		return fmt.Errorf("failed to read transaction file: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("transaction file %s is not valid JSON", c.String("tx"))
	}

	signingClient, err := createClient(c, c.Bool("verify"))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	result, err := signingClient.SignTransaction(c.Context, json.RawMessage(raw), privateKey)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	fmt.Printf("From:        %s\n", result.From.Hex())
	fmt.Printf("Hash:        %s\n", result.TransactionHash.Hex())
	fmt.Printf("Envelope:    %s\n", result.Envelope)
	return nil
}

func healthCommand(c *cli.Context) error {
	signingClient, err := createClient(c, false)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	health, err := signingClient.Health(c.Context)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("%s is %s (%s)\n", health.Service, health.Status, health.Timestamp)
	return nil
}

func receiptsCommand(c *cli.Context) error {
	from := c.String("from")
	if !common.IsHexAddress(from) {
		return fmt.Errorf("invalid sender address: %s", from)
	}

	signingClient, err := createClient(c, false)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	receipts, err := signingClient.ListReceipts(c.Context, common.HexToAddress(from), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list receipts: %w", err)
	}

	if len(receipts) == 0 {
		fmt.Println("No receipts found")
		return nil
	}
	for _, r := range receipts {
		fmt.Printf("%s  %s  nonce=%d  chain=%s  to=%s\n",
			r.SignedAt.Format(time.RFC3339), r.TxHash, r.Nonce, r.ChainID, r.To)
	}
	return nil
}
