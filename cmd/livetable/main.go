package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Black-And-White-Club/livetable-gateway/app"
	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/urfave/cli/v2"
)

func main() {
	cliApp := &cli.App{
		Name:  "livetable",
		Usage: "live table gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the configuration file"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the round coordinator",
				Action: serve,
			},
			{
				Name:   "keygen",
				Usage:  "print a new signing seed and its public key",
				Action: keygen,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.NewLogger(cfg.Observability)

	var application app.App
	if err := application.Initialize(ctx, cfg, logger); err != nil {
		_ = application.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	runErr := application.Run(ctx)
	logger.Info("Shutting down live table gateway")
	if err := application.Close(); err != nil {
		logger.Error("Error during shutdown", "error", err)
	}
	return runErr
}

func keygen(*cli.Context) error {
	signer, err := livetabletypes.NewSigner(nil)
	if err != nil {
		return err
	}
	fmt.Printf("seed:       %x\n", signer.PrivateKey.Seed())
	fmt.Printf("public key: %s\n", signer.PublicKeyHex)
	return nil
}
