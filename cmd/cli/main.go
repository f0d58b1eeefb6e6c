package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jaywantadh/peerlink/config"
	"github.com/jaywantadh/peerlink/internal/encryptor"
	"github.com/jaywantadh/peerlink/internal/metadata"
	"github.com/jaywantadh/peerlink/internal/storage"
	"github.com/jaywantadh/peerlink/internal/transfer"
	"github.com/jaywantadh/peerlink/pkg/env"
	"github.com/jaywantadh/peerlink/pkg/httpserver"
	"github.com/jaywantadh/peerlink/pkg/logging"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
)

func main() {
	env.LoadEnv()
	logging.InitLogger(false)

	serverFlag := &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "PeerLink gateway URL",
		Value:   env.GetEnv("PEERLINK_SERVER", "http://localhost:8080"),
	}

	app := &cli.App{
		Name:  "peerlink",
		Usage: "Share a file once through a numeric code",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the PeerLink gateway",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: ".", Usage: "directory holding config.yaml"},
					&cli.BoolFlag{Name: "debug", Usage: "verbose text logging"},
				},
				Action: serve,
			},
			{
				Name:      "upload",
				Aliases:   []string{"u"},
				Usage:     "Offer a file and print its share code",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					serverFlag,
					&cli.BoolFlag{Name: "no-qr", Usage: "do not print a QR code"},
				},
				Action: upload,
			},
			{
				Name:      "download",
				Aliases:   []string{"d"},
				Usage:     "Fetch a file by its share code",
				ArgsUsage: "<code>",
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: ".", Usage: "destination directory"},
				},
				Action: download,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logging.Log.Fatal(err)
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	log := logging.InitLogger(cfg.Debug || c.Bool("debug"))

	store, err := storage.NewLocalStorage(cfg.StoragePath, cfg.CompressAtRest)
	if err != nil {
		return err
	}
	if cfg.EncryptAtRest {
		enc, err := encryptor.NewEncryptor()
		if err != nil {
			return err
		}
		store.WithEncryption(enc)
	}
	journal, err := metadata.OpenOfferStore(cfg.MetadataPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	gateway := httpserver.New(cfg, store, journal, log)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- gateway.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("🛑 Shutting down PeerLink gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func upload(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: peerlink upload <file>", 2)
	}

	client := transfer.NewClient(c.String("server"), 0)
	code, err := client.Upload(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	url := client.DownloadURL(code)
	fmt.Printf("✅ Share code: %d\n", code)
	fmt.Printf("Download once from: %s\n", url)

	if !c.Bool("no-qr") {
		q, err := qrcode.New(url, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to render QR code: %w", err)
		}
		fmt.Println(q.ToSmallString(false))
	}
	return nil
}

func download(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: peerlink download <code>", 2)
	}
	code, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.Exit("share code must be a number", 2)
	}

	client := transfer.NewClient(c.String("server"), 0)
	path, err := client.Download(c.Context, code, c.String("out"))
	if err != nil {
		return err
	}
	fmt.Printf("📥 Saved %s\n", path)
	return nil
}
