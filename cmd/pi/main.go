package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/virtengine/vericare/internal/buildid"
	"github.com/virtengine/vericare/internal/config"
	"github.com/virtengine/vericare/internal/hwattest"
	"github.com/virtengine/vericare/internal/metrics"
	"github.com/virtengine/vericare/internal/pi"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/store"
	"github.com/virtengine/vericare/internal/transport"
	"github.com/virtengine/vericare/internal/wire"
)

func main() {
	root := &cobra.Command{
		Use:   "pi",
		Short: "Runs the confidential data-access gateway's Personal Intermediary",
		RunE:  run,
	}
	root.Flags().String("listen_addr", ":8445", "address to listen on")
	root.Flags().String("tls_cert_file", "", "TLS certificate file")
	root.Flags().String("tls_key_file", "", "TLS key file")
	root.Flags().String("tls_client_ca_file", "", "CA file trusted for client certificates")
	root.Flags().String("signing_seed_hex", "", "hex-encoded Ed25519 seed")
	root.Flags().String("dap_addr", "localhost:8444", "DAP address")
	root.Flags().String("verifier_addr", "localhost:8443", "Verifier address")
	root.Flags().String("verifier_public_key_hex", "", "hex-encoded Verifier Ed25519 public key")
	root.Flags().String("metrics_addr", ":9092", "address to expose Prometheus metrics on")
	root.Flags().String("hw_platform", "none", "hardware attestation platform to attach to evidence: none, sgx-dcap, sev-snp, or nitro")
	root.Flags().String("hw_quote_hex", "", "hex-encoded raw hardware attestation quote, required when hw_platform is not none")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.New(cmd.Flags())
	if err != nil {
		return err
	}
	var cfg config.PIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "pi").Logger()

	seed, err := hex.DecodeString(cfg.SigningSeedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return fmt.Errorf("signing_seed_hex must decode to %d bytes", ed25519.SeedSize)
	}
	signer, err := signing.New("pi", ed25519.NewKeyFromSeed(seed), log)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}

	verifierPub, err := hex.DecodeString(cfg.VerifierPublicKey)
	if err != nil {
		return fmt.Errorf("verifier_public_key_hex: %w", err)
	}

	hwQuoteRaw, err := hex.DecodeString(cfg.HWQuoteHex)
	if err != nil {
		return fmt.Errorf("hw_quote_hex: %w", err)
	}
	hwQuote := hwattest.Quote{Platform: hwattest.Platform(cfg.HWPlatform), Raw: hwQuoteRaw}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipelines := pipeline.NewRegistry()
	pipeline.Seed(pipelines)

	followUps := map[string]pi.FollowUp{
		"is_bp_above_mean": {Name: "is_bp_above_mean", PipelineName: "is_bp_above_mean", Collection: "populationStats"},
	}

	docs := store.NewMemoryStore()

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	verifierConn, err := transport.Dial(ctx, cfg.VerifierAddr, transport.TLSConfig{
		CertFile:   cfg.TLSCertFile,
		KeyFile:    cfg.TLSKeyFile,
		ServerName: "verifier",
	}, log)
	if err != nil {
		return fmt.Errorf("dial verifier: %w", err)
	}
	verifierClient := pi.NewWireVerifierClient(wire.NewConn(verifierConn), ed25519.PublicKey(verifierPub))

	dapConn, err := transport.Dial(ctx, cfg.DAPAddr, transport.TLSConfig{
		CertFile:   cfg.TLSCertFile,
		KeyFile:    cfg.TLSKeyFile,
		ServerName: "dap",
	}, log)
	if err != nil {
		return fmt.Errorf("dial dap: %w", err)
	}
	dapClient := pi.NewWireDAPClient(wire.NewConn(dapConn))

	p := pi.New(signer, buildid.PIImage, pipelines, followUps, docs, verifierClient, dapClient, hwQuote, log)

	ln, err := transport.Listen(cfg.ListenAddr, transport.TLSConfig{
		CertFile:     cfg.TLSCertFile,
		KeyFile:      cfg.TLSKeyFile,
		ClientCAFile: cfg.TLSClientCAFile,
	})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	ln = transport.NewRateLimitedListener(ln, 50, 100)
	log.Info().Str("addr", cfg.ListenAddr).Msg("pi listening")

	return p.Serve(ctx, ln, pi.FollowUpRoutes{"is_bp_above_mean": "is_bp_above_mean"})
}
