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
	"github.com/virtengine/vericare/internal/noncestore"
	"github.com/virtengine/vericare/internal/pipeline"
	"github.com/virtengine/vericare/internal/signing"
	"github.com/virtengine/vericare/internal/transport"
	"github.com/virtengine/vericare/internal/verifier"
)

func main() {
	root := &cobra.Command{
		Use:   "verifier",
		Short: "Runs the confidential data-access gateway's Verifier",
		RunE:  run,
	}
	root.Flags().String("listen_addr", ":8443", "address to listen on")
	root.Flags().String("tls_cert_file", "", "TLS certificate file")
	root.Flags().String("tls_key_file", "", "TLS key file")
	root.Flags().String("tls_client_ca_file", "", "CA file trusted for client certificates")
	root.Flags().String("signing_seed_hex", "", "hex-encoded Ed25519 seed")
	root.Flags().String("dap_public_key_hex", "", "hex-encoded DAP Ed25519 public key")
	root.Flags().String("pi_public_key_hex", "", "hex-encoded PI Ed25519 public key")
	root.Flags().String("nonce_backend", "memory", "pending-nonce backend: memory or redis")
	root.Flags().String("redis_addr", "localhost:6379", "Redis address when nonce_backend=redis")
	root.Flags().String("metrics_addr", ":9090", "address to expose Prometheus metrics on")

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
	var cfg config.VerifierConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "verifier").Logger()

	seed, err := hex.DecodeString(cfg.SigningSeedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return fmt.Errorf("signing_seed_hex must decode to %d bytes", ed25519.SeedSize)
	}
	signer, err := signing.New("verifier", ed25519.NewKeyFromSeed(seed), log)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}

	dapPub, err := hex.DecodeString(cfg.DAPPublicKeyHex)
	if err != nil {
		return fmt.Errorf("dap_public_key_hex: %w", err)
	}
	piPub, err := hex.DecodeString(cfg.PIPublicKeyHex)
	if err != nil {
		return fmt.Errorf("pi_public_key_hex: %w", err)
	}
	peerKeys := verifier.StaticPeerKeys{
		"dap": ed25519.PublicKey(dapPub),
		"pi":  ed25519.PublicKey(piPub),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	nonces, err := noncestore.NewFromConfig(cfg.NonceBackend, cfg.RedisAddr, cfg.NonceExpiration)
	if err != nil {
		return fmt.Errorf("build nonce store: %w", err)
	}
	pipelines := pipeline.NewRegistry()
	pipeline.Seed(pipelines)
	images := buildid.NewRegistry()
	images.Set("dap", buildid.DAPImage)
	images.Set("pi", buildid.PIImage)

	vf := verifier.New(signer, nonces, pipelines, images, peerKeys, hwattest.NoopVerifier{}, log)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr, reg); err != nil {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	ln, err := transport.Listen(cfg.ListenAddr, transport.TLSConfig{
		CertFile:     cfg.TLSCertFile,
		KeyFile:      cfg.TLSKeyFile,
		ClientCAFile: cfg.TLSClientCAFile,
	})
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	ln = transport.NewRateLimitedListener(ln, 50, 100)
	log.Info().Str("addr", cfg.ListenAddr).Msg("verifier listening")

	return vf.Serve(ctx, ln)
}
