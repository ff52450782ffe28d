package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ShareVault/internal/auth"
	"ShareVault/internal/config"
	"ShareVault/internal/core"
	"ShareVault/internal/ingestion"
	"ShareVault/internal/ledger"
	"ShareVault/internal/observability"
	"ShareVault/internal/token"
	"ShareVault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	logger := observability.NewLogger("main")
	logger.Info().Msg("ShareVault starting")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- State wiring ---
	registryAddr, err := parseAddr(cfg.RegistryInstance)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse registry instance address")
	}
	vaultAddr, err := parseAddr(cfg.VaultAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse vault address")
	}
	clientAddr, err := parseAddr(cfg.ClientAddress)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse client address")
	}

	tokens := token.NewSet()
	for _, spec := range cfg.Tokens {
		addr, symbol, err := parseTokenSpec(spec)
		if err != nil {
			logger.Fatal().Err(err).Str("token", spec).Msg("parse token spec")
		}
		tokens.Register(addr, token.NewLedger(symbol))
		logger.Info().Str("address", addr.Hex()).Str("symbol", symbol).Msg("token registered")
	}

	registry := auth.NewRegistry(registryAddr)
	v := vault.New(vaultAddr, tokens, registry)
	client := ledger.NewClient(clientAddr, v, registry)
	registry.WhitelistAgent(clientAddr, true)

	// --- Core engine ---
	outputChan := make(chan core.Output, cfg.PublishChanSize)
	engine := core.NewEngine(0, cfg.IdempotencyLRUCapacity, tokens, registry, v, client, outputChan, metrics)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Str("url", cfg.NATSURL).Msg("NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure NATS streams")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	subjects := ingestion.DefaultSubjects()
	rawCommandChan := make(chan ingestion.RawCommand, cfg.CommandChanSize)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawCommandChan)
	if err := natsSubscriber.Subscribe(ctx, subjects); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	publishChan := make(chan ingestion.PublishableEvent, cfg.PublishChanSize)
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)

	errChan := make(chan error, 4)

	// 1. Outbound publisher
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// 2. Core output bridge
	go func() {
		bridgeOutputs(ctx, outputChan, publishChan, metrics)
	}()

	// 3. NATS → Core ingestion loop
	ingestLogger := observability.NewLogger("ingestion")
	go func() {
		runIngestionLoop(ctx, rawCommandChan, subjects, engine, metrics, ingestLogger)
	}()

	// 4. Channel utilization sampler
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("raw_commands", len(rawCommandChan), cap(rawCommandChan))
				metrics.SetChannelMetrics("core_outputs", len(outputChan), cap(outputChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
			}
		}
	}()

	// 5. Health + metrics servers
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", healthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
		srv := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer c()
			srv.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.HealthAddr).Msg("health server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("health server: %w", err)
		}
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Str("vault", vaultAddr.Hex()).
		Str("client", clientAddr.Hex()).
		Msg("ShareVault ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	healthChecker.SetReady(false)
	cancel()
	natsSubscriber.Stop()
	close(publishChan)

	logger.Info().Int64("sequence", engine.Sequence()).Msg("ShareVault shutdown complete")
}

// runIngestionLoop drains raw commands from NATS, parses them, and
// feeds the single-threaded engine. Parse failures are ACKed so a
// malformed message is not redelivered forever; rejected commands are
// ACKed too because redelivery would hit the idempotency check.
func runIngestionLoop(
	ctx context.Context,
	rawCommandChan <-chan ingestion.RawCommand,
	subjects []ingestion.SubjectConfig,
	engine *core.Engine,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawCommandChan:
			if !ok {
				return
			}

			commandType, known := ingestion.CommandTypeForSubject(raw.Subject, subjects)
			if !known {
				metrics.ParseErrors.WithLabelValues("unknown_subject").Inc()
				logger.Warn().Str("subject", raw.Subject).Msg("command on unknown subject")
				raw.AckFunc()
				continue
			}

			cmd, err := ingestion.ParseRawCommand(raw, commandType)
			if err != nil {
				metrics.ParseErrors.WithLabelValues("malformed").Inc()
				logger.Warn().Err(err).Str("subject", raw.Subject).Msg("malformed command")
				raw.AckFunc()
				continue
			}

			if err := engine.ProcessCommand(cmd); err != nil {
				logger.Warn().Err(err).
					Str("command_type", commandType).
					Str("idempotency_key", cmd.IdempotencyKey()).
					Msg("command rejected")
			} else {
				metrics.IngestToApply.WithLabelValues(commandType).Observe(time.Since(raw.Timestamp).Seconds())
			}
			raw.AckFunc()
		}
	}
}

func bridgeOutputs(
	ctx context.Context,
	outputChan <-chan core.Output,
	publishChan chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case output, ok := <-outputChan:
			if !ok {
				return
			}
			evt := ingestion.PublishableEvent{
				Sequence:       output.Envelope.Sequence,
				CommandType:    output.Envelope.CommandType.String(),
				IdempotencyKey: output.Envelope.IdempotencyKey,
				Payload:        output.Envelope.Payload,
				StateHash:      output.Envelope.StateHash[:],
				PrevHash:       output.Envelope.PrevHash[:],
				Timestamp:      output.Envelope.Timestamp,
			}
			select {
			case publishChan <- evt:
			default:
				metrics.PublishDrops.Inc()
			}
		}
	}
}

func parseAddr(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

func parseTokenSpec(spec string) (common.Address, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return common.Address{}, "", fmt.Errorf("token spec %q must be address:symbol", spec)
	}
	addr, err := parseAddr(parts[0])
	if err != nil {
		return common.Address{}, "", err
	}
	return addr, parts[1], nil
}
