package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/auth"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/config"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/core"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/ingestion"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/keeper"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/lease"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/observability"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/oracle"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/payout"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/persistence"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/projection"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/query"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/server"
	"github.com/gcdeng/eth-price-prediction-dapp/internal/state"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "predict.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithLevel("predictiond", observability.ParseLogLevel(cfg.LogLevel))
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("predictiond failed")
	}
	logger.Info().Msg("predictiond shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	// --- Context with graceful shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Single-writer lease ---
	if cfg.Lease.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Lease.RedisAddr,
			Password: cfg.Lease.Password,
			DB:       cfg.Lease.RedisDB,
		})
		defer rdb.Close()

		l := lease.New(rdb, cfg.Lease.Key, cfg.Lease.TTL, logger.With().Str("component", "lease").Logger())
		logger.Info().Str("key", cfg.Lease.Key).Msg("waiting for writer lease")
		if err := l.Acquire(ctx, 0); err != nil {
			return fmt.Errorf("acquire lease: %w", err)
		}
		defer func() {
			relCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			if err := l.Release(relCtx); err != nil {
				logger.Warn().Err(err).Msg("release lease")
			}
		}()
		healthChecker.AddCheck("lease", l.Check)
		go l.Keep(ctx, func(err error) { cancel(fmt.Errorf("writer lease lost: %w", err)) })
	}

	// --- Storage ---
	dialect, err := persistence.ParseDialect(cfg.Storage.Driver)
	if err != nil {
		return err
	}
	db, err := persistence.Open(ctx, dialect, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	healthChecker.AddCheck("database", db.PingContext)

	migrator, err := persistence.NewMigrator(db, dialect, logger.With().Str("component", "migrator").Logger())
	if err != nil {
		return err
	}
	if _, err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	store := persistence.NewStore(db, dialect, metrics)

	st, err := store.Load(ctx, cfg.Core.IdempotencyCapacity)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	// --- Oracle ---
	var (
		feed      oracle.Feed
		ethClient *ethclient.Client
	)
	if cfg.Oracle.RPCURL != "" {
		ethClient, err = ethclient.DialContext(ctx, cfg.Oracle.RPCURL)
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.Oracle.RPCURL, err)
		}
		defer ethClient.Close()
	}
	if cfg.Oracle.Mock {
		var watermark uint64
		if st.Watermark != nil {
			watermark = st.Watermark.Uint64()
		}
		mock := oracle.NewMockFeed()
		mock.Set(watermark+1, mockStartPrice, uint64(time.Now().Unix()))
		go driveMockFeed(ctx, mock, cfg.Oracle.MockInterval, logger)
		feed = mock
		logger.Warn().Msg("using mock oracle feed")
	} else {
		chainlink := oracle.NewChainlinkFeed(ethClient, common.HexToAddress(cfg.Oracle.AggregatorAddress), cfg.Oracle.RatePerSecond,
			logger.With().Str("component", "chainlink").Logger())
		dec, err := chainlink.Decimals(ctx)
		if err != nil {
			return fmt.Errorf("aggregator decimals: %w", err)
		}
		if dec != cfg.Display.PriceDecimals {
			logger.Warn().
				Uint8("feed_decimals", dec).
				Uint8("display_decimals", cfg.Display.PriceDecimals).
				Msg("price display decimals differ from the feed")
		}
		feed = chainlink
	}
	gateway := oracle.NewGateway(feed, cfg.Oracle.Timeout, metrics)

	// --- NATS ---
	var js jetstream.JetStream
	if cfg.NATS.Enabled {
		nc, stream, err := ingestion.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer nc.Drain()
		js = stream
		if err := ingestion.EnsureStreams(ctx, js); err != nil {
			return err
		}
		if err := payout.EnsureStream(ctx, js); err != nil {
			return err
		}
		healthChecker.AddCheck("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return fmt.Errorf("nats status %s", nc.Status())
			}
			return nil
		})
		logger.Info().Str("url", cfg.NATS.URL).Msg("NATS connected")
	}

	var transfer core.Transferer
	switch cfg.Payout.Mode {
	case "nats":
		transfer = payout.NewJetStreamTransferer(js, cfg.Payout.Timeout, logger.With().Str("component", "payout").Logger())
	default:
		transfer = payout.NewMemoryTransferer()
		logger.Warn().Msg("payouts are recorded in memory only")
	}

	var filter core.CallerFilter
	if cfg.Server.FilterContracts {
		filter = auth.NewContractFilter(ethClient, 0)
	}

	// --- Deterministic core ---
	view := projection.NewView()
	engine := core.NewEngine(
		core.Config{
			Admin:               cfg.Admin(),
			Policy:              state.RoundPolicy{MinLockSeconds: cfg.Round.MinLockSeconds},
			IdempotencyCapacity: cfg.Core.IdempotencyCapacity,
		},
		core.Deps{
			Oracle:      gateway,
			Transfer:    transfer,
			Clock:       core.SystemClock{},
			Store:       store,
			Idempotency: store,
			Projector:   view,
			Filter:      filter,
			Metrics:     metrics,
			Logger:      logger.With().Str("component", "core").Logger(),
		},
	)
	if err := engine.Restore(st); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	view.Reset(engine.Snapshot())

	streamChan := make(chan core.CoreOutput, cfg.Core.SinkBuffer)
	engine.Subscribe(streamChan)
	var publishChan chan core.CoreOutput
	if js != nil {
		publishChan = make(chan core.CoreOutput, cfg.Core.SinkBuffer)
		engine.Subscribe(publishChan)
	}

	processor := core.NewProcessor(engine, cfg.Core.QueueSize, logger.With().Str("component", "processor").Logger(), metrics)

	// --- Surfaces ---
	jwt := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}
	qs := query.NewQueryService(view, store, nil, query.Options{
		PriceDecimals:  cfg.Display.PriceDecimals,
		AmountDecimals: cfg.Display.AmountDecimals,
	})
	hub := server.NewHub(logger.With().Str("component", "stream").Logger(), metrics)
	grpcServer, err := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Service:       server.NewPredictionService(processor, qs),
		JWT:           jwt,
		Hub:           hub,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        logger.With().Str("component", "server").Logger(),
	})
	if err != nil {
		return err
	}

	// --- Start goroutines ---
	errChan := make(chan error, 8)
	goRun := func(name string, fn func(context.Context) error) {
		go func() {
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	goRun("processor", processor.Run)
	goRun("stream hub", func(ctx context.Context) error { return hub.Run(ctx, streamChan) })
	goRun("grpc", grpcServer.StartGRPC)
	goRun("http", grpcServer.StartHTTPGateway)

	var subscriber *ingestion.NATSSubscriber
	if js != nil {
		publisher := ingestion.NewOutboundPublisher(js, publishChan, logger.With().Str("component", "publisher").Logger())
		goRun("publisher", publisher.Run)

		subscriber = ingestion.NewNATSSubscriber(js, processor, jwt, logger.With().Str("component", "ingest").Logger(), metrics)
		if err := subscriber.Subscribe(ctx); err != nil {
			return err
		}
	}

	var k *keeper.Keeper
	if cfg.Keeper.Enabled {
		k = keeper.New(keeper.Config{
			Schedule:    cfg.Keeper.Schedule,
			LiveSeconds: cfg.Keeper.LiveSeconds,
			LockSeconds: cfg.Keeper.LockSeconds,
		}, cfg.Admin(), processor, view, nil, logger.With().Str("component", "keeper").Logger())
		if err := k.Start(ctx); err != nil {
			return err
		}
	}

	grpcServer.SetServing(true)
	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", engine.GetSequence()).
		Uint64("epoch", view.CurrentEpoch()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Msg("predictiond ready")

	// --- Wait for shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			runErr = cause
		}
	case runErr = <-errChan:
	}

	logger.Info().Msg("shutting down")
	healthChecker.SetReady(false)
	grpcServer.SetServing(false)
	if k != nil {
		k.Stop()
	}
	if subscriber != nil {
		subscriber.Stop()
	}
	cancel(nil)
	return runErr
}

const mockStartPrice = int64(2000_00000000)

// driveMockFeed publishes a random-walk ETH/USD price with 8 decimals.
func driveMockFeed(ctx context.Context, feed *oracle.MockFeed, interval time.Duration, logger zerolog.Logger) {
	price := mockStartPrice

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price += rand.Int64N(2_00000000) - 1_00000000
			if price < 1_00000000 {
				price = 1_00000000
			}
			id := feed.Advance(price)
			logger.Debug().Uint64("round_id", id).Int64("price", price).Msg("mock feed advanced")
		}
	}
}
