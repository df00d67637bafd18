package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/batch"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/compose-network/xdomain-relayer/internal/metrics"
	"github.com/compose-network/xdomain-relayer/internal/ratelimit"
	"github.com/compose-network/xdomain-relayer/internal/relayer"
	"github.com/compose-network/xdomain-relayer/internal/router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relay cycle, the batch tracker, the JSON-RPC router and the metrics server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configs.Values
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
}

func run(ctx context.Context, cfg configs.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.With("err", err).Warn("failed to close resources")
		}
	}()

	limiter := a.limiter()
	limiter.Start(ctx)
	defer limiter.Shutdown()

	server, err := newRPCServer(ctx, a, limiter)
	if err != nil {
		return err
	}

	scheduler := batch.NewScheduler(ctx)
	defer scheduler.Stop()

	tracker, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	if err := scheduler.Add("batch_finalizer", cfg.Tracker.Interval, tracker.FinalizeTask, batch.IsFatal); err != nil {
		return err
	}

	if cfg.Relayer.PrivateKey == "" {
		slog.Warn("relayer.private-key is not set, relay cycle disabled")
	} else {
		service, err := newRelayService(a, limiter)
		if err != nil {
			return err
		}
		if err := scheduler.Add("relayer", cfg.Relayer.PollInterval, service.RunOnce, messenger.IsFatal); err != nil {
			return err
		}
	}

	scheduler.Start()
	slog.Info("relayer started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return serveMetrics(gctx, cfg.Metrics.ListenAddr)
	})
	g.Go(func() error {
		select {
		case err := <-scheduler.Err():
			return err
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("relayer stopped")
	return nil
}

func newRPCServer(ctx context.Context, a *app, limiter *ratelimit.AccountRateLimiter) (*router.Server, error) {
	cfg := a.cfg.Router

	txBackend, err := rpc.DialContext(ctx, cfg.TxBackendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial tx backend: %w", err)
	}
	a.onClose(func() error { txBackend.Close(); return nil })

	readBackend, err := rpc.DialContext(ctx, cfg.ReadBackendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial read backend: %w", err)
	}
	a.onClose(func() error { readBackend.Close(); return nil })

	server := router.NewServer(cfg.ListenAddr, router.NewRouter(txBackend, readBackend, limiter, routerConfig(cfg)))
	return server.WithTrustForwardedFor(cfg.TrustForwardedFor), nil
}

func routerConfig(cfg configs.Router) router.Config {
	out := router.Config{AllowedChainIDs: cfg.AllowedChainIDs}
	for _, addr := range cfg.DestinationAllowlist {
		out.DestinationAllowlist = append(out.DestinationAllowlist, common.HexToAddress(addr))
	}
	if cfg.DeployAddress != "" {
		deployer := common.HexToAddress(cfg.DeployAddress)
		out.DeployAddress = &deployer
	}
	return out
}

// newRelayService submits through a router bound to L1 so the relayer's own
// account is counted by the shared limiter.
func newRelayService(a *app, limiter *ratelimit.AccountRateLimiter) (*relayer.Service, error) {
	key, err := parsePrivateKey(a.cfg.Relayer.PrivateKey)
	if err != nil {
		return nil, err
	}

	oracle, err := a.oracle()
	if err != nil {
		return nil, err
	}
	builder, err := a.builder(oracle)
	if err != nil {
		return nil, err
	}

	var chainIDs []int64
	if a.cfg.L1.ChainID != 0 {
		chainIDs = []int64{a.cfg.L1.ChainID}
	}
	submitter := router.NewRouter(a.l1.RPC(), a.l1.RPC(), limiter, router.Config{AllowedChainIDs: chainIDs})

	return relayer.NewService(a.watcher(messenger.DirectionL2ToL1), oracle, builder, submitter, a.l1, relayer.Config{
		PrivateKey:             key,
		GasLimit:               a.cfg.Relayer.GasLimit,
		FromL2TransactionIndex: a.cfg.Relayer.FromL2TransactionIndex,
		RelayTimeout:           a.cfg.Relayer.RelayTimeout,
	})
}

func serveMetrics(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.With("addr", addr).Info("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
