package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/batch"
	"github.com/compose-network/xdomain-relayer/internal/batch/postgres"
	"github.com/compose-network/xdomain-relayer/internal/chain"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/compose-network/xdomain-relayer/internal/proof"
	"github.com/compose-network/xdomain-relayer/internal/ratelimit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
)

type (
	// app holds the clients and components every command builds from config.
	app struct {
		cfg configs.Config
		l1  *chain.Client
		l2  *chain.Client

		closers []func() error
	}
)

func newApp(ctx context.Context, cfg configs.Config) (*app, error) {
	l1, err := chain.Dial(ctx, configs.LayerNameL1, cfg.L1.Layer)
	if err != nil {
		return nil, err
	}
	l2, err := chain.Dial(ctx, configs.LayerNameL2, cfg.L2.Layer)
	if err != nil {
		l1.Close()
		return nil, err
	}

	a := &app{cfg: cfg, l1: l1, l2: l2}
	a.onClose(func() error { l1.Close(); return nil })
	a.onClose(func() error { l2.Close(); return nil })
	return a, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) l1Layer() chain.Layer {
	return chain.Layer{Client: a.l1, Messenger: common.HexToAddress(a.cfg.L1.MessengerAddress)}
}

func (a *app) l2Layer() chain.Layer {
	return chain.Layer{Client: a.l2, Messenger: common.HexToAddress(a.cfg.L2.MessengerAddress)}
}

func (a *app) watcher(direction messenger.Direction) *messenger.Watcher {
	source, destination := a.l1Layer(), a.l2Layer()
	if direction == messenger.DirectionL2ToL1 {
		source, destination = destination, source
	}

	return messenger.NewWatcher(source, destination, messenger.WatcherConfig{
		Direction:      direction,
		PollInterval:   a.cfg.Watcher.PollInterval,
		LookbackBlocks: a.cfg.Watcher.RelayLookbackBlocks,
	})
}

func (a *app) oracle() (*proof.StateBatchOracle, error) {
	if a.cfg.L1.StateCommitmentChainAddress == "" {
		return nil, errors.New("l1.state-commitment-chain-address is required for L2 to L1 messages")
	}

	return proof.NewStateBatchOracle(a.l1, proof.StateBatchOracleConfig{
		StateCommitmentChain: common.HexToAddress(a.cfg.L1.StateCommitmentChainAddress),
		StartBlock:           a.cfg.L1.StartBlock,
		GetLogsInterval:      a.cfg.L1.GetLogsInterval,
		FraudProofWindow:     a.cfg.Proof.FraudProofWindow,
		L2BlockOffset:        a.cfg.L2.BlockOffset,
	})
}

func (a *app) builder(oracle *proof.StateBatchOracle) (*proof.Builder, error) {
	if a.cfg.L2.MessagePasserAddress == "" {
		return nil, errors.New("l2.message-passer-address is required to build message proofs")
	}

	return proof.NewBuilder(a.l2, oracle, proof.BuilderConfig{
		L2Messenger:   common.HexToAddress(a.cfg.L2.MessengerAddress),
		MessagePasser: common.HexToAddress(a.cfg.L2.MessagePasserAddress),
	}), nil
}

// messageStatus assembles status resolution for direction. L2 to L1 messages also
// consult the state batch oracle.
func (a *app) messageStatus(direction messenger.Direction) (*messenger.Messenger, error) {
	var stateRoots messenger.StateRootChecker
	if direction == messenger.DirectionL2ToL1 {
		oracle, err := a.oracle()
		if err != nil {
			return nil, err
		}
		stateRoots = oracle
	}

	return messenger.NewMessenger(a.watcher(direction), stateRoots, a.cfg.Watcher.SourceConfirmations), nil
}

func (a *app) limiter() *ratelimit.AccountRateLimiter {
	cfg := ratelimit.Config{
		Period:        a.cfg.RateLimit.Period,
		Buckets:       a.cfg.RateLimit.Buckets,
		IPLimit:       a.cfg.RateLimit.IPLimit,
		AccountLimit:  a.cfg.RateLimit.AccountLimit,
		PurgeInterval: a.cfg.RateLimit.PurgeInterval,
	}
	if a.cfg.RateLimit.RedisAddr == "" {
		return ratelimit.NewAccountRateLimiter(cfg)
	}

	client := redis.NewClient(&redis.Options{Addr: a.cfg.RateLimit.RedisAddr})
	a.onClose(client.Close)

	return ratelimit.NewAccountRateLimiterWithCounters(
		cfg,
		ratelimit.NewRedisCounterSet(client, appName+":ip", cfg.Period, cfg.Buckets),
		ratelimit.NewRedisCounterSet(client, appName+":account", cfg.Period, cfg.Buckets),
	)
}

func (a *app) datastore(ctx context.Context) (batch.Datastore, error) {
	switch a.cfg.Datastore.Driver {
	case configs.DatastoreDriverPostgres:
		store, err := postgres.Open(ctx, a.cfg.Datastore.DSN)
		if err != nil {
			return nil, err
		}
		a.onClose(store.Close)
		return store, nil
	default:
		return batch.NewMemoryStore(), nil
	}
}

func (a *app) tracker(ctx context.Context) (*batch.Tracker, error) {
	store, err := a.datastore(ctx)
	if err != nil {
		return nil, err
	}

	return batch.NewTracker(store, a.l1, batch.TrackerConfig{
		ConfirmationsUntilFinal: a.cfg.Tracker.ConfirmationsUntilFinal,
		WaitTimeout:             a.cfg.Tracker.WaitTimeout,
	}), nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, errors.New("relayer.private-key is required")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse relayer private key: %w", err)
	}
	return key, nil
}

func parseDirection(value string) (messenger.Direction, error) {
	switch strings.ToLower(strings.ReplaceAll(value, "_", "-")) {
	case "l1-to-l2":
		return messenger.DirectionL1ToL2, nil
	case "l2-to-l1":
		return messenger.DirectionL2ToL1, nil
	default:
		return "", fmt.Errorf("unknown direction %q, expected l1-to-l2 or l2-to-l1", value)
	}
}
