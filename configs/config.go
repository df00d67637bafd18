package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var Values Config

type (
	LayerName       string
	DatastoreDriver string

	Config struct {
		Log       Log       `mapstructure:"log"`
		L1        L1        `mapstructure:"l1"`
		L2        L2        `mapstructure:"l2"`
		Watcher   Watcher   `mapstructure:"watcher"`
		Proof     Proof     `mapstructure:"proof"`
		Tracker   Tracker   `mapstructure:"tracker"`
		RateLimit RateLimit `mapstructure:"ratelimit"`
		Router    Router    `mapstructure:"router"`
		Relayer   Relayer   `mapstructure:"relayer"`
		Datastore Datastore `mapstructure:"datastore"`
		Metrics   Metrics   `mapstructure:"metrics"`
	}

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}

	// Layer is the connection settings shared by both sides of the bridge.
	Layer struct {
		RPCURL            string  `mapstructure:"rpc-url"`
		ChainID           int64   `mapstructure:"chain-id"`
		MessengerAddress  string  `mapstructure:"messenger-address"`
		RequestsPerSecond float64 `mapstructure:"requests-per-second"`
		Burst             int     `mapstructure:"burst"`
	}

	L1 struct {
		Layer `mapstructure:",squash"`

		StateCommitmentChainAddress string `mapstructure:"state-commitment-chain-address"`
		StartBlock                  uint64 `mapstructure:"start-block"`
		GetLogsInterval             uint64 `mapstructure:"get-logs-interval"`
	}

	L2 struct {
		Layer `mapstructure:",squash"`

		BlockOffset          uint64 `mapstructure:"block-offset"`
		MessagePasserAddress string `mapstructure:"message-passer-address"`
	}

	Watcher struct {
		PollInterval        time.Duration `mapstructure:"poll-interval"`
		RelayLookbackBlocks uint64        `mapstructure:"relay-lookback-blocks"`
		SourceConfirmations uint64        `mapstructure:"source-confirmations"`
	}

	Proof struct {
		FraudProofWindow time.Duration `mapstructure:"fraud-proof-window"`
	}

	Tracker struct {
		Interval                string        `mapstructure:"interval"`
		ConfirmationsUntilFinal uint64        `mapstructure:"confirmations-until-final"`
		WaitTimeout             time.Duration `mapstructure:"wait-timeout"`
	}

	RateLimit struct {
		Period        time.Duration `mapstructure:"period"`
		Buckets       int           `mapstructure:"buckets"`
		IPLimit       int           `mapstructure:"ip-limit"`
		AccountLimit  int           `mapstructure:"account-limit"`
		PurgeInterval time.Duration `mapstructure:"purge-interval"`
		RedisAddr     string        `mapstructure:"redis-addr"`
	}

	Router struct {
		ListenAddr           string   `mapstructure:"listen-addr"`
		TxBackendURL         string   `mapstructure:"tx-backend-url"`
		ReadBackendURL       string   `mapstructure:"read-backend-url"`
		DestinationAllowlist []string `mapstructure:"destination-allowlist"`
		DeployAddress        string   `mapstructure:"deploy-address"`
		AllowedChainIDs      []int64  `mapstructure:"allowed-chain-ids"`
		TrustForwardedFor    bool     `mapstructure:"trust-forwarded-for"`
	}

	Relayer struct {
		PrivateKey             string        `mapstructure:"private-key"`
		GasLimit               uint64        `mapstructure:"gas-limit"`
		PollInterval           string        `mapstructure:"poll-interval"`
		FromL2TransactionIndex uint64        `mapstructure:"from-l2-transaction-index"`
		RelayTimeout           time.Duration `mapstructure:"relay-timeout"`
	}

	Datastore struct {
		Driver DatastoreDriver `mapstructure:"driver"`
		DSN    string          `mapstructure:"dsn"`
	}

	Metrics struct {
		ListenAddr string `mapstructure:"listen-addr"`
	}
)

const (
	LayerNameL1 LayerName = "l1"
	LayerNameL2 LayerName = "l2"

	DatastoreDriverMemory   DatastoreDriver = "memory"
	DatastoreDriverPostgres DatastoreDriver = "postgres"
)

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if err := c.L1.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.L2.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Watcher.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Tracker.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Router.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Datastore.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

func (c *Layer) validate(name LayerName) []error {
	var errs []error

	if c.RPCURL == "" {
		errs = append(errs, fmt.Errorf("%s.rpc-url is required", name))
	}
	if c.MessengerAddress == "" {
		errs = append(errs, fmt.Errorf("%s.messenger-address is required", name))
	} else if !common.IsHexAddress(c.MessengerAddress) {
		errs = append(errs, fmt.Errorf("%s.messenger-address is not a valid address", name))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("%s.requests-per-second must not be negative", name))
	}

	return errs
}

func (c *L1) Validate() error {
	errs := c.Layer.validate(LayerNameL1)

	if c.StateCommitmentChainAddress != "" && !common.IsHexAddress(c.StateCommitmentChainAddress) {
		errs = append(errs, errors.New("l1.state-commitment-chain-address is not a valid address"))
	}
	if c.GetLogsInterval == 0 {
		errs = append(errs, errors.New("l1.get-logs-interval must be greater than 0"))
	}

	return errors.Join(errs...)
}

func (c *L2) Validate() error {
	errs := c.Layer.validate(LayerNameL2)

	if c.MessagePasserAddress != "" && !common.IsHexAddress(c.MessagePasserAddress) {
		errs = append(errs, errors.New("l2.message-passer-address is not a valid address"))
	}

	return errors.Join(errs...)
}

func (c *Watcher) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("watcher.poll-interval must be greater than 0"))
	}
	if c.RelayLookbackBlocks == 0 {
		errs = append(errs, errors.New("watcher.relay-lookback-blocks must be greater than 0"))
	}

	return errors.Join(errs...)
}

func (c *Tracker) Validate() error {
	var errs []error

	if c.Interval == "" {
		errs = append(errs, errors.New("tracker.interval is required"))
	}
	if c.ConfirmationsUntilFinal == 0 {
		errs = append(errs, errors.New("tracker.confirmations-until-final must be greater than 0"))
	}

	return errors.Join(errs...)
}

func (c *RateLimit) Validate() error {
	var errs []error

	if c.Period <= 0 {
		errs = append(errs, errors.New("ratelimit.period must be greater than 0"))
	}
	if c.Buckets <= 0 {
		errs = append(errs, errors.New("ratelimit.buckets must be greater than 0"))
	}
	if c.IPLimit <= 0 {
		errs = append(errs, errors.New("ratelimit.ip-limit must be greater than 0"))
	}
	if c.AccountLimit <= 0 {
		errs = append(errs, errors.New("ratelimit.account-limit must be greater than 0"))
	}
	// A sweep may only evict counters whose window has fully elapsed. Zero disables purging.
	if c.PurgeInterval < 0 || (c.PurgeInterval > 0 && c.PurgeInterval < c.Period) {
		errs = append(errs, errors.New("ratelimit.purge-interval must be 0 or at least ratelimit.period"))
	}

	return errors.Join(errs...)
}

func (c *Router) Validate() error {
	var errs []error

	if c.TxBackendURL == "" {
		errs = append(errs, errors.New("router.tx-backend-url is required"))
	}
	if c.ReadBackendURL == "" {
		errs = append(errs, errors.New("router.read-backend-url is required"))
	}
	for _, addr := range c.DestinationAllowlist {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("router.destination-allowlist contains invalid address %q", addr))
		}
	}
	if c.DeployAddress != "" && !common.IsHexAddress(c.DeployAddress) {
		errs = append(errs, errors.New("router.deploy-address is not a valid address"))
	}

	return errors.Join(errs...)
}

func (c *Datastore) Validate() error {
	switch c.Driver {
	case DatastoreDriverMemory:
		return nil
	case DatastoreDriverPostgres:
		if c.DSN == "" {
			return errors.New("datastore.dsn is required for the postgres driver")
		}
		return nil
	default:
		return fmt.Errorf("datastore.driver must be either '%s' or '%s'", DatastoreDriverMemory, DatastoreDriverPostgres)
	}
}
