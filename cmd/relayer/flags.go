package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFileKey = "config"

type (
	flagType interface {
		string | int
	}

	// flagDef binds a command-line flag to a viper configuration key.
	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

// Defaults live in the embedded config; flags left empty do not override them.
var (
	stringFlags = []flagDef[string]{
		{"config", configFileKey, "", "Path to a config file"},
		{"log-level", "log.level", "", "Log level (debug, info, warn, error)"},
		{"log-format", "log.format", "", "Log format (json or text)"},

		{"l1-rpc-url", "l1.rpc-url", "", "L1 RPC URL"},
		{"l1-messenger-address", "l1.messenger-address", "", "L1 cross-domain messenger address"},
		{"state-commitment-chain-address", "l1.state-commitment-chain-address", "", "L1 state commitment chain address"},
		{"l2-rpc-url", "l2.rpc-url", "", "L2 RPC URL"},
		{"l2-messenger-address", "l2.messenger-address", "", "L2 cross-domain messenger address"},
		{"message-passer-address", "l2.message-passer-address", "", "L2 to L1 message passer address"},

		{"relayer-private-key", "relayer.private-key", "", "Private key signing relay transactions"},
		{"datastore-driver", "datastore.driver", "", "Batch datastore driver (memory or postgres)"},
		{"datastore-dsn", "datastore.dsn", "", "Batch datastore DSN"},
		{"redis-addr", "ratelimit.redis-addr", "", "Redis address for shared rate limit counters"},
		{"listen-addr", "router.listen-addr", "", "JSON-RPC listen address"},
		{"metrics-listen-addr", "metrics.listen-addr", "", "Prometheus listen address"},
	}

	intFlags = []flagDef[int]{
		{"l1-chain-id", "l1.chain-id", 0, "L1 chain id"},
		{"l2-chain-id", "l2.chain-id", 0, "L2 chain id"},
		{"ip-limit", "ratelimit.ip-limit", 0, "Requests per window allowed from one source IP"},
		{"account-limit", "ratelimit.account-limit", 0, "Transactions per window allowed from one account"},
	}
)

func init() {
	mustDeclare(rootCmd, stringFlags)
	mustDeclare(rootCmd, intFlags)
}

func mustDeclare[T flagType](cmd *cobra.Command, flags []flagDef[T]) {
	if err := declareFlags(cmd.PersistentFlags(), flags); err != nil {
		panic(err)
	}
}

// declareFlags declares multiple flags and binds them to viper configuration keys.
func declareFlags[T flagType](set *pflag.FlagSet, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(set, flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single flag and binds it to a viper configuration key.
// Unset flags fall through to the config file and embedded defaults.
func declareFlag[T flagType](set *pflag.FlagSet, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		set.String(flagName, any(defaultValue).(string), description)
	case int:
		set.Int(flagName, any(defaultValue).(int), description)
	}
	return viper.BindPFlag(viperKey, set.Lookup(flagName))
}
