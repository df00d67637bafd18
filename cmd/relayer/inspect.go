package main

import (
	"context"
	"fmt"

	"github.com/compose-network/xdomain-relayer/configs"
	"github.com/compose-network/xdomain-relayer/internal/infra/filesystem"
	"github.com/compose-network/xdomain-relayer/internal/messenger"
	"github.com/compose-network/xdomain-relayer/internal/proof"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

type (
	messageStatusView struct {
		MessageHash common.Hash                  `json:"messageHash" yaml:"messageHash"`
		Status      messenger.MessageRelayStatus `json:"status" yaml:"status"`
	}

	relayView struct {
		MessageHash common.Hash `json:"messageHash" yaml:"messageHash"`
		Relayed     bool        `json:"relayed" yaml:"relayed"`
		Failed      bool        `json:"failed" yaml:"failed"`
		TxHash      common.Hash `json:"txHash" yaml:"txHash"`
		BlockNumber uint64      `json:"blockNumber" yaml:"blockNumber"`
	}
)

var (
	correlateCmd = &cobra.Command{
		Use:   "correlate",
		Short: "List the message hashes sent by a source transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				direction, txHash, err := directionAndTx(cmd)
				if err != nil {
					return err
				}

				hashes, err := a.watcher(direction).Correlate(ctx, txHash)
				if err != nil {
					return err
				}
				return writeOutput(cmd, hashes)
			})
		},
	}

	awaitCmd = &cobra.Command{
		Use:   "await",
		Short: "Wait for a message to be relayed on the destination layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				direction, err := directionFlag(cmd)
				if err != nil {
					return err
				}
				hash, err := hashFlag(cmd, "hash")
				if err != nil {
					return err
				}
				noPoll, _ := cmd.Flags().GetBool("no-poll")
				if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}

				view, err := awaitRelayView(ctx, a.watcher(direction), hash, !noPoll)
				if err != nil {
					return err
				}
				return writeOutput(cmd, view)
			})
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report the relay status of every message sent by a source transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				direction, txHash, err := directionAndTx(cmd)
				if err != nil {
					return err
				}

				m, err := a.messageStatus(direction)
				if err != nil {
					return err
				}
				sent, err := m.Watcher().MessagesFromTransaction(ctx, txHash)
				if err != nil {
					return err
				}

				views := make([]messageStatusView, 0, len(sent))
				for _, msg := range sent {
					status, err := m.GetMessageStatus(ctx, msg)
					if err != nil {
						return fmt.Errorf("failed to get status of message %s: %w", msg.Hash, err)
					}
					views = append(views, messageStatusView{MessageHash: msg.Hash, Status: status})
				}
				return writeOutput(cmd, views)
			})
		},
	}

	proveCmd = &cobra.Command{
		Use:   "prove",
		Short: "Build the L1 inclusion proof of every message sent by an L2 transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				txHash, err := hashFlag(cmd, "tx")
				if err != nil {
					return err
				}

				oracle, err := a.oracle()
				if err != nil {
					return err
				}
				builder, err := a.builder(oracle)
				if err != nil {
					return err
				}
				sent, err := a.watcher(messenger.DirectionL2ToL1).MessagesFromTransaction(ctx, txHash)
				if err != nil {
					return err
				}

				views := make([]proof.MessageProofView, 0, len(sent))
				for _, msg := range sent {
					p, err := builder.MessageProof(ctx, msg)
					if err != nil {
						return fmt.Errorf("failed to build proof of message %s: %w", msg.Hash, err)
					}
					views = append(views, p.View(msg.Hash))
				}
				return writeOutput(cmd, views)
			})
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{correlateCmd, statusCmd, proveCmd} {
		cmd.Flags().String("tx", "", "source transaction hash")
		_ = cmd.MarkFlagRequired("tx")
	}
	for _, cmd := range []*cobra.Command{correlateCmd, awaitCmd, statusCmd} {
		cmd.Flags().String("direction", "l1-to-l2", "message direction: l1-to-l2 or l2-to-l1")
	}

	awaitCmd.Flags().String("hash", "", "message hash")
	_ = awaitCmd.MarkFlagRequired("hash")
	awaitCmd.Flags().Bool("no-poll", false, "look once instead of waiting for the relay")
	awaitCmd.Flags().Duration("timeout", 0, "give up after this long, 0 waits forever")

	for _, cmd := range []*cobra.Command{correlateCmd, awaitCmd, statusCmd, proveCmd} {
		cmd.Flags().String("format", string(filesystem.FormatJSON), "output format: json or yaml")
		cmd.Flags().String("out", "", "output file, stdout when empty")
	}
}

// withApp validates the connection settings, dials both layers and hands the
// result to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg := configs.Values
	if err := cfg.L1.Validate(); err != nil {
		return err
	}
	if err := cfg.L2.Validate(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}

// awaitRelayView reports the relay of hash. Without polling a message that has
// not been relayed yet is reported with Relayed unset.
func awaitRelayView(ctx context.Context, watcher *messenger.Watcher, hash common.Hash, poll bool) (relayView, error) {
	relay, err := watcher.AwaitRelay(ctx, hash, poll)
	if err != nil {
		return relayView{}, err
	}

	view := relayView{MessageHash: hash}
	if relay == nil {
		return view, nil
	}

	view.Relayed = true
	view.Failed = relay.Failed()
	if relay.Receipt != nil {
		view.TxHash = relay.Receipt.TxHash
		if relay.Receipt.BlockNumber != nil {
			view.BlockNumber = relay.Receipt.BlockNumber.Uint64()
		}
	}
	return view, nil
}

func directionFlag(cmd *cobra.Command) (messenger.Direction, error) {
	value, _ := cmd.Flags().GetString("direction")
	return parseDirection(value)
}

func directionAndTx(cmd *cobra.Command) (messenger.Direction, common.Hash, error) {
	direction, err := directionFlag(cmd)
	if err != nil {
		return "", common.Hash{}, err
	}
	txHash, err := hashFlag(cmd, "tx")
	if err != nil {
		return "", common.Hash{}, err
	}
	return direction, txHash, nil
}

func hashFlag(cmd *cobra.Command, name string) (common.Hash, error) {
	value, _ := cmd.Flags().GetString(name)
	raw, err := hexutil.Decode(value)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, fmt.Errorf("--%s must be a 32 byte 0x-prefixed hex string", name)
	}
	return common.BytesToHash(raw), nil
}

func writeOutput(cmd *cobra.Command, data any) error {
	format, _ := cmd.Flags().GetString("format")
	path, _ := cmd.Flags().GetString("out")

	writer, err := filesystem.NewWriter(filesystem.Format(format))
	if err != nil {
		return err
	}
	return filesystem.WriteFile(writer, path, data)
}
