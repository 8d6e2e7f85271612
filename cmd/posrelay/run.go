package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/issac1998/pos-relay/internal/channel"
	"github.com/issac1998/pos-relay/internal/config"
	"github.com/issac1998/pos-relay/internal/logging"
	"github.com/issac1998/pos-relay/internal/relay"
)

func runCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Read all configured channels and dispatch transactions until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := signalContext()
			defer cancel()

			stats, err := relay.New(cfg, relay.Options{DryRun: dryRun}, logger).Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("Relay stopped", "assembled", stats.Assembled, "sent", stats.Sent, "failed", stats.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Assemble and snapshot transactions without posting them")
	return cmd
}

func replayCmd(flags *globalFlags) *cobra.Command {
	var (
		channelName string
		send        bool
	)

	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Feed framed capture files through the assembler as one channel",
		Long: `Replay reads mlen-framed captures in order as if they arrived on a
single channel. Transactions are snapshotted under the events directory.
With --send they are also posted to the partner API.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logging.Close()

			terminal := config.DefaultTerminal(channelName)
			for _, ch := range cfg.Channels {
				if ch.Name == channelName {
					terminal = ch.Terminal
				}
			}
			cfg.Channels = []config.ChannelConfig{{Name: channelName, Device: "file://" + args[0], Terminal: terminal}}
			cfg.Admin.Enabled = false

			ctx, cancel := signalContext()
			defer cancel()

			stats, err := relay.New(cfg, relay.Options{
				DryRun:  !send,
				Sources: map[string]channel.Source{channelName: channel.NewFileSource(args...)},
			}, logger).Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "assembled %d transactions", stats.Assembled)
			if send {
				fmt.Fprintf(cmd.OutOrStdout(), ", sent %d, failed %d", stats.Sent, stats.Failed)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&channelName, "channel", "replay", "Channel name the captures are attributed to")
	cmd.Flags().BoolVar(&send, "send", false, "Post assembled transactions to the partner API")
	return cmd
}

func resendCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resend SNAPSHOT...",
		Short: "Post saved transaction snapshots to the partner API again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logging.Close()

			ctx, cancel := signalContext()
			defer cancel()

			results, err := relay.New(cfg, relay.Options{}, logger).Resend(ctx, args)
			for i, res := range results {
				outcome := "sent"
				if !res.Success {
					outcome = "failed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d\n", args[i], outcome, res.StatusCode)
			}
			return err
		},
	}
}
