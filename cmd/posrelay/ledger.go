package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/issac1998/pos-relay/internal/ledger"
	"github.com/issac1998/pos-relay/internal/logging"
)

func ledgerCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the dispatch ledger",
	}
	cmd.AddCommand(ledgerListCmd(flags))
	cmd.AddCommand(ledgerShowCmd(flags))
	return cmd
}

func openLedger(flags *globalFlags) (*ledger.Ledger, error) {
	cfg, _, err := setup(flags)
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Ledger.Path, cfg.Ledger.Compression)
}

func ledgerListCmd(flags *globalFlags) *cobra.Command {
	var failed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded dispatches",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(flags)
			if err != nil {
				return err
			}
			defer l.Close()
			defer logging.Close()

			filter := ledger.All
			if failed {
				filter = ledger.FailedOnly
			}
			records, err := l.List(filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GUID\tSEQ\tCLASS\tATTEMPTS\tSTATUS\tLAST ATTEMPT")
			for _, rec := range records {
				status := fmt.Sprint(rec.LastStatus)
				if !rec.Success {
					status += " (failed)"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					rec.GUID, rec.Sequence, rec.Classification, rec.Attempts, status,
					rec.LastAttempt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "Only show dispatches whose last attempt failed")
	return cmd
}

func ledgerShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show GUID",
		Short: "Show one dispatch record with its last request body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(flags)
			if err != nil {
				return err
			}
			defer l.Close()
			defer logging.Close()

			rec, err := l.Get(args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no dispatch recorded for %s", args[0])
			}
			payload, err := rec.DecodePayload()
			if err != nil {
				return err
			}

			out := struct {
				*ledger.Record
				Payload json.RawMessage `json:"payload,omitempty"`
			}{Record: rec, Payload: payload}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
