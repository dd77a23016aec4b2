package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kontourlabs/kontourd/chain"
	"github.com/kontourlabs/kontourd/contour"
	"github.com/kontourlabs/kontourd/pqsig"
)

func submitCommand() *cobra.Command {
	var (
		keyFile     string
		to          string
		amount      uint64
		contourFile string
		mineTo      string
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Sign and submit a transaction, optionally mining it into a block",
		Long: `Sign a transfer with the given key, run it through the admission
pipeline and, when --mine-to is set, immediately mine a block so the
transaction is not lost with the in-memory pool.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := pqsig.LoadKeyPair(keyFile)
			if err != nil {
				return err
			}
			from, err := kp.Address()
			if err != nil {
				return err
			}

			tx := chain.NewTransaction(from, to, amount)
			if contourFile != "" {
				data, err := os.ReadFile(contourFile)
				if err != nil {
					return err
				}
				var proof contour.Data
				if err := json.Unmarshal(data, &proof); err != nil {
					return fmt.Errorf("parse contour file: %w", err)
				}
				tx.Contour = &proof
			}
			if err := tx.Sign(kp); err != nil {
				return err
			}

			ledger, closer, err := openLedger()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}

			if err := ledger.SubmitTransaction(cmd.Context(), tx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admitted %s\n", tx.Hash())

			if mineTo != "" {
				block, err := ledger.MinePendingTransactions(cmd.Context(), mineTo)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "mined block %d %s\n", block.Index, block.Hash)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFile, "key", "k", "kontour-key.json", "sender key file")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().Uint64Var(&amount, "amount", 0, "amount to transfer")
	cmd.Flags().StringVar(&contourFile, "contour", "", "JSON file with the geometric proof payload")
	cmd.Flags().StringVar(&mineTo, "mine-to", "", "mine a block immediately, crediting the reward to this address")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
