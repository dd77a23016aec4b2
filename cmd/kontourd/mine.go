package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func mineCommand() *cobra.Command {
	var (
		miner  string
		blocks int
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine blocks from the pending pool, crediting rewards to the miner address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, closer, err := openLedger()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}

			for i := 0; i < blocks; i++ {
				block, err := ledger.MinePendingTransactions(cmd.Context(), miner)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "block %d %s (difficulty %d, %d txs)\n",
					block.Index, block.Hash, block.Difficulty, len(block.Transactions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&miner, "miner", "", "address credited with mining rewards")
	cmd.Flags().IntVar(&blocks, "blocks", 1, "number of blocks to mine")
	_ = cmd.MarkFlagRequired("miner")
	return cmd
}

func balanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Look up the confirmed balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closer, err := openLedger()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			fmt.Fprintln(cmd.OutOrStdout(), ledger.GetBalance(args[0]))
			return nil
		},
	}
}

func validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Re-verify the whole chain from genesis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, closer, err := openLedger()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			if err := ledger.ValidateChain(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "chain valid")
			return nil
		},
	}
}

func statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate chain statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, closer, err := openLedger()
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			s := ledger.Stats()
			fmt.Fprintf(cmd.OutOrStdout(),
				"blocks=%d transactions=%d pending=%d avgBlockTime=%s difficulty=%d hashRate=%.2f/s\n",
				s.TotalBlocks, s.TotalTransactions, s.PendingTransactions,
				s.AverageBlockTime, s.CurrentDifficulty, s.NetworkHashRate)
			return nil
		},
	}
}
