package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kontourlabs/kontourd/pqsig"
)

func keygenCommand() *cobra.Command {
	var (
		out       string
		algorithm string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a post-quantum key pair and print its address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			alg := cfg.SignatureAlgorithm
			if algorithm != "" {
				alg = pqsig.Algorithm(algorithm)
			}
			kp, err := pqsig.GenerateKeyPair(alg)
			if err != nil {
				return err
			}
			if err := pqsig.SaveKeyPair(out, kp); err != nil {
				return err
			}
			addr, err := kp.Address()
			if err != nil {
				return err
			}
			log.Info("key pair written",
				zap.String("path", out),
				zap.String("algorithm", string(alg)))
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "kontour-key.json", "output key file")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "signature algorithm (default from config)")
	return cmd
}
