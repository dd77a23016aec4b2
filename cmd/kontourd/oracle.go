package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kontourlabs/kontourd/contour"
)

func oracleCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Serve the geometric verification oracle over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			oracle := contour.NewOracle(geometryParams(), log.Named("oracle"))

			mux := http.NewServeMux()
			mux.Handle("/", oracle.Handler())
			mux.Handle("/metrics", promhttp.Handler())

			srv := &http.Server{
				Addr:         listen,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				log.Info("oracle listening", zap.String("addr", listen))
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			log.Info("oracle stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8000", "listen address")
	return cmd
}
