package cli

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/hamuko/beelzebub/beelzebubd"
	"github.com/hamuko/beelzebub/beelzebubd/database"
	"github.com/hamuko/beelzebub/beelzebubd/database/migrations"
	"github.com/hamuko/beelzebub/cli/cliflag"
	"github.com/hamuko/beelzebub/config"
)

func server() *cobra.Command {
	var (
		configPath string
		address    string
		verbose    bool
	)
	root := &cobra.Command{
		Use:   "server",
		Short: "Start the usage ingestion server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Make(sloghuman.Sink(cmd.ErrOrStderr()))
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if configPath == "" {
				var err error
				configPath, err = config.DefaultServerPath()
				if err != nil {
					return xerrors.Errorf("determine configuration path: %w", err)
				}
			}
			cfg, err := config.LoadServer(configPath)
			if err != nil {
				return xerrors.Errorf("load configuration: %w", err)
			}
			if address != "" {
				cfg.Address = address
			}

			sqlDB, err := sql.Open("postgres", cfg.DBURL)
			if err != nil {
				return xerrors.Errorf("dial postgres: %w", err)
			}
			defer sqlDB.Close()
			err = sqlDB.PingContext(ctx)
			if err != nil {
				return xerrors.Errorf("ping postgres: %w", err)
			}
			err = migrations.Up(sqlDB)
			if err != nil {
				return xerrors.Errorf("migrate database: %w", err)
			}

			handler := beelzebubd.New(&beelzebubd.Options{
				Logger:   logger.Named("beelzebubd"),
				Database: database.New(sqlDB),
				Secret:   cfg.Secret,
			})

			listener, err := net.Listen("tcp", cfg.Address)
			if err != nil {
				return xerrors.Errorf("listen %q: %w", cfg.Address, err)
			}
			defer listener.Close()

			srv := &http.Server{
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(net.Listener) context.Context {
					return ctx
				},
			}
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Serve(listener)
			}()
			logger.Info(ctx, "server started", slog.F("address", listener.Addr().String()))

			select {
			case <-ctx.Done():
				logger.Info(ctx, "shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				if xerrors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}
	cliflag.StringVarP(root.Flags(), &configPath, "config", "c", "BEELZEBUB_SERVER_CONFIG", "", "Path to the server configuration file. Defaults to server.yaml in the user configuration directory.")
	cliflag.StringVarP(root.Flags(), &address, "address", "a", "BEELZEBUB_ADDRESS", "", "Listen address, overriding the configuration file.")
	cliflag.BoolVarP(root.Flags(), &verbose, "verbose", "v", "BEELZEBUB_VERBOSE", false, "Enable debug logging.")
	return root
}
