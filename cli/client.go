package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"

	"github.com/hamuko/beelzebub/cli/cliflag"
	"github.com/hamuko/beelzebub/config"
	"github.com/hamuko/beelzebub/monitor"
	"github.com/hamuko/beelzebub/monitor/procsnap"
)

func client() *cobra.Command {
	var (
		configPath string
		interval   time.Duration
		verbose    bool
	)
	root := &cobra.Command{
		Use:   "client",
		Short: "Track monitored applications and report usage to the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.Make(sloghuman.Sink(cmd.ErrOrStderr()))
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if configPath == "" {
				var err error
				configPath, err = config.DefaultClientPath()
				if err != nil {
					return xerrors.Errorf("determine configuration path: %w", err)
				}
			}
			supervisor, err := config.NewSupervisor(logger, configPath)
			if err != nil {
				return xerrors.Errorf("load configuration: %w", err)
			}
			logger.Info(ctx, "loaded configuration", slog.F("path", configPath))

			dispatcher := monitor.NewDispatcher(logger, supervisor)
			mon, err := monitor.New(monitor.Options{
				Logger:       logger,
				Snapshot:     procsnap.OS(),
				Configs:      supervisor,
				Dispatch:     dispatcher.Enqueue,
				TickInterval: interval,
			})
			if err != nil {
				return xerrors.Errorf("create monitor: %w", err)
			}

			eg, egCtx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				err := supervisor.Watch(egCtx)
				if err != nil && !xerrors.Is(err, context.Canceled) {
					return xerrors.Errorf("watch configuration: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				return dispatcher.Run(egCtx)
			})
			eg.Go(func() error {
				return mon.Run(egCtx)
			})
			return eg.Wait()
		},
	}
	cliflag.StringVarP(root.Flags(), &configPath, "config", "c", "BEELZEBUB_CLIENT_CONFIG", "", "Path to the client configuration file. Defaults to client.yaml in the user configuration directory.")
	cliflag.DurationVarP(root.Flags(), &interval, "interval", "i", "BEELZEBUB_TICK_INTERVAL", 5*time.Second, "Cadence at which the process table is polled.")
	cliflag.BoolVarP(root.Flags(), &verbose, "verbose", "v", "BEELZEBUB_VERBOSE", false, "Enable debug logging.")
	return root
}
