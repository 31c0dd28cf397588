package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sydlexius/cancionero/internal/artwork"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var dirs []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Invalidate cached embedded art as asset files change, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(s *session) error {
				if len(dirs) == 0 {
					dirs = s.cfg.Artwork.WatchDirs
				}
				if len(dirs) == 0 {
					return fmt.Errorf("no directories to watch: pass --dir or set artwork.watch_dirs")
				}

				w, err := artwork.NewWatcher(s.engine.ArtCache(), s.bus, s.logger)
				if err != nil {
					return err
				}
				defer w.Close() //nolint:errcheck
				for _, d := range dirs {
					if err := w.Add(d); err != nil {
						return err
					}
				}

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				s.logger.Info("art watcher running", slog.Int("dirs", len(dirs)))
				w.Run(runCtx)
				s.logger.Info("art watcher stopped")
				return cmd.Context().Err()
			})
		},
	}
	cmd.Flags().StringSliceVar(&dirs, "dir", nil, "Asset directory to watch (repeatable)")
	return cmd
}
