package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/planvisor/planvisor/pkg/config"
)

func newRenderCommand() *cobra.Command {
	var (
		serverVersion string
		watch         bool
	)

	cmd := &cobra.Command{
		Use:   "render <plan-file>",
		Short: "Compile a plan document to the wire format",
		Long: `Compile a plan document into the scenario DTO submitted to the
analysis service, without contacting the service.

The wire shape depends on the server's protocol version; pass --server-version
to select the generation to compile for.`,
		Example: `  # Render for a current server
  planvisor render hardware-refresh.yaml --server-version 7.22.0

  # Re-render on every edit
  planvisor render hardware-refresh.yaml --server-version 7.22.0 --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			render := func() error {
				pf, err := config.LoadPlanFile(path)
				if err != nil {
					return err
				}
				spec, err := pf.ToSpec()
				if err != nil {
					return err
				}
				out, err := spec.RenderJSON(serverVersion)
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			if !watch {
				return render()
			}

			if err := render(); err != nil {
				log.Error().Err(err).Msg("Render failed")
			}
			return watchAndRender(cmd, path, render)
		},
	}

	cmd.Flags().StringVar(&serverVersion, "server-version", "", "protocol version to compile for (required)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-render whenever the plan file changes")
	cmd.MarkFlagRequired("server-version")

	return cmd
}

// watchAndRender re-runs render on every write to path until the context is
// cancelled. Editors that replace the file on save drop the watch, so the
// path is re-added after each event.
func watchAndRender(cmd *cobra.Command, path string, render func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("Watching for changes")

	var timer *time.Timer
	for {
		select {
		case <-cmd.Context().Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if _, err := os.Stat(path); err == nil {
				watcher.Add(path)
			}
			// debounce editor save bursts
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(500*time.Millisecond, func() {
				if err := render(); err != nil {
					log.Error().Err(err).Msg("Render failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
