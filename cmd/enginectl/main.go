// Command enginectl is a thin CLI harness over the download engine
// library, for manual exercise and smoke testing. It is not itself part
// of the engine: everything it does goes through enginepool.Pool, the
// same entry point a real host application would use.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"aio-download-engine/internal/config"
	"aio-download-engine/internal/enginepool"
	"aio-download-engine/internal/logger"
	"aio-download-engine/internal/network"
	"aio-download-engine/internal/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		dataDir       string
		stagingDir    string
		extractorPath string
		configPath    string
		jsonOut       bool
	)

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	var pool *enginepool.Pool
	var settingsManager *config.Manager

	root := &cobra.Command{
		Use:           "enginectl",
		Short:         "Manual harness for the download engine (start/pause/resume/cancel/delete)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			db, err := storage.NewStorage(dataDir)
			if err != nil {
				return fmt.Errorf("open settings database: %w", err)
			}
			settingsManager = config.NewManager(db)
			settings = settingsManager.Apply(settings)

			log, err := logger.New(dataDir, os.Stderr, nil)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			p, err := enginepool.New(enginepool.Options{
				DataDir:       dataDir,
				StagingDir:    stagingDir,
				ExtractorPath: extractorPath,
				Settings:      func() config.Settings { return settingsManager.Apply(settings) },
				Logger:        log,
				Storage:       db,
			})
			if err != nil {
				return err
			}
			if err := p.Start(ctx); err != nil {
				return err
			}
			pool = p
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./enginectl-data", "Directory for persisted records, cookies and logs")
	root.PersistentFlags().StringVar(&stagingDir, "staging-dir", "./enginectl-data/staging", "Directory for in-flight temp files")
	root.PersistentFlags().StringVar(&extractorPath, "extractor-path", "yt-dlp", "Path to the extractor binary")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a key=value settings file")
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON for status/list output")

	root.AddCommand(newStartCmd(ctx, &pool))
	root.AddCommand(newPauseCmd(&pool))
	root.AddCommand(newResumeCmd(ctx, &pool))
	root.AddCommand(newCancelCmd(&pool))
	root.AddCommand(newDeleteCmd(&pool))
	root.AddCommand(newStatusCmd(&pool, &jsonOut))
	root.AddCommand(newListCmd(&pool, &jsonOut))
	root.AddCommand(newConfigCmd(&settingsManager))
	root.AddCommand(newStatsCmd(&pool, &jsonOut))
	root.AddCommand(newSpeedTestCmd(&jsonOut))

	return root.ExecuteContext(ctx)
}

func newStartCmd(ctx context.Context, poolRef **enginepool.Pool) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "start <url>",
		Short: "Submit a new download for the given URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest == "" {
				dest = "."
			}
			dest, err := filepath.Abs(dest)
			if err != nil {
				return err
			}
			r, err := (*poolRef).Submit(ctx, args[0], dest)
			if err != nil {
				return err
			}
			fmt.Println(r.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "output", "o", "", "Destination directory")
	return cmd
}

func newPauseCmd(poolRef **enginepool.Pool) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id>",
		Short: "Pause a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*poolRef).Pause(args[0])
		},
	}
}

func newResumeCmd(ctx context.Context, poolRef **enginepool.Pool) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume a paused or closed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*poolRef).Resume(ctx, args[0])
		},
	}
}

func newCancelCmd(poolRef **enginepool.Pool) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task, keeping its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*poolRef).Cancel(args[0])
		},
	}
}

func newDeleteCmd(poolRef **enginepool.Pool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Cancel a task and remove its record and staged files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*poolRef).Delete(args[0])
		},
	}
}

func newStatusCmd(poolRef **enginepool.Pool, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Print a task's current Record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := (*poolRef).Status(args[0])
			if err != nil {
				return err
			}
			if *jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			fmt.Printf("%s  %-10s  %6.1f%%  %s\n", r.ID, r.Status, r.ProgressPercentage, r.FileName)
			return nil
		},
	}
}

func newListCmd(poolRef **enginepool.Pool, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known task id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := (*poolRef).List()
			if err != nil {
				return err
			}
			if *jsonOut {
				enc := json.NewEncoder(os.Stdout)
				return enc.Encode(ids)
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newStatsCmd(poolRef **enginepool.Pool, jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print lifetime bytes/files downloaded, recent daily history and disk usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			data := (*poolRef).Analytics()
			if *jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			}
			fmt.Printf("lifetime: %d bytes across %d files\n", data.TotalDownloaded, data.TotalFiles)
			fmt.Printf("disk: %.1fGB used / %.1fGB total (%.1f%%)\n", data.DiskUsage.UsedGB, data.DiskUsage.TotalGB, data.DiskUsage.Percent)
			for day, bytes := range data.DailyHistory {
				fmt.Printf("  %s: %d bytes\n", day, bytes)
			}
			return nil
		},
	}
}

// newSpeedTestCmd runs the optional diagnostic ping/download/upload
// network-speed test (SpeedProbe). It is deliberately off the task hot
// path: nothing in taskengine or enginepool calls it, it is only useful
// for an operator sizing downloadMaxNetworkSpeed by hand.
func newSpeedTestCmd(jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "speedtest",
		Short: "Run a one-off ping/download/upload network speed test",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := network.RunSpeedTestWithEvents(func(phase network.SpeedTestPhase) {
				if *jsonOut {
					return
				}
				fmt.Fprintf(os.Stderr, "speedtest: %s\n", phase.Phase)
			})
			if err != nil {
				return err
			}
			if *jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Printf("ping: %dms  download: %.1f Mbps  upload: %.1f Mbps  server: %s (%s)\n",
				result.Ping, result.DownloadSpeed, result.UploadSpeed, result.ServerName, result.ISP)
			return nil
		},
	}
}

// newConfigCmd exposes the persisted-override surface config.Manager
// wraps around the ambient settings database: a small set of overrides
// a running install can change without touching its config file.
func newConfigCmd(managerRef **config.Manager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change persisted setting overrides",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-user-agent <value>",
		Short: "Override the HTTP User-Agent used for direct transfers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*managerRef).SetUserAgent(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-verify-checksum <true|false>",
		Short: "Toggle post-completion checksum verification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*managerRef).SetVerifyChecksum(args[0] == "true")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-wifi-only <true|false>",
		Short: "Toggle Wi-Fi-only downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return (*managerRef).SetWifiOnly(args[0] == "true")
		},
	})
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
