// Command gorsyncd is a standalone rsync daemon supervisor: a small
// cobra-driven CLI around rsyncd.Server and rsyncdconfig, distinct from
// the rsync(1)-compatible flag surface cmd/gorsync exposes (that surface
// stays table-driven via internal/rsyncopts, since rsync's own flag
// grammar is not cobra-shaped).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/rsyncdconfig"
	"github.com/oferchen/gorsync/internal/version"
	"github.com/oferchen/gorsync/rsyncd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, pidFile string

	root := &cobra.Command{
		Use:   "gorsyncd",
		Short: "rsync daemon supervisor",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to gorsyncd.toml (default: look in the user config directory)")
	root.PersistentFlags().StringVar(&pidFile, "pid-file", "", "write the daemon's pid to this file on start")

	root.AddCommand(newRunCmd(&configPath, &pidFile))
	root.AddCommand(newReloadCmd(&pidFile))
	root.AddCommand(newVersionCmd())
	return root
}

func loadConfig(configPath string) (*rsyncdconfig.Config, error) {
	if configPath != "" {
		return rsyncdconfig.FromFile(configPath)
	}
	cfg, _, err := rsyncdconfig.FromDefaultFiles()
	return cfg, err
}

func newRunCmd(configPath, pidFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if len(cfg.Listeners) == 0 || cfg.Listeners[0].Rsyncd == "" {
				return fmt.Errorf("no rsyncd listener configured")
			}

			if *pidFile != "" {
				if err := os.WriteFile(*pidFile, fmt.Appendf(nil, "%d\n", os.Getpid()), 0644); err != nil {
					return fmt.Errorf("writing pid file: %w", err)
				}
				defer os.Remove(*pidFile)
			}

			srv, err := rsyncd.NewServer(cfg.Modules, rsyncd.WithLogger(log.New(os.Stderr)), rsyncd.WithRestrictFilesystem())
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", cfg.Listeners[0].Rsyncd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log.Printf("rsync daemon listening on rsync://%s", ln.Addr())
			return srv.Serve(ctx, ln)
		},
	}
}

func newReloadCmd(pidFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "ask a running daemon (by pid file) to reload its config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *pidFile == "" {
				return fmt.Errorf("--pid-file is required")
			}
			b, err := os.ReadFile(*pidFile)
			if err != nil {
				return fmt.Errorf("reading pid file: %w", err)
			}
			var pid int
			if _, err := fmt.Sscanf(string(b), "%d", &pid); err != nil {
				return fmt.Errorf("parsing pid file: %w", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			return proc.Signal(syscall.SIGHUP)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the gorsyncd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version.Read())
			return nil
		},
	}
}
