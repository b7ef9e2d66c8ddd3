// Package maincmd implements a subset of the '$ rsync' CLI surface, namely that it can:
//   - serve as a server daemon over TCP or over a remote shell's stdin/stdout
//   - act as "client" CLI for connecting to the server
//   - both "client" and "server" can act as the sender and the receiver
package maincmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/oferchen/gorsync/internal/bwlimit"
	"github.com/oferchen/gorsync/internal/restrict"
	"github.com/oferchen/gorsync/internal/rsyncdconfig"
	"github.com/oferchen/gorsync/internal/rsyncopts"
	"github.com/oferchen/gorsync/internal/rsyncos"
	"github.com/oferchen/gorsync/internal/rsyncstats"
	"github.com/oferchen/gorsync/rsyncd"

	// For profiling and debugging
	_ "net/http/pprof"
)

func version(osenv *rsyncos.Env) {
	osenv.Logf("gorsync, pid %d", os.Getpid())
}

type readWriter struct {
	r io.Reader
	w io.Writer
}

func (r *readWriter) Read(p []byte) (n int, err error)  { return r.r.Read(p) }
func (r *readWriter) Write(p []byte) (n int, err error) { return r.w.Write(p) }

// Main is the stdio-triple convenience entry point used by tests that
// don't need fine-grained control over the process
// environment: it builds an *rsyncos.Env from the given streams and
// delegates to MainEnv.
func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, cfg *rsyncdconfig.Config) (*rsyncstats.TransferStats, error) {
	osenv := &rsyncos.Env{Stdin: stdin, Stdout: stdout, Stderr: stderr}
	return MainEnv(ctx, osenv, args, cfg)
}

// MainEnv dispatches to remote-shell daemon mode, remote-shell command
// mode (rsync --server), client mode, or a standalone TCP daemon
// listener, mirroring the am_server/am_daemon branching in
// rsync/main.c:main.
func MainEnv(ctx context.Context, osenv *rsyncos.Env, args []string, cfg *rsyncdconfig.Config) (*rsyncstats.TransferStats, error) {
	osenv.Logf("Main(osenv=%v, args=%q)", osenv, args)
	pc, err := rsyncopts.ParseArguments(osenv.Std(), args[1:])
	if err != nil {
		if pe, ok := err.(*rsyncopts.PoptError); ok &&
			pe.Errno == rsyncopts.POPT_ERROR_BADOPT &&
			strings.HasPrefix(pe.Error(), "--gorsync.") {
			return nil, fmt.Errorf("%v (you need to specify --daemon before flags starting with --gorsync are available)", pe)
		}
		return nil, err
	}
	opts := pc.Options
	remaining := pc.RemainingArgs

	// calling convention: daemon mode over remote shell (e.g. an SSH
	// command forced via authorized_keys)
	// Example: --server --daemon .
	if opts.Daemon() && opts.Server() {
		if cfg == nil {
			var err error
			cfg, _, err = rsyncdconfig.FromDefaultFiles()
			if err != nil {
				return nil, err
			}
		}
		rsyncdOpts := []rsyncd.Option{
			rsyncd.WithStderr(osenv.Stderr),
		}
		srv, err := rsyncd.NewServer(cfg.Modules, rsyncdOpts...)
		if err != nil {
			return nil, err
		}
		conn := &readWriter{r: osenv.Stdin, w: osenv.Stdout}
		return nil, srv.HandleDaemonConn(ctx, osenv.Std(), conn, remoteShellAddr{})
	}

	// calling convention: command mode (over remote shell or locally)
	// Example: --server --sender -vvvvlogDtpre.iLsfxCIvu . .
	if opts.Server() {
		srv, err := rsyncd.NewServer(nil, rsyncd.WithStderr(osenv.Stderr))
		if err != nil {
			return nil, err
		}

		if len(remaining) < 2 {
			return nil, fmt.Errorf("invalid args: at least one directory required")
		}
		if got, want := remaining[0], "."; got != want {
			return nil, fmt.Errorf("protocol error: got %q, expected %q", got, want)
		}
		paths := remaining[1:]
		if opts.Verbose() {
			osenv.Logf("paths: %q", paths)
		}
		var roDirs, rwDirs []string
		if opts.Sender() {
			roDirs = append(roDirs, paths...)
		} else {
			for _, path := range paths {
				if err := os.MkdirAll(path, 0755); err != nil {
					return nil, err
				}
			}
			rwDirs = append(rwDirs, paths...)
		}
		if osenv.Restrict() {
			if err := restrict.MaybeFileSystem(roDirs, rwDirs); err != nil {
				return nil, err
			}
		}
		conn := srv.NewConnection(osenv.Stdin, osenv.Stdout)
		if rate := opts.BwLimitBytesPerSec(); rate > 0 {
			conn.SetLimiter(bwlimit.New(float64(rate), 0))
		}
		// No ASCII "@RSYNCD:" greeting precedes this pipe, so the peer's
		// rsyncclient.Client.Run (or clientRun) still owes us its binary
		// version advertisement; negotiate=true makes HandleConn read it.
		return nil, srv.HandleConn(nil, conn, paths, opts, 0, true)
	}

	if !opts.Daemon() {
		if opts.ClientExtra.DontRestrict == 1 {
			osenv.DontRestrict = true
		}
		return clientMain(ctx, args, osenv.Std())
	}

	// daemon_main(): start a plain TCP daemon listener.
	var cfgfn string
	var cfgErr error
	if cfg == nil {
		if opts.DaemonExtra.Config != "" {
			cfgfn = opts.DaemonExtra.Config
			cfg, cfgErr = rsyncdconfig.FromFile(cfgfn)
		} else {
			cfg, cfgfn, cfgErr = rsyncdconfig.FromDefaultFiles()
		}
		if cfgErr != nil {
			if os.IsNotExist(cfgErr) {
				osenv.Logf("config file not found, relying on flags")
				cfg = &rsyncdconfig.Config{
					Listeners: []rsyncdconfig.Listener{
						{Rsyncd: opts.DaemonExtra.Listen},
					},
					Modules: []rsyncd.Module{},
				}
			} else {
				return nil, cfgErr
			}
		} else {
			osenv.Logf("config file %s loaded", cfgfn)
		}
	}

	listenAddr := ""
	if len(cfg.Listeners) > 0 {
		listenAddr = cfg.Listeners[0].Rsyncd
	}
	if listenAddr == "" {
		return nil, fmt.Errorf("no rsyncd listener configured: specify --gorsync.listen or add a [[listener]] to %s", cfgfn)
	}

	if moduleMap := opts.DaemonExtra.ModuleMap; moduleMap != "" {
		parts := strings.Split(moduleMap, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed --gorsync.modulemap parameter %q, expected <modulename>=<path>", moduleMap)
		}
		cfg.Modules = append(cfg.Modules, rsyncd.Module{
			Name: parts[0],
			Path: parts[1],
		})
	}

	version(osenv)
	osenv.Logf("%d rsync modules configured in total", len(cfg.Modules))
	for _, mod := range cfg.Modules {
		osenv.Logf("rsync module %q with path %s configured", mod.Name, mod.Path)
	}

	if monitoringListen := opts.DaemonExtra.MonitoringListen; monitoringListen != "" {
		go func() {
			osenv.Logf("HTTP server for monitoring listening on http://%s/debug/pprof", monitoringListen)
			if err := http.ListenAndServe(monitoringListen, nil); err != nil {
				osenv.Logf("--gorsync.monitoring-listen: %v", err)
			}
		}()
	}

	srv, err := rsyncd.NewServer(cfg.Modules, rsyncd.WithStderr(osenv.Stderr))
	if err != nil {
		return nil, err
	}

	var ln net.Listener
	ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	osenv.Logf("rsync daemon listening on rsync://%s", ln.Addr())
	return nil, srv.Serve(ctx, ln)
}

// remoteShellAddr satisfies net.Addr for connections arriving over a
// remote shell's stdin/stdout, which have no real network address.
type remoteShellAddr struct{}

func (remoteShellAddr) Network() string { return "remote-shell" }
func (remoteShellAddr) String() string  { return "<remote-shell-daemon>" }
