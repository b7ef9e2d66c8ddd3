package maincmd

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/oferchen/gorsync"
	"github.com/oferchen/gorsync/internal/rsyncopts"
	"github.com/oferchen/gorsync/internal/rsyncos"
	"github.com/oferchen/gorsync/internal/rsyncstats"
)

// DefaultRsyncdPort is the IANA-assigned port for the rsync daemon
// protocol, used whenever a host specification or rsync:// URL omits an
// explicit port.
const DefaultRsyncdPort = 873

// checkForHostspec recognizes the three ways rsync(1) accepts a remote
// source or destination: [USER@]HOST:PATH (remote shell),
// [USER@]HOST::MODULE[/PATH] (daemon via a direct socket), and
// rsync://[USER@]HOST[:PORT]/MODULE[/PATH] (daemon via a direct socket,
// URL form). Returning a non-nil error means arg is a plain local path.
// Corresponds to rsync/main.c:check_for_hostspec.
func checkForHostspec(arg string) (host, path string, port int, err error) {
	const rsyncURLPrefix = "rsync://"
	if strings.HasPrefix(arg, rsyncURLPrefix) {
		rest := arg[len(rsyncURLPrefix):]
		slash := strings.IndexByte(rest, '/')
		if slash < 0 {
			return "", "", 0, fmt.Errorf("malformed rsync:// URL %q: missing module", arg)
		}
		hostport := rest[:slash]
		path = rest[slash+1:]
		host = hostport
		port = DefaultRsyncdPort
		if idx := strings.LastIndexByte(hostport, ':'); idx > -1 {
			host = hostport[:idx]
			p, perr := strconv.Atoi(hostport[idx+1:])
			if perr != nil {
				return "", "", 0, fmt.Errorf("malformed rsync:// URL %q: bad port", arg)
			}
			port = p
		}
		return host, path, port, nil
	}

	colon := strings.IndexByte(arg, ':')
	if colon < 0 {
		return "", "", 0, fmt.Errorf("%q is not a host specification", arg)
	}
	host = arg[:colon]
	rest := arg[colon+1:]
	if strings.HasPrefix(rest, ":") {
		return host, rest[1:], DefaultRsyncdPort, nil
	}
	// host:path — remote shell transport, not a daemon connection.
	return host, rest, 0, nil
}

// serverOptions rebuilds the flag list passed to a remote rsync invoked
// in --server mode over a remote shell. Corresponds to
// rsync/options.c:server_options; only the flags this implementation
// actually understands are forwarded.
func serverOptions(opts *rsyncopts.Options) []string {
	args := []string{"--server"}
	if opts.Sender() {
		args = append(args, "--sender")
	}

	var short strings.Builder
	short.WriteByte('-')
	if opts.Verbose() {
		short.WriteByte('v')
	}
	if opts.Recurse() {
		short.WriteByte('r')
	}
	if opts.PreserveLinks() {
		short.WriteByte('l')
	}
	if opts.PreservePerms() {
		short.WriteByte('p')
	}
	if opts.PreserveMTimes() {
		short.WriteByte('t')
	}
	if opts.PreserveGid() {
		short.WriteByte('g')
	}
	if opts.PreserveUid() {
		short.WriteByte('o')
	}
	if opts.PreserveDevices() {
		short.WriteByte('D')
	}
	if opts.DryRun() {
		short.WriteByte('n')
	}
	if short.Len() > 1 {
		args = append(args, short.String())
	}
	if opts.DeleteMode() {
		args = append(args, "--delete")
	}
	return args
}

// doDaemonHandshake performs the legacy ASCII "@RSYNCD:" greeting that
// precedes every daemon connection, whether carried over a raw socket or
// tunneled through a remote shell. Corresponds to
// rsync/clientserver.c:start_socket_client's handshake portion. module
// may be empty to request the daemon's module listing instead of a
// transfer, in which case done is true and no transfer should proceed.
func doDaemonHandshake(rw io.ReadWriter, osenv rsyncos.Std, opts *rsyncopts.Options, user, module, path string) (done bool, err error) {
	if _, err := fmt.Fprintf(rw, "@RSYNCD: %d\n", rsync.ProtocolVersion); err != nil {
		return false, err
	}

	rd := bufio.NewReader(rw)
	greeting, err := rd.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading daemon greeting: %w", err)
	}
	if !strings.HasPrefix(greeting, "@RSYNCD: ") {
		return false, fmt.Errorf("invalid daemon greeting: got %q", greeting)
	}
	if opts.Verbose() {
		osenv.Logf("daemon greeting: %q", strings.TrimSpace(greeting))
	}

	request := module
	if request == "" {
		request = "#list"
	}
	if _, err := fmt.Fprintf(rw, "%s\n", request); err != nil {
		return false, err
	}

	if module == "" {
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return false, fmt.Errorf("reading module listing: %w", err)
			}
			if strings.HasPrefix(line, "@RSYNCD: EXIT") {
				return true, nil
			}
			fmt.Fprint(osenv.Stdout, line)
		}
	}

	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			return false, fmt.Errorf("reading daemon response: %w", err)
		}
		if strings.HasPrefix(line, "@ERROR") {
			return false, fmt.Errorf("daemon error: %s", strings.TrimSpace(line))
		}
		if strings.HasPrefix(line, "@RSYNCD: AUTHREQD ") {
			challenge := strings.TrimSpace(strings.TrimPrefix(line, "@RSYNCD: AUTHREQD "))
			response, err := authRespond(opts, user, challenge)
			if err != nil {
				return false, err
			}
			if _, err := fmt.Fprintf(rw, "%s %s\n", user, response); err != nil {
				return false, err
			}
			continue
		}
		if strings.HasPrefix(line, "@RSYNCD: OK") {
			break
		}
	}

	// rsync/io.c:read_args expects remaining[0] == "." followed by the
	// path with the module name prefix stripped off.
	trimmedPath := strings.TrimPrefix(path, module)
	trimmedPath = strings.TrimPrefix(trimmedPath, "/")
	if trimmedPath == "" {
		trimmedPath = "."
	}

	lines := append(serverOptions(opts), ".", trimmedPath)
	for _, line := range lines {
		if _, err := fmt.Fprintf(rw, "%s\n", line); err != nil {
			return false, err
		}
	}
	if _, err := fmt.Fprint(rw, "\n"); err != nil {
		return false, err
	}

	return false, nil
}

// authRespond computes the AUTHREQD response for the given challenge,
// reading the module secret from --password-file when set and falling
// back to the RSYNC_PASSWORD environment variable, matching rsync(1)'s
// own precedence.
func authRespond(opts *rsyncopts.Options, user, challenge string) (string, error) {
	var secret string
	if pf := opts.PasswordFile(); pf != "" {
		data, err := os.ReadFile(pf)
		if err != nil {
			return "", fmt.Errorf("reading password file: %w", err)
		}
		secret = strings.TrimRight(string(data), "\n")
	} else {
		secret = os.Getenv("RSYNC_PASSWORD")
	}
	sum := md5.Sum([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

// startInbandExchange is the remote-shell variant of the daemon
// handshake: the peer is already a running "rsync --server --daemon"
// process talking over the shell's stdin/stdout, so no socket dial is
// needed first.
func startInbandExchange(osenv rsyncos.Std, opts *rsyncopts.Options, conn io.ReadWriter, user, module, path string) (done bool, err error) {
	return doDaemonHandshake(conn, osenv, opts, user, module, path)
}

// socketClient dials the daemon directly over TCP, completes the ASCII
// handshake, and then runs the binary transfer protocol over the same
// connection. Corresponds to rsync/clientserver.c:start_socket_client.
func socketClient(ctx context.Context, osenv rsyncos.Std, opts *rsyncopts.Options, host, path string, port int, other string) (*rsyncstats.TransferStats, error) {
	if port == 0 {
		port = DefaultRsyncdPort
	}
	user := ""
	if idx := strings.IndexByte(host, '@'); idx > -1 {
		user = host[:idx]
		host = host[idx+1:]
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", host, port, err)
	}
	defer conn.Close()

	module := path
	if idx := strings.IndexByte(module, '/'); idx > -1 {
		module = module[:idx]
	}

	done, err := doDaemonHandshake(conn, osenv, opts, user, module, path)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	return clientRun(osenv, opts, conn, []string{other}, false)
}
