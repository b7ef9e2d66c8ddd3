// Package rsyncclient exposes the rsync client protocol as a library:
// given an io.ReadWriter already connected to an "rsync --server" peer
// (a subprocess, a daemon socket, or any other io.ReadWriter), Run drives
// one transfer to completion. Corresponds to rsync/main.c:client_run,
// factored out of cmd/gorsync so embedders do not need a CLI process.
package rsyncclient

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/oferchen/gorsync"
	"github.com/oferchen/gorsync/internal/bwlimit"
	"github.com/oferchen/gorsync/internal/log"
	"github.com/oferchen/gorsync/internal/negotiation"
	"github.com/oferchen/gorsync/internal/receiver"
	"github.com/oferchen/gorsync/internal/rsyncopts"
	"github.com/oferchen/gorsync/internal/rsyncos"
	"github.com/oferchen/gorsync/internal/rsyncwire"
	"github.com/oferchen/gorsync/internal/sender"
)

// Option configures a Client at construction time.
type Option func(*Client)

// WithSender declares that this Client will act as the sender (the
// remote peer receives); by default a Client receives.
func WithSender() Option {
	return func(c *Client) {
		c.opts.SetSender()
	}
}

// WithLogger directs diagnostic output at logger instead of being
// discarded.
func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client drives one side of an rsync transfer over an already-connected
// stream, playing the role (sender or receiver) selected at
// construction time.
type Client struct {
	opts   *rsyncopts.Options
	logger log.Logger
}

// New parses rsync(1)-style command-line flags (everything except SRC
// and DEST, which are supplied to Run) and returns a Client configured
// accordingly.
func New(args []string, opts ...Option) (*Client, error) {
	pc, err := rsyncopts.ParseArguments(rsyncos.Std{}, args)
	if err != nil {
		return nil, err
	}
	c := &Client{
		opts:   pc.Options,
		logger: log.New(io.Discard),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Run performs one transfer over rw, acting as sender or receiver
// depending on how the Client was constructed, for the given paths (the
// local side of the transfer; exactly one path is currently supported).
// Corresponds to rsync/main.c:client_run.
func (c *Client) Run(ctx context.Context, rw io.ReadWriter, paths []string) error {
	if len(paths) != 1 {
		return fmt.Errorf("rsyncclient: exactly one path supported, got %q", paths)
	}

	var lim *bwlimit.Limiter
	if rate := c.opts.BwLimitBytesPerSec(); rate > 0 {
		lim = bwlimit.New(float64(rate), 0)
	}
	crd, cwr := rsyncwire.CounterPairLimited(rw, rw, lim)
	conn := &rsyncwire.Conn{Reader: crd, Writer: cwr}

	protocol, err := negotiation.ExchangeVersion(conn)
	if err != nil {
		return err
	}
	if _, err := negotiation.ExchangeCompatFlags(conn, protocol, rsync.CompatKnownMask); err != nil {
		return err
	}

	seed, err := conn.ReadInt32()
	if err != nil {
		return fmt.Errorf("reading checksum seed: %w", err)
	}

	mrd := &rsyncwire.MultiplexReader{Reader: rw}
	conn.Reader = mrd

	if c.opts.Sender() {
		st := &sender.Transfer{
			Logger: c.logger,
			Opts:   c.opts,
			Conn:   conn,
			Seed:   seed,
		}
		other := paths[0]
		trimPrefix := filepath.Base(filepath.Clean(other))
		if strings.HasSuffix(other, "/") {
			trimPrefix += "/"
		}
		_, err := st.Do(crd, cwr, trimPrefix, []string{other}, nil)
		return err
	}

	rt := &receiver.Transfer{
		Logger: c.logger,
		Opts: &receiver.TransferOpts{
			DryRun: c.opts.DryRun(),

			DeleteMode:        c.opts.DeleteMode(),
			PreserveGid:       c.opts.PreserveGid(),
			PreserveUid:       c.opts.PreserveUid(),
			PreserveLinks:     c.opts.PreserveLinks(),
			PreservePerms:     c.opts.PreservePerms(),
			PreserveDevices:   c.opts.PreserveDevices(),
			PreserveSpecials:  c.opts.PreserveSpecials(),
			PreserveTimes:     c.opts.PreserveMTimes(),
			PreserveHardlinks: c.opts.PreserveHardLinks(),
			PreserveXattrs:    c.opts.PreserveXattrs(),

			CompressEnabled: c.opts.CompressEnabled(),
			CompressChoice:  c.opts.CompressChoice(),
			CompressLevel:   c.opts.CompressLevel(),
		},
		Dest:     paths[0],
		Env:      rsyncos.Std{Stdout: io.Discard, Stderr: io.Discard},
		Conn:     conn,
		Seed:     seed,
		Protocol: protocol,
	}

	const exclusionListEnd = 0
	if err := conn.WriteInt32(exclusionListEnd); err != nil {
		return err
	}

	fileList, err := rt.ReceiveFileList()
	if err != nil {
		return err
	}

	_, err = rt.Do(conn, fileList, false)
	return err
}
