// Package rsyncdraft parses the handful of bundled short flags
// (e.g. "-logDtpr") that very old rsync clients send during the inband
// daemon handshake, as a last-resort fallback when the full popt-style
// table in internal/rsyncopts rejects the flag line outright. This is
// the bundled-short-flag parsing logic from the project's original,
// much smaller daemon prototype, kept alive here as a narrow
// compatibility shim rather than carried as dead code: it is invoked by
// rsyncd.Server.HandleDaemonConn only after rsyncopts.ParseArguments has
// already failed, purely to produce a clearer diagnostic about which
// legacy flags were actually understood before giving up.
package rsyncdraft

import "github.com/DavidGamba/go-getoptions"

// Options is the small subset of server flags this fallback parser
// recognizes — a minimal legacy compatibility surface, not a
// replacement for internal/rsyncopts.
type Options struct {
	Server           bool
	Sender           bool
	Recurse          bool
	PreserveLinks    bool
	PreservePerms    bool
	PreserveTimes    bool
	PreserveUid      bool
	PreserveGid      bool
	PreserveDevices  bool
	PreserveSpecials bool
}

// Parse attempts to interpret flags (already split into one token per
// element, as sent one per line during the inband daemon handshake)
// using bundled single-dash short options, e.g. "-logDtpr". It returns
// the recognized subset and any positional arguments left over.
func Parse(flags []string) (*Options, []string, error) {
	opt := getoptions.New()

	// rsync (but not openrsync) bundles short options together.
	opt.SetMode(getoptions.Bundling)

	var o Options
	opt.BoolVar(&o.Server, "server", false)
	opt.BoolVar(&o.Sender, "sender", false)
	opt.BoolVar(&o.PreserveGid, "group", false, opt.Alias("g"))
	opt.BoolVar(&o.PreserveUid, "owner", false, opt.Alias("o"))
	opt.BoolVar(&o.PreserveLinks, "links", false, opt.Alias("l"))
	opt.BoolVar(&o.PreservePerms, "perms", false, opt.Alias("p"))
	opt.BoolVar(&o.Recurse, "recursive", false, opt.Alias("r"))
	opt.BoolVar(&o.PreserveTimes, "times", false, opt.Alias("t"))
	dOpt := opt.Bool("D", false)
	opt.Bool("v", false) // verbosity; position in the cluster matters, value doesn't

	remaining, err := opt.Parse(flags)
	if err != nil {
		return nil, nil, err
	}
	if *dOpt {
		o.PreserveDevices = true
		o.PreserveSpecials = true
	}
	return &o, remaining, nil
}
