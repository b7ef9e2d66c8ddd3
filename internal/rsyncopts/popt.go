package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// poptArgInfo mirrors the small subset of popt(3)'s POPT_ARG_* argument
// kinds that rsync's option table actually uses.
type poptArgInfo int

const (
	// POPT_ARG_NONE marks a flag that takes no argument. When arg points
	// at an int, each occurrence increments it; the option's val is only
	// returned to the caller when arg is nil.
	POPT_ARG_NONE poptArgInfo = iota
	// POPT_ARG_STRING consumes the next token (or the text after '=') and
	// stores it into the *string arg points at.
	POPT_ARG_STRING
	// POPT_ARG_INT consumes the next token, parses it as a base-10 signed
	// integer and stores it into the *int arg points at.
	POPT_ARG_INT
	// POPT_ARG_VAL takes no argument and stores val itself into the *int
	// arg points at, without incrementing.
	POPT_ARG_VAL
	// POPT_BIT_SET takes no argument and ORs val into the *int arg points at.
	POPT_BIT_SET
)

// poptOption describes one recognized flag, long and/or short form.
// arg, when non-nil, receives the parsed value directly and the option is
// never surfaced to ParseArguments' switch; when arg is nil, val is
// returned by poptGetNextOpt for the caller to handle explicitly.
type poptOption struct {
	longName  string
	shortName string
	argInfo   poptArgInfo
	arg       any
	val       int
}

// Popt error codes, named after the popt(3) constants rsync's own error
// messages reference.
const (
	POPT_ERROR_NOARG = iota - 10
	POPT_ERROR_BADOPT
	POPT_ERROR_BADNUMBER
	POPT_ERROR_OVERFLOW
)

// PoptError reports a command-line parsing failure, tagging which flag
// triggered it so callers can special-case errors (e.g. maincmd detects
// an unrecognized --gorsync.* flag reaching daemon-only option parsing).
type PoptError struct {
	Option     string
	Msg        string
	Errno      int
	DaemonMode bool
}

func (e *PoptError) Error() string {
	if e.Option == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Option, e.Msg)
}

// Context is the state of one argument-parsing pass: the option table in
// effect, the arguments being scanned, and the non-option arguments
// accumulated so far. ParseArguments returns a *Context as the result of
// parsing a whole command line.
type Context struct {
	Options       *Options
	RemainingArgs []string

	table []poptOption
	args  []string
	pos   int

	optArg string // argument consumed by the most recent option
}

func (pc *Context) findLong(name string) *poptOption {
	for i := range pc.table {
		if pc.table[i].longName == name {
			return &pc.table[i]
		}
	}
	return nil
}

func (pc *Context) findShort(name string) *poptOption {
	for i := range pc.table {
		if pc.table[i].shortName == name {
			return &pc.table[i]
		}
	}
	return nil
}

// poptGetNextOpt scans pc.args starting at pc.pos for the next recognized
// option, applying it (and looping internally) if it has a storage
// target, or returning its val for the caller to act on otherwise.
// Positional (non-option) arguments are appended to pc.RemainingArgs.
// Returns -1, nil once the whole command line has been consumed.
func (pc *Context) poptGetNextOpt() (int, error) {
	for pc.pos < len(pc.args) {
		tok := pc.args[pc.pos]

		if tok == "--" {
			pc.pos++
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args[pc.pos:]...)
			pc.pos = len(pc.args)
			return -1, nil
		}

		if !strings.HasPrefix(tok, "-") || tok == "-" {
			pc.RemainingArgs = append(pc.RemainingArgs, tok)
			pc.pos++
			continue
		}

		if strings.HasPrefix(tok, "--") {
			pc.pos++
			name := tok[2:]
			var inlineVal string
			haveInline := false
			if idx := strings.IndexByte(name, '='); idx >= 0 {
				inlineVal = name[idx+1:]
				name = name[:idx]
				haveInline = true
			}
			opt := pc.findLong(name)
			if opt == nil {
				return 0, &PoptError{Option: "--" + name, Msg: "unknown option", Errno: POPT_ERROR_BADOPT}
			}
			ret, err := pc.applyOpt(opt, "--"+name, inlineVal, haveInline)
			if err != nil {
				return 0, err
			}
			if ret != nil {
				return *ret, nil
			}
			continue
		}

		// Short option(s): "-v", "-av", "-n" etc. Only the last short
		// option in a cluster may consume a following argument.
		pc.pos++
		rest := tok[1:]
		for len(rest) > 0 {
			name := rest[:1]
			rest = rest[1:]
			opt := pc.findShort(name)
			if opt == nil {
				return 0, &PoptError{Option: "-" + name, Msg: "unknown option", Errno: POPT_ERROR_BADOPT}
			}
			var inlineVal string
			haveInline := false
			if opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT {
				if rest != "" {
					inlineVal = rest
					haveInline = true
					rest = ""
				}
			}
			ret, err := pc.applyOpt(opt, "-"+name, inlineVal, haveInline)
			if err != nil {
				return 0, err
			}
			if ret != nil {
				return *ret, nil
			}
		}
	}
	return -1, nil
}

// applyOpt stores opt's value (consuming the next argument if needed) and
// returns nil, nil when it was fully handled internally, or a pointer to
// the val to surface to the caller when opt.arg is nil.
func (pc *Context) applyOpt(opt *poptOption, display, inlineVal string, haveInline bool) (*int, error) {
	needsArg := opt.argInfo == POPT_ARG_STRING || opt.argInfo == POPT_ARG_INT

	var value string
	if needsArg {
		if haveInline {
			value = inlineVal
		} else {
			if pc.pos >= len(pc.args) {
				return nil, &PoptError{Option: display, Msg: "missing argument", Errno: POPT_ERROR_NOARG}
			}
			value = pc.args[pc.pos]
			pc.pos++
		}
	}
	pc.optArg = value

	if opt.arg == nil {
		v := opt.val
		return &v, nil
	}

	switch opt.argInfo {
	case POPT_ARG_NONE:
		p, ok := opt.arg.(*int)
		if !ok {
			return nil, fmt.Errorf("BUG: %s: POPT_ARG_NONE arg is not *int", display)
		}
		*p++
	case POPT_ARG_VAL:
		p, ok := opt.arg.(*int)
		if !ok {
			return nil, fmt.Errorf("BUG: %s: POPT_ARG_VAL arg is not *int", display)
		}
		*p = opt.val
	case POPT_BIT_SET:
		p, ok := opt.arg.(*int)
		if !ok {
			return nil, fmt.Errorf("BUG: %s: POPT_BIT_SET arg is not *int", display)
		}
		*p |= opt.val
	case POPT_ARG_STRING:
		p, ok := opt.arg.(*string)
		if !ok {
			return nil, fmt.Errorf("BUG: %s: POPT_ARG_STRING arg is not *string", display)
		}
		*p = value
	case POPT_ARG_INT:
		p, ok := opt.arg.(*int)
		if !ok {
			return nil, fmt.Errorf("BUG: %s: POPT_ARG_INT arg is not *int", display)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, &PoptError{Option: display, Msg: "expected an integer argument", Errno: POPT_ERROR_BADNUMBER}
		}
		*p = n
	}
	return nil, nil
}

// poptGetOptArg returns the argument consumed by the most recent option.
func (pc *Context) poptGetOptArg() string { return pc.optArg }
