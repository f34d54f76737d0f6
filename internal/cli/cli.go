package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Commands understood by the fastscan CLI.
const (
	CmdScan     = "scan"
	CmdRate     = "rate"
	CmdPin      = "pin"
	CmdHistory  = "history"
	CmdSearch   = "search"
	CmdStats    = "stats"
	CmdIdentity = "identity"
	CmdReset    = "reset"
)

var commands = []string{CmdScan, CmdRate, CmdPin, CmdHistory, CmdSearch, CmdStats, CmdIdentity, CmdReset}

var (
	ErrNoCommand      = errors.New("missing command")
	ErrUnknownCommand = errors.New("unknown command")
)

// CLIArgs are the parsed command line of a single invocation.
type CLIArgs struct {
	// ConfigPath points at a YAML config file; empty searches the defaults.
	ConfigPath string
	// Reset clears the local rating state before the command runs.
	Reset bool

	Command string

	// Target is the URL for scan, or the query for search.
	Target string
	// Yes accepts content warnings without asking.
	Yes bool

	Stars   int
	Comment string
	Pin     string

	Limit int
	// Hosts are expanded to per-scan rows by history.
	Hosts []string

	Page   int
	Filter string
	Sort   string

	// Watch keeps stats running over the websocket.
	Watch bool

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	out := &CLIArgs{RawArgs: args}

	fs := flag.NewFlagSet("fastscan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&out.ConfigPath, "config", "", "Path to a fastscan.yaml config file")
	fs.BoolVar(&out.Reset, "reset", false, "Clear the local rating state (same as ?reset=true)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		if out.Reset {
			out.Command = CmdReset
			return out, nil
		}
		return nil, ErrNoCommand
	}
	out.Command = strings.ToLower(rest[0])
	rest = rest[1:]

	cmd := flag.NewFlagSet(out.Command, flag.ContinueOnError)
	cmd.SetOutput(io.Discard)

	switch out.Command {
	case CmdScan:
		cmd.BoolVar(&out.Yes, "yes", false, "Continue past content warnings without asking")
	case CmdRate:
		cmd.IntVar(&out.Stars, "stars", 0, "Rating from 1 to 5")
		cmd.StringVar(&out.Comment, "comment", "", "Feedback, at least three words")
		cmd.StringVar(&out.Pin, "pin", "", "PIN to set on a first rating, or to unlock a later one")
	case CmdPin:
	case CmdHistory:
		cmd.IntVar(&out.Limit, "limit", 0, "Number of entries to fetch (0=use config default)")
	case CmdSearch:
		cmd.IntVar(&out.Page, "page", 1, "Result page")
		cmd.StringVar(&out.Filter, "filter", "all", "Safety filter: all|safe|unsafe")
		cmd.StringVar(&out.Sort, "sort", "recent", "Order: recent|score|name")
	case CmdStats:
		cmd.BoolVar(&out.Watch, "watch", false, "Stream live updates until interrupted")
	case CmdIdentity, CmdReset:
	default:
		return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownCommand, out.Command, strings.Join(commands, ", "))
	}

	if err := cmd.Parse(rest); err != nil {
		return nil, err
	}
	positional := strings.TrimSpace(strings.Join(cmd.Args(), " "))

	switch out.Command {
	case CmdScan, CmdSearch:
		if positional == "" {
			return nil, fmt.Errorf("%s: missing target argument", out.Command)
		}
		out.Target = positional
	case CmdHistory:
		out.Hosts = cmd.Args()
	case CmdPin:
		if positional == "" {
			return nil, fmt.Errorf("pin: missing PIN argument")
		}
		out.Pin = positional
	case CmdRate:
		if out.Stars < 1 || out.Stars > 5 {
			return nil, fmt.Errorf("rate: -stars must be between 1 and 5")
		}
		if out.Comment == "" {
			out.Comment = positional
		}
	}
	return out, nil
}
