package uci

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/herohde/uciworker/pkg/jobapi"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
)

// ErrEngineDead is returned when the engine's stdout closes unexpectedly,
// e.g. because the process crashed or was killed.
var ErrEngineDead = errors.New("engine process is dead")

// requiredOptions are the UCI options the original client insists on before
// trusting an engine binary (it otherwise silently ignores any engine that
// doesn't understand how to play variants or size its own memory).
var requiredOptions = []string{"Threads", "Hash", "UCI_Chess960", "UCI_Variant"}

// Driver drives one engine subprocess through the UCI protocol: handshake,
// option/variant setup, position updates and search.
type Driver struct {
	proc *Process
	info jobapi.EngineInfo

	// advertised holds every option name seen in an "option name ..." line
	// during handshake. It is distinct from info.Options, which only ever
	// holds the options actually applied for this worker (threads, hash,
	// custom) — advertised is never sent to the server.
	advertised map[string]bool
}

// NewDriver spawns the engine binary and performs the initial "uci" handshake.
func NewDriver(ctx context.Context, command string, args []string, dir string) (*Driver, error) {
	proc, err := Spawn(ctx, command, args, dir)
	if err != nil {
		return nil, err
	}
	d := &Driver{
		proc:       proc,
		info:       jobapi.EngineInfo{Options: map[string]string{}},
		advertised: map[string]bool{},
	}

	if err := d.handshake(ctx); err != nil {
		proc.Terminate()
		return nil, err
	}
	d.warnIfMissingRequiredOptions(ctx)
	return d, nil
}

// Advertises reports whether the engine's handshake listed name as a
// supported UCI option.
func (d *Driver) Advertises(name string) bool {
	return d.advertised[name]
}

func (d *Driver) warnIfMissingRequiredOptions(ctx context.Context) {
	var missing []string
	for _, name := range requiredOptions {
		if !d.advertised[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		logw.Warningf(ctx, "Engine does not advertise expected option(s): %v", strings.Join(missing, ", "))
	}
}

// Info returns the engine's identity and the options applied so far. Author
// is intentionally not tracked: it is discarded once the handshake ends.
func (d *Driver) Info() jobapi.EngineInfo {
	return d.info
}

// Closed reports when the underlying process has exited.
func (d *Driver) Closed() <-chan struct{} {
	return d.proc.Closed()
}

// Terminate and Kill forward to the underlying process.
func (d *Driver) Terminate() { d.proc.Terminate() }
func (d *Driver) Kill()      { d.proc.Kill() }

func (d *Driver) handshake(ctx context.Context) error {
	if err := d.proc.Send(ctx, "uci"); err != nil {
		return err
	}

	for {
		line, ok := d.recv(ctx)
		if !ok {
			return ErrEngineDead
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "id":
			if len(fields) >= 3 && fields[1] == "name" {
				d.info.Name = strings.Join(fields[2:], " ")
			}
			// "id author ..." is parsed but discarded: it never reaches the
			// envelope.

		case "option":
			if name, ok := parseOptionName(fields); ok {
				d.advertised[name] = true
			}

		case "uciok":
			return nil

		case "Stockfish":
			// Some builds print a banner line ("Stockfish 16 by ...") before
			// any proper UCI output; tolerated rather than warned about.

		default:
			logw.Warningf(ctx, "Unexpected engine output during handshake: %v", line)
		}
	}
}

func parseOptionName(fields []string) (string, bool) {
	// "option name <id> type <t> ..." — <id> may contain spaces, so it runs
	// up to the "type" token.
	if len(fields) < 2 || fields[1] != "name" {
		return "", false
	}
	end := len(fields)
	for i := 2; i < len(fields); i++ {
		if fields[i] == "type" {
			end = i
			break
		}
	}
	return strings.Join(fields[2:end], " "), true
}

// Sync blocks until the engine answers "isready" with "readyok". An "info
// string ..." line is tolerated silently (some engines chatter while
// catching up); anything else unexpected is logged as a warning.
func (d *Driver) Sync(ctx context.Context) error {
	if err := d.proc.Send(ctx, "isready"); err != nil {
		return err
	}
	for {
		line, ok := d.recv(ctx)
		if !ok {
			return ErrEngineDead
		}
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "readyok":
			return nil
		case strings.HasPrefix(trimmed, "info string"):
			// tolerated
		default:
			logw.Warningf(ctx, "Unexpected engine output while syncing: %v", line)
		}
	}
}

// SetOption sends "setoption name <name> value <value>", or just
// "setoption name <name>" when value is empty (button-type options). It does
// not affect the envelope's reported option set — use RecordOption for
// options that should be echoed back to the server.
func (d *Driver) SetOption(ctx context.Context, name, value string) error {
	if value == "" {
		return d.proc.Send(ctx, fmt.Sprintf("setoption name %v", name))
	}
	return d.proc.Send(ctx, fmt.Sprintf("setoption name %v value %v", name, value))
}

// RecordOption sends the option like SetOption, and additionally records it
// in the envelope's "stockfish.options" map. Used only for the options fixed
// at worker startup (threads, hash, custom options) — matching the original
// client, which builds that map once in start_stockfish and never touches it
// again, so later per-job options (Skill Level, UCI_Variant, ...) never leak
// into it.
func (d *Driver) RecordOption(ctx context.Context, name, value string) error {
	d.info.Options[name] = value
	return d.SetOption(ctx, name, value)
}

// SetVariant configures UCI_Chess960 and UCI_Variant for variant. Engines
// that do not support a given option silently ignore it, per the UCI
// protocol, so this never validates engine capability first.
func (d *Driver) SetVariant(ctx context.Context, variant string) error {
	chess960 := variant == "fromposition" || variant == "chess960"
	if err := d.SetOption(ctx, "UCI_Chess960", strconv.FormatBool(chess960)); err != nil {
		return err
	}

	var uciVariant string
	switch variant {
	case "", "standard", "fromposition", "chess960":
		uciVariant = "chess"
	case "antichess":
		uciVariant = "giveaway"
	default:
		uciVariant = variant
	}
	return d.SetOption(ctx, "UCI_Variant", uciVariant)
}

// NewGame sends "ucinewgame" and waits for the engine to finish reacting to it.
func (d *Driver) NewGame(ctx context.Context) error {
	if err := d.proc.Send(ctx, "ucinewgame"); err != nil {
		return err
	}
	return d.Sync(ctx)
}

// SetPosition sends "position fen <fen> moves <m1> <m2> ...".
func (d *Driver) SetPosition(ctx context.Context, fen string, moves []string) error {
	var sb strings.Builder
	sb.WriteString("position fen ")
	sb.WriteString(fen)
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return d.proc.Send(ctx, sb.String())
}

// GoParams configures one "go" command. Fields left absent are omitted from
// the command line, matching the original client's argument-building order:
// movetime, depth, nodes, then clock (wtime/btime/winc/binc).
type GoParams struct {
	MoveTimeMS lang.Optional[int]
	Depth      lang.Optional[int]
	Nodes      lang.Optional[int64]

	WTimeMS lang.Optional[int]
	BTimeMS lang.Optional[int]
	WIncMS  lang.Optional[int]
	BIncMS  lang.Optional[int]
}

// BuildGoCommand renders the "go" command line for p.
func BuildGoCommand(p GoParams) string {
	parts := []string{"go"}
	if v, ok := p.MoveTimeMS.V(); ok {
		parts = append(parts, "movetime", strconv.Itoa(v))
	}
	if v, ok := p.Depth.V(); ok {
		parts = append(parts, "depth", strconv.Itoa(v))
	}
	if v, ok := p.Nodes.V(); ok {
		parts = append(parts, "nodes", strconv.FormatInt(v, 10))
	}
	if v, ok := p.WTimeMS.V(); ok {
		parts = append(parts, "wtime", strconv.Itoa(v))
	}
	if v, ok := p.BTimeMS.V(); ok {
		parts = append(parts, "btime", strconv.Itoa(v))
	}
	if v, ok := p.WIncMS.V(); ok {
		parts = append(parts, "winc", strconv.Itoa(v))
	}
	if v, ok := p.BIncMS.V(); ok {
		parts = append(parts, "binc", strconv.Itoa(v))
	}
	return strings.Join(parts, " ")
}

// Go starts a search and blocks until "bestmove" is seen. Every accumulated
// info update is sent on progress (non-blocking; the caller may pass a nil or
// unbuffered channel to receive only the final record). Returns the best
// move token (never "0000" is special-cased: that is a legal null move) and
// the accumulated info record as of bestmove.
func (d *Driver) Go(ctx context.Context, p GoParams, progress chan<- jobapi.InfoRecord) (string, jobapi.InfoRecord, error) {
	var info jobapi.InfoRecord

	if err := d.proc.Send(ctx, BuildGoCommand(p)); err != nil {
		return "", info, err
	}

	for {
		line, ok := d.recv(ctx)
		if !ok {
			return "", info, ErrEngineDead
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "info":
			ApplyInfoLine(&info, strings.TrimPrefix(strings.TrimPrefix(line, "info"), " "))
			if progress != nil {
				select {
				case progress <- info:
				default:
				}
			}

		case "bestmove":
			best := ""
			if len(fields) >= 2 {
				best = fields[1]
			}
			if err := d.Sync(ctx); err != nil {
				return "", info, err
			}
			return best, info, nil
		}
	}
}

func (d *Driver) recv(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-d.proc.Lines():
		return line, ok
	case <-ctx.Done():
		logw.Warningf(ctx, "Context done waiting for engine: %v", ctx.Err())
		return "", false
	case <-d.proc.Closed():
		return "", false
	}
}
