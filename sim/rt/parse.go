package rt

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gabrieleara/PARTSim-sub001/sim"
	"github.com/gabrieleara/PARTSim-sub001/sim/randvar"
)

// instrBuilder creates an instruction of task t from its arguments.
type instrBuilder func(t *RTTask, args []string) (Instr, error)

var instrBuilders = map[string]instrBuilder{
	"fixed":   buildFixed,
	"delay":   buildDelay,
	"wait":    buildWait,
	"signal":  buildSignal,
	"suspend": buildSuspend,
}

// ParseInstrs parses a task body such as "fixed(500,bzip2);wait(R);delay(unif(1,5));signal(R);".
// Statements are separated by ';'. The separator after the last statement
// is optional, but empty statements are rejected.
func ParseInstrs(t *RTTask, code string) ([]Instr, error) {
	stmts, err := splitTop(code, ';')
	if err != nil {
		return nil, err
	}
	if n := len(stmts); n > 0 && strings.TrimSpace(stmts[n-1]) == "" {
		stmts = stmts[:n-1]
	}
	var out []Instr
	for _, stmt := range stmts {
		in, err := parseStmt(t, strings.TrimSpace(stmt))
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

func parseStmt(t *RTTask, stmt string) (Instr, error) {
	open := strings.IndexByte(stmt, '(')
	if stmt == "" || open <= 0 || !strings.HasSuffix(stmt, ")") {
		return nil, fmt.Errorf("%w: malformed instruction %q", ErrParse, stmt)
	}
	name := strings.TrimSpace(stmt[:open])
	build, ok := instrBuilders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown instruction %q in %q", ErrParse, name, stmt)
	}
	args, err := splitTop(stmt[open+1:len(stmt)-1], ',')
	if err != nil {
		return nil, fmt.Errorf("%q: %w", stmt, err)
	}
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	if len(args) == 1 && args[0] == "" {
		args = nil
	}
	in, err := build(t, args)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", stmt, err)
	}
	return in, nil
}

// splitTop splits s on sep, ignoring separators nested in parentheses.
func splitTop(s string, sep byte) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ')' in %q", ErrParse, s)
			}
		case sep:
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '(' in %q", ErrParse, s)
	}
	return append(parts, s[start:]), nil
}

func buildFixed(t *RTTask, args []string) (Instr, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("%w: fixed takes 1 or 2 arguments", ErrParse)
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("%w: bad cost %q", ErrParse, args[0])
	}
	return NewExecInstr(t, randvar.NewDelta(v), optArg(args, 1)), nil
}

func buildDelay(t *RTTask, args []string) (Instr, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("%w: delay takes 1 or 2 arguments", ErrParse)
	}
	v, err := randvar.Parse(args[0], t.sim.RNG().Source(sim.SubsystemTask(t.name)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return NewExecInstr(t, v, optArg(args, 1)), nil
}

func buildWait(t *RTTask, args []string) (Instr, error) {
	res, n, err := resourceArgs("wait", args)
	if err != nil {
		return nil, err
	}
	return NewWaitInstr(t, res, n), nil
}

func buildSignal(t *RTTask, args []string) (Instr, error) {
	res, n, err := resourceArgs("signal", args)
	if err != nil {
		return nil, err
	}
	return NewSignalInstr(t, res, n), nil
}

func buildSuspend(t *RTTask, args []string) (Instr, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: suspend takes 1 argument", ErrParse)
	}
	d, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || d < 0 {
		return nil, fmt.Errorf("%w: bad delay %q", ErrParse, args[0])
	}
	return NewSuspendInstr(t, sim.Tick(d)), nil
}

func resourceArgs(name string, args []string) (string, int, error) {
	if len(args) < 1 || len(args) > 2 || args[0] == "" {
		return "", 0, fmt.Errorf("%w: %s takes a resource name and an optional count", ErrParse, name)
	}
	n := 1
	if len(args) == 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 {
			return "", 0, fmt.Errorf("%w: bad count %q", ErrParse, args[1])
		}
		n = v
	}
	return args[0], n, nil
}

func optArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
