package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"computeq/internal/wire"
	"computeq/pkg/types"
)

// commandKind discriminates parsed REPL commands.
type commandKind int

const (
	cmdSubmit commandKind = iota
	cmdGet
	cmdTickets
	cmdHelp
	cmdQuit
)

// command is one parsed REPL line.
type command struct {
	kind      commandKind
	mode      types.SubmitMode
	req       *wire.SubmitRequest
	ticket    types.Ticket
	waitMode  types.WaitMode
	timeoutMS uint32
}

func isBlockToken(s string) bool {
	switch strings.ToLower(s) {
	case "block", "blocking", "sync":
		return true
	}
	return false
}

func isNonblockToken(s string) bool {
	switch strings.ToLower(s) {
	case "non-block", "nonblock", "non_block", "async":
		return true
	}
	return false
}

func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a 32-bit integer", s)
	}
	return int32(v), nil
}

// parseCommand turns one input line into a command. The grammar matches
// what help prints; errors carry a usage hint.
func parseCommand(line string) (*command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty command")
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return &command{kind: cmdQuit}, nil
	case "help":
		return &command{kind: cmdHelp}, nil
	case "tickets":
		return &command{kind: cmdTickets}, nil
	case "get":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, errors.New("usage: get <ticket> [timeout_ms]")
		}
		id, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a ticket", fields[1])
		}
		cmd := &command{kind: cmdGet, ticket: types.Ticket(id), waitMode: types.NoWait}
		if len(fields) == 3 {
			ms, err := strconv.ParseUint(fields[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%q is not a timeout in ms", fields[2])
			}
			cmd.waitMode = types.WaitUpTo
			cmd.timeoutMS = uint32(ms)
		}
		return cmd, nil
	}

	// Submission: <mode> <op> <args...>
	if len(fields) < 2 {
		return nil, errors.New("bad command, type 'help'")
	}
	cmd := &command{kind: cmdSubmit}
	switch {
	case isBlockToken(fields[0]):
		cmd.mode = types.Blocking
	case isNonblockToken(fields[0]):
		cmd.mode = types.NonBlocking
	default:
		return nil, errors.New("first token must be 'block' or 'non-block'")
	}

	op := strings.ToLower(fields[1])
	switch op {
	case "add", "sub", "mult", "div":
		if len(fields) != 4 {
			return nil, fmt.Errorf("usage: %s %s a b", fields[0], op)
		}
		a, err := parseInt32(fields[2])
		if err != nil {
			return nil, err
		}
		b, err := parseInt32(fields[3])
		if err != nil {
			return nil, err
		}
		var mop types.MathOp
		switch op {
		case "add":
			mop = types.MathAdd
		case "sub":
			mop = types.MathSub
		case "mult":
			mop = types.MathMul
		case "div":
			mop = types.MathDiv
		}
		cmd.req = &wire.SubmitRequest{Math: &wire.MathArgs{Op: mop, A: a, B: b}}
	case "concat":
		if len(fields) != 4 {
			return nil, fmt.Errorf("usage: %s concat s1 s2", fields[0])
		}
		cmd.req = &wire.SubmitRequest{Str: &wire.StrArgs{Op: types.StrConcat, S1: fields[2], S2: fields[3]}}
	case "find":
		if len(fields) != 4 {
			return nil, fmt.Errorf("usage: %s find hay needle", fields[0])
		}
		cmd.req = &wire.SubmitRequest{Str: &wire.StrArgs{Op: types.StrFindStart, S1: fields[2], S2: fields[3]}}
	default:
		return nil, fmt.Errorf("unknown op %q, type 'help'", fields[1])
	}
	return cmd, nil
}

const helpText = `Commands:
  block|non-block add a b
  block|non-block sub a b
  block|non-block mult a b
  block|non-block div a b
  block|non-block concat s1 s2
  block|non-block find hay needle
  get <ticket> [timeout_ms]
  tickets
  quit | exit
`

func printSubmit(out io.Writer, resp *wire.SubmitResponse) {
	if resp.Status != types.StatusSuccess {
		fmt.Fprintf(out, "status=%s\n", resp.Status)
	}
	if resp.Ticket != nil {
		fmt.Fprintf(out, "ticket=%d\n", uint64(*resp.Ticket))
	}
	if resp.Result != nil {
		fmt.Fprintf(out, "Result: %s\n", resp.Result)
	}
}

func printGet(out io.Writer, resp *wire.GetResponse) {
	fmt.Fprintf(out, "status=%s\n", resp.Status)
	if resp.Result != nil {
		fmt.Fprintf(out, "Result: %s\n", resp.Result)
	}
}

// Run drives the interactive loop until EOF, quit, or the stop flag.
func (c *Client) Run(stop *atomic.Bool, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Client started. Type 'help' for commands.")

	scanner := bufio.NewScanner(in)
	for !stop.Load() {
		fmt.Fprint(out, ">> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, err := parseCommand(line)
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}

		switch cmd.kind {
		case cmdQuit:
			fmt.Fprintln(out, "Exiting...")
			return scanner.Err()
		case cmdHelp:
			fmt.Fprint(out, helpText)
		case cmdTickets:
			tickets := c.Pending()
			sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
			if len(tickets) == 0 {
				fmt.Fprintln(out, "no outstanding tickets")
			}
			for _, t := range tickets {
				fmt.Fprintf(out, "ticket=%d\n", uint64(t))
			}
		case cmdGet:
			resp, err := c.Get(cmd.ticket, cmd.waitMode, cmd.timeoutMS)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printGet(out, resp)
		case cmdSubmit:
			var resp *wire.SubmitResponse
			if cmd.mode == types.Blocking {
				resp, err = c.SubmitBlocking(cmd.req)
			} else {
				resp, err = c.SubmitNonBlocking(cmd.req)
			}
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			printSubmit(out, resp)
		}
	}

	fmt.Fprintln(out, "Exiting...")
	return scanner.Err()
}
