package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"

	"github.com/kyleoneill/etch/internal/client"
	"github.com/kyleoneill/etch/internal/wire"
)

var (
	addr    = flag.String("addr", "127.0.0.1:6379", "etchd address")
	timeout = flag.Duration("timeout", 30*time.Second, "request timeout")
)

var ErrUsage = errors.New("bad arguments")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("create"),
	readline.PcItem("insert"),
	readline.PcItem("read"),
	readline.PcItem("send"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

const help = `commands:
  create <table> [records_per_shard]
  insert <table> <json object>
  read <table> <id>
  send <command> <table> <json object>
  exit
`

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

type REPL struct {
	client *client.Client
	rl     *readline.Instance
	out    io.Writer
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "etch> ",
		HistoryFile:     ".etch_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// Step reads and executes one line. io.EOF means the session is over.
func (repl *REPL) Step() error {
	line, err := repl.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	return repl.Execute(line)
}

func (repl *REPL) Execute(line string) error {
	cmd, rest := splitWord(strings.TrimSpace(line))

	switch cmd {
	case "":
		return nil
	case "help":
		fmt.Fprint(repl.out, help)
		return nil
	case "exit", "quit":
		return io.EOF
	case "create":
		return repl.commandCreate(rest)
	case "insert":
		tableName, data := splitWord(rest)
		return repl.send(string(wire.CommandInsert), tableName, data)
	case "read":
		tableName, id := splitWord(rest)
		if tableName == "" || id == "" {
			return fmt.Errorf("%w: read <table> <id>", ErrUsage)
		}
		rawID, err := json.Marshal(id)
		if err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
		return repl.send(string(wire.CommandRead), tableName, fmt.Sprintf(`{"_id": %s}`, rawID))
	case "send":
		command, rest := splitWord(rest)
		tableName, data := splitWord(rest)
		return repl.send(command, tableName, data)
	default:
		return fmt.Errorf("%w: unknown command %q, try help", ErrUsage, cmd)
	}
}

func (repl *REPL) commandCreate(args string) error {
	tableName, rest := splitWord(args)
	if tableName == "" {
		return fmt.Errorf("%w: create <table> [records_per_shard]", ErrUsage)
	}

	data := "{}"
	if rest != "" {
		recordsPerShard, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("%w: records_per_shard must be an integer", ErrUsage)
		}
		data = fmt.Sprintf(`{"records_per_shard": %d}`, recordsPerShard)
	}

	return repl.send(string(wire.CommandCreateTable), tableName, data)
}

func (repl *REPL) send(command string, tableName string, data string) error {
	parsedCommand, ok := wire.ParseCommand(command)
	if !ok {
		return fmt.Errorf("%w: unknown request command %q", ErrUsage, command)
	}
	if tableName == "" {
		return fmt.Errorf("%w: no table", ErrUsage)
	}
	if data == "" {
		data = "{}"
	}

	members, err := wire.DecodeObject([]byte(data))
	if err != nil {
		return fmt.Errorf("%w: data must be a JSON object", ErrUsage)
	}

	resp, err := repl.client.Do(&wire.Request{
		Command: parsedCommand,
		Table:   tableName,
		Data:    members,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(repl.out, "%d %s\n", resp.Code, resp.Data)
	return nil
}

func splitWord(line string) (string, string) {
	ws := strings.IndexAny(line, " \t\r\n")
	if ws < 0 {
		return line, ""
	}
	return line[:ws], strings.TrimSpace(line[ws:])
}

func main() {
	flag.Parse()

	c, err := client.Dial(context.Background(), *addr, *timeout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "etch: %s\n", err)
		os.Exit(1)
	}
	defer c.Close()

	repl := REPL{client: c, out: os.Stdout}
	if err := repl.Open(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "etch: %s\n", err)
		os.Exit(1)
	}
	defer repl.Close()

	for {
		err := repl.Step()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		}
	}
}
