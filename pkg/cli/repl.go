// pkg/cli/repl.go
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"stratum/pkg/kvstore"
	"stratum/pkg/stratum"
)

// REPL provides a Read-Eval-Print Loop for interactive key-value
// operations against a kvstore context.
type REPL struct {
	// store is the facade every command is executed against
	store *kvstore.Context

	// tok is the session this REPL entered on construction
	tok stratum.Token

	// shell handles input/output and command parsing
	shell *Shell

	// output is where results are written
	output io.Writer

	// errOutput is where errors are written
	errOutput io.Writer

	// running indicates if the REPL is currently running
	running bool

	// exitRequested indicates that .exit was called
	exitRequested bool
}

// NewREPL creates a new REPL over store, reading from stdin.
// Output is written to output and errors to errOutput.
func NewREPL(store *kvstore.Context, output, errOutput io.Writer) (*REPL, error) {
	return NewREPLWithInput(store, os.Stdin, output, errOutput)
}

// NewREPLWithInput creates a new REPL with custom input/output streams.
// This is useful for testing or scripted operation. The REPL enters its
// own session against store and leaves it on Close.
func NewREPLWithInput(store *kvstore.Context, input io.Reader, output, errOutput io.Writer) (*REPL, error) {
	tok, status := store.Enter()
	if status != stratum.OK {
		return nil, fmt.Errorf("failed to enter session: %v", status)
	}

	shell := NewShell(input, output, errOutput)

	return &REPL{
		store:     store,
		tok:       tok,
		shell:     shell,
		output:    output,
		errOutput: errOutput,
		running:   false,
	}, nil
}

// Close leaves the REPL's session. The underlying store is owned by the
// caller and is not finalized here.
func (r *REPL) Close() error {
	if status := r.store.Leave(r.tok); status != stratum.OK {
		return fmt.Errorf("failed to leave session: %v", status)
	}
	return nil
}

// Run starts the REPL loop, reading and executing commands until
// EOF or .exit command.
func (r *REPL) Run() {
	r.running = true
	r.exitRequested = false

	// Print welcome message
	fmt.Fprintln(r.output, "stratum interactive shell")
	fmt.Fprintln(r.output, "Enter \".help\" for usage hints.")

	for r.running && !r.exitRequested {
		cmd, eof := r.shell.ReadCommand()

		if eof && cmd == "" {
			// Clean EOF, exit gracefully
			fmt.Fprintln(r.output)
			break
		}

		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}

		// Check for dot commands
		if strings.HasPrefix(cmd, ".") {
			r.handleDotCommand(cmd)
			continue
		}

		if err := r.ExecuteCommand(cmd); err != nil {
			r.printError(err)
		}

		if eof {
			break
		}
	}

	r.running = false
}

// ExecuteCommand parses and executes a single command, printing its
// result.
func (r *REPL) ExecuteCommand(cmd string) error {
	args, err := splitArgs(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	ctx := context.Background()

	switch strings.ToLower(args[0]) {
	case "create-storage":
		if len(args) != 2 {
			return fmt.Errorf("usage: create-storage <name>")
		}
		return r.reportStatus(r.store.CreateStorage(args[1]))

	case "delete-storage":
		if len(args) != 2 {
			return fmt.Errorf("usage: delete-storage <name>")
		}
		return r.reportStatus(r.store.DeleteStorage(args[1]))

	case "storages":
		names := r.store.Storages()
		if len(names) == 0 {
			fmt.Fprintln(r.output, "(no storages)")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(r.output, name)
		}
		return nil

	case "put":
		if len(args) != 4 {
			return fmt.Errorf("usage: put <storage> <key> <value>")
		}
		created, status := r.store.Put(ctx, r.tok, args[1], []byte(args[2]), []byte(args[3]), 1, true)
		if status != stratum.OK {
			return r.reportStatus(status)
		}
		if created {
			fmt.Fprintln(r.output, "created")
		} else {
			fmt.Fprintln(r.output, "updated")
		}
		return nil

	case "get":
		if len(args) != 3 {
			return fmt.Errorf("usage: get <storage> <key>")
		}
		value, status := r.store.Get(ctx, r.tok, args[1], []byte(args[2]))
		if status != stratum.OK {
			return r.reportStatus(status)
		}
		r.displayTable([]string{"key", "value"}, [][]string{{formatBytes([]byte(args[2])), formatBytes(value)}})
		return nil

	case "remove":
		if len(args) != 3 {
			return fmt.Errorf("usage: remove <storage> <key>")
		}
		return r.reportStatus(r.store.Remove(ctx, r.tok, args[1], []byte(args[2])))

	case "scan":
		if len(args) != 2 && len(args) != 4 {
			return fmt.Errorf("usage: scan <storage> [<begin> <end>]")
		}
		begin, beginEp := []byte(nil), stratum.EndpointInf
		end, endEp := []byte(nil), stratum.EndpointInf
		if len(args) == 4 {
			if args[2] != "-inf" {
				begin, beginEp = []byte(args[2]), stratum.EndpointInclusive
			}
			if args[3] != "+inf" {
				end, endEp = []byte(args[3]), stratum.EndpointInclusive
			}
		}
		entries, _, status := r.store.Scan(ctx, r.tok, args[1], begin, beginEp, end, endEp, 0, false)
		if status != stratum.OK {
			return r.reportStatus(status)
		}
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{formatBytes(e.Key), formatBytes(e.Value.Bytes())})
		}
		r.displayTable([]string{"key", "value"}, rows)
		return nil

	case "display":
		if len(args) != 2 {
			return fmt.Errorf("usage: display <storage>")
		}
		dump, status := r.store.Display(args[1])
		if status != stratum.OK {
			return r.reportStatus(status)
		}
		fmt.Fprint(r.output, dump)
		return nil

	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// reportStatus prints status when it is one of the OK family and returns
// it as an error otherwise, so warnings surface on errOutput.
func (r *REPL) reportStatus(status stratum.Status) error {
	if status.IsOK() {
		fmt.Fprintln(r.output, status.String())
		return nil
	}
	return status
}

// displayTable formats rows as an ASCII table.
func (r *REPL) displayTable(columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}

	// Calculate column widths
	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}

	// Check row data for wider values
	for _, row := range rows {
		for i, val := range row {
			if i < len(widths) && len(val) > widths[i] {
				widths[i] = len(val)
			}
		}
	}

	// Print header separator
	r.printSeparator(widths)

	// Print header
	r.printRow(columns, widths)

	// Print header separator
	r.printSeparator(widths)

	// Print rows
	for _, row := range rows {
		r.printRow(row, widths)
	}

	// Print footer separator
	r.printSeparator(widths)

	// Print row count
	fmt.Fprintf(r.output, "%d row(s)\n", len(rows))
}

// printSeparator prints a horizontal line separator.
func (r *REPL) printSeparator(widths []int) {
	fmt.Fprint(r.output, "+")
	for _, w := range widths {
		fmt.Fprint(r.output, strings.Repeat("-", w+2))
		fmt.Fprint(r.output, "+")
	}
	fmt.Fprintln(r.output)
}

// printRow prints a row of string values.
func (r *REPL) printRow(values []string, widths []int) {
	fmt.Fprint(r.output, "|")
	for i, val := range values {
		w := widths[i]
		fmt.Fprintf(r.output, " %-*s |", w, val)
	}
	fmt.Fprintln(r.output)
}

// formatBytes renders a byte string for table output: printable ASCII
// passes through, anything else is shown Go-quoted.
func formatBytes(b []byte) string {
	printable := true
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			printable = false
			break
		}
	}
	if printable {
		return string(b)
	}
	return fmt.Sprintf("%q", b)
}

// splitArgs tokenizes a command line into arguments, honoring
// double-quoted strings with backslash escapes.
func splitArgs(cmd string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote := false
	escaped := false
	hasToken := false

	for _, r := range cmd {
		if escaped {
			cur.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\':
			escaped = true
			hasToken = true
		case r == '"':
			inQuote = !inQuote
			hasToken = true
		case (r == ' ' || r == '\t') && !inQuote:
			if hasToken {
				args = append(args, cur.String())
				cur.Reset()
				hasToken = false
			}
		default:
			cur.WriteRune(r)
			hasToken = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quoted argument")
	}
	if escaped {
		return nil, fmt.Errorf("dangling escape at end of command")
	}
	if hasToken {
		args = append(args, cur.String())
	}
	return args, nil
}

// handleDotCommand processes special dot commands.
func (r *REPL) handleDotCommand(cmd string) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return
	}

	switch strings.ToLower(parts[0]) {
	case ".exit", ".quit":
		r.exitRequested = true
	case ".help":
		r.printHelp()
	case ".history":
		for _, h := range r.shell.History() {
			fmt.Fprintln(r.output, h)
		}
	default:
		fmt.Fprintf(r.errOutput, "Unknown command: %s\n", parts[0])
		fmt.Fprintln(r.errOutput, "Use \".help\" for usage hints.")
	}
}

// printHelp displays help information.
func (r *REPL) printHelp() {
	help := `
.exit                          Exit this program
.help                          Show this help message
.history                       Show command history
.quit                          Exit this program

create-storage <name>          Create a named storage
delete-storage <name>          Delete a named storage
storages                       List all storages
put <storage> <key> <value>    Insert or update a key
get <storage> <key>            Read a key's value
remove <storage> <key>         Delete a key
scan <storage> [begin end]     List entries in range (use -inf/+inf)
display <storage>              Dump the storage's tree structure

Quote arguments containing spaces: put db "a key" "a value".
End a line with \ to continue the command on the next line.
`
	fmt.Fprintln(r.output, help)
}

// printError prints an error message to the error output.
func (r *REPL) printError(err error) {
	fmt.Fprintf(r.errOutput, "Error: %v\n", err)
}
