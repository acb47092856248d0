// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jllopis/noterag/pkg/config"
)

var version = "dev"

type globalFlags struct {
	ConfigArgs []string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	cmd := args[0]
	switch cmd {
	case "help":
		printUsage()
		return
	case "version":
		printVersion()
		return
	case "adapters":
		runAdapters(global, args[1:])
		return
	}

	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatalWith(global, NewConfigError(err, configPath(global.ConfigArgs)))
	}

	if err := dispatch(ctx, global, cfg, cmd, args[1:]); err != nil {
		fatalWith(global, err)
	}
}

func dispatch(ctx context.Context, global globalFlags, cfg *config.Config, cmd string, args []string) error {
	switch cmd {
	case "serve":
		return runServe(ctx, cfg, args)
	case "mcp":
		return runMCP(ctx, cfg, args)
	case "ask":
		return runAsk(ctx, global, cfg, args)
	case "search":
		return runSearch(ctx, global, cfg, args)
	case "index":
		return runIndex(ctx, global, cfg, args)
	case "import":
		return runImport(ctx, global, cfg, args)
	case "docs":
		return runDocs(ctx, global, cfg, args)
	default:
		return NewInvalidArgumentError(cmd, fmt.Sprintf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var flags globalFlags

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--set":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --set")
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--set="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// configPath returns the last --config value, used in error hints.
func configPath(args []string) string {
	path := ""
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--config="):
			path = strings.TrimPrefix(args[i], "--config=")
		}
	}
	return path
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func newTabWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
}

func writeRow(writer *tabwriter.Writer, cols ...string) {
	for i, col := range cols {
		cols[i] = normalizeCell(col)
	}
	fmt.Fprintln(writer, strings.Join(cols, "\t"))
}

func normalizeCell(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return strings.Join(strings.Fields(value), " ")
}

// truncateMessage shortens value to limit runes, counting the ellipsis.
func truncateMessage(value string, limit int) string {
	value = normalizeCell(value)
	runes := []rune(value)
	if limit <= 0 || len(runes) <= limit {
		return value
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func printVersion() {
	fmt.Println(version)
}

func printUsage() {
	fmt.Println(`noterag: retrieval-augmented answers over a note corpus

Usage:
  noterag [global flags] <command> [args]

Global flags:
  --config <path>      Path to config.yaml (repeatable, later files win)
  --set key=value      Override config (repeatable)
  --json               JSON output

Commands:
  serve [--addr A] [--watch-seed F]   Run the HTTP API, optionally syncing a seed file
  mcp                                 Serve rag_search and rag_answer over MCP stdio
  ask <owner> <query...>              Stream an answer to stdout
  search [--k N] <owner> <query...>   Show the best matching passages
  index [--attempts N] <owner>        Build the owner's vector store, retrying provider failures
  import --owner <id> --seed <file>   Load documents from a YAML seed file
  import --owner <id> --pdf <file>    Load a PDF as one document
  docs list <owner>
  docs archive|restore|delete <id>
  adapters list [--type <type>]
  adapters info <name>
  version`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// fatalWith prints err with its code and hint, then exits.
func fatalWith(global globalFlags, err error) {
	AsCLIError(err).PrintError(global.JSON)
	os.Exit(1)
}
