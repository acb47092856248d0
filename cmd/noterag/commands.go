// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jllopis/noterag/pkg/config"
	"github.com/jllopis/noterag/pkg/corpus"
	noteragmcp "github.com/jllopis/noterag/pkg/mcp"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/rag"
	"github.com/jllopis/noterag/pkg/resilience"
	"github.com/jllopis/noterag/pkg/server"
)

type askResult struct {
	UserID string `json:"userId"`
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

type searchHit struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
}

type indexResult struct {
	UserID    string `json:"userId"`
	Passages  int    `json:"passages"`
	Dimension int    `json:"dimension"`
	Attempts  int    `json:"attempts"`
}

type docRow struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ParentID  string `json:"parentId,omitempty"`
	Archived  bool   `json:"archived"`
	UpdatedAt string `json:"updatedAt"`
}

func withApp(cfg *config.Config, fn func(a *app) error) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runServe(ctx context.Context, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := cmd.String("addr", cfg.Server.Addr, "Listen address")
	watchSeed := cmd.String("watch-seed", "", "Seed file to import and keep in sync")
	watchInterval := cmd.Duration("watch-interval", 2*time.Second, "Seed polling interval")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("serve", err.Error())
	}
	return withApp(cfg, func(a *app) error {
		if *watchSeed != "" {
			w := corpus.NewSeedWatcher(a.store, *watchSeed,
				corpus.WithWatchInterval(*watchInterval),
				corpus.WithWatchLogger(a.logger),
			)
			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()
		}
		srv := server.New(a.orch,
			server.WithEmbedder(a.embedder),
			server.WithGenerator(a.gen),
			server.WithLogger(a.logger),
		)
		return srv.ListenAndServe(ctx, *addr)
	})
}

func runMCP(_ context.Context, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		return NewUsageError("noterag mcp")
	}
	return withApp(cfg, func(a *app) error {
		a.logger.Info("mcp.serve.stdio")
		return noteragmcp.NewServer("noterag", version, a.orch).ServeStdio()
	})
}

func runAsk(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return NewUsageError("noterag ask <owner> <query...>")
	}
	owner, query := args[0], strings.Join(args[1:], " ")
	return withApp(cfg, func(a *app) error {
		return ask(ctx, a.orch, os.Stdout, global.JSON, owner, query)
	})
}

// ask streams the answer to w as it arrives, or prints it as one JSON
// object when asJSON is set.
func ask(ctx context.Context, orch *rag.Orchestrator, w io.Writer, asJSON bool, owner, query string) error {
	if asJSON {
		answer, err := orch.Answer(ctx, owner, query)
		if err != nil {
			return err
		}
		return encodeJSON(w, askResult{UserID: owner, Query: query, Answer: answer})
	}
	return orch.AnswerStream(ctx, owner, query, rag.StreamHandler{
		OnChunk:    func(fragment string) { fmt.Fprint(w, fragment) },
		OnComplete: func() { fmt.Fprintln(w) },
	})
}

func runSearch(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("search", flag.ContinueOnError)
	k := cmd.Int("k", cfg.Retrieval.TopK, "Number of passages")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("search", err.Error())
	}
	if cmd.NArg() < 2 {
		return NewUsageError("noterag search [--k N] <owner> <query...>")
	}
	owner, query := cmd.Arg(0), strings.Join(cmd.Args()[1:], " ")
	return withApp(cfg, func(a *app) error {
		return search(ctx, a.orch, os.Stdout, global.JSON, owner, query, *k)
	})
}

func search(ctx context.Context, orch *rag.Orchestrator, w io.Writer, asJSON bool, owner, query string, k int) error {
	hits, err := orch.Search(ctx, owner, query, k)
	if err != nil {
		return err
	}
	out := make([]searchHit, 0, len(hits))
	for i, h := range hits {
		out = append(out, searchHit{
			Rank:       i + 1,
			Score:      h.Score,
			DocumentID: h.Metadata.DocumentID,
			Title:      h.Metadata.Title,
			Text:       h.Text,
		})
	}
	if asJSON {
		return encodeJSON(w, out)
	}
	if len(out) == 0 {
		fmt.Fprintln(w, "No passages found.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	writeRow(tw, "RANK", "SCORE", "DOCUMENT", "TITLE", "PASSAGE")
	for _, h := range out {
		writeRow(tw, fmt.Sprint(h.Rank), fmt.Sprintf("%.3f", h.Score), h.DocumentID, h.Title, truncateMessage(h.Text, 60))
	}
	return tw.Flush()
}

func runIndex(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("index", flag.ContinueOnError)
	attempts := cmd.Int("attempts", 3, "Build attempts before giving up")
	delay := cmd.Duration("delay", 500*time.Millisecond, "Initial delay between attempts")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("index", err.Error())
	}
	if cmd.NArg() != 1 {
		return NewUsageError("noterag index [--attempts N] [--delay D] <owner>")
	}
	rc := resilience.DefaultRetryConfig().WithMaxAttempts(*attempts).WithInitialDelay(*delay)
	return withApp(cfg, func(a *app) error {
		return index(ctx, a, os.Stdout, global.JSON, cmd.Arg(0), rc)
	})
}

// index builds the owner's store, retrying while the failure is
// recoverable. A failed build caches nothing, so each attempt starts clean.
func index(ctx context.Context, a *app, w io.Writer, asJSON bool, owner string, rc resilience.RetryConfig) error {
	tries := 0
	rc = rc.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		a.logger.Warn("index.retry",
			slog.String("owner_id", owner),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	vs, err := resilience.Retry(ctx, rc, func(ctx context.Context) (*memory.VectorStore, error) {
		tries++
		return a.orch.Build(ctx, owner)
	})
	if err != nil {
		return err
	}
	res := indexResult{UserID: owner, Passages: vs.Len(), Dimension: vs.Dimension(), Attempts: tries}
	if asJSON {
		return encodeJSON(w, res)
	}
	fmt.Fprintf(w, "Indexed %d passages for %s (dimension %d, attempts %d)\n", res.Passages, owner, res.Dimension, res.Attempts)
	return nil
}

func runImport(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	cmd := flag.NewFlagSet("import", flag.ContinueOnError)
	owner := cmd.String("owner", "", "Owner of imported PDF documents")
	seed := cmd.String("seed", "", "YAML seed file")
	pdf := cmd.String("pdf", "", "PDF file")
	if err := cmd.Parse(args); err != nil {
		return NewInvalidArgumentError("import", err.Error())
	}
	if (*seed == "") == (*pdf == "") {
		return NewUsageError("noterag import --seed <file> | --owner <id> --pdf <file>")
	}
	if *pdf != "" && *owner == "" {
		return NewInvalidArgumentError("owner", "--owner is required with --pdf")
	}
	return withApp(cfg, func(a *app) error {
		var imported []corpus.Document
		var err error
		if *seed != "" {
			imported, err = corpus.LoadSeed(ctx, a.store, *seed)
		} else {
			imported, err = importPDF(ctx, a.store, *pdf, *owner)
		}
		if err != nil {
			return err
		}
		return printDocs(os.Stdout, global.JSON, imported)
	})
}

func importPDF(ctx context.Context, store corpus.Store, path, owner string) ([]corpus.Document, error) {
	doc, err := corpus.FromPDF(path, owner)
	if err != nil {
		return nil, err
	}
	return corpus.Import(ctx, store, []corpus.Document{doc})
}

func runDocs(ctx context.Context, global globalFlags, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return NewUsageError("noterag docs <list <owner>|archive <id>|restore <id>|delete <id>>")
	}
	return withApp(cfg, func(a *app) error {
		return docs(ctx, a.store, os.Stdout, global.JSON, args[0], args[1])
	})
}

func docs(ctx context.Context, store corpus.Store, w io.Writer, asJSON bool, action, arg string) error {
	var err error
	switch action {
	case "list":
		var list []corpus.Document
		if list, err = store.Documents(ctx, arg); err != nil {
			return err
		}
		return printDocs(w, asJSON, list)
	case "archive":
		err = store.Archive(ctx, arg)
	case "restore":
		err = store.Restore(ctx, arg)
	case "delete":
		err = store.Delete(ctx, arg)
	default:
		return NewInvalidArgumentError(action, fmt.Sprintf("unknown docs action %q", action))
	}
	if err != nil {
		return err
	}
	if asJSON {
		return encodeJSON(w, map[string]string{"id": arg, "action": action})
	}
	fmt.Fprintf(w, "%s: %s\n", action, arg)
	return nil
}

func printDocs(w io.Writer, asJSON bool, list []corpus.Document) error {
	rows := make([]docRow, 0, len(list))
	for _, d := range list {
		rows = append(rows, docRow{
			ID:        d.ID,
			Title:     d.Title,
			ParentID:  d.ParentID,
			Archived:  d.Archived,
			UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if asJSON {
		return encodeJSON(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "No documents.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	writeRow(tw, "ID", "TITLE", "PARENT", "UPDATED")
	for _, r := range rows {
		writeRow(tw, r.ID, r.Title, r.ParentID, r.UpdatedAt)
	}
	return tw.Flush()
}

func encodeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
