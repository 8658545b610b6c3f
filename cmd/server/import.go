package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/theranorm/theranorm/pkg/merge"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/registry"
	"github.com/theranorm/theranorm/pkg/store"
	"github.com/theranorm/theranorm/pkg/therapy"
)

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sources := fs.String("sources", "", "comma-separated ingestor IDs (e.g. ncit-flat,chembl-sqlite)")
	all := fs.Bool("all", false, "run every registered ingestor")
	dbPath := fs.String("db", "theranorm.db", "database path")
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := store.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	if err := st.SeedImportSources(ctx, seedables()); err != nil {
		fmt.Fprintf(os.Stderr, "seed import sources: %v\n", err)
		os.Exit(1)
	}

	if !*all && *sources == "" {
		fmt.Println("Available ingestors:")
		fmt.Println()
		rows, _ := st.ListImportSources(ctx)
		for _, src := range rows {
			status := ""
			if src.LastStatus != nil {
				status = fmt.Sprintf("  [%d]", *src.LastStatus)
			}
			fmt.Printf("  %-16s  %s  (%s)%s\n", src.IngestorID, src.Description, src.Src, status)
		}
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  theranorm import --sources <id>[,<id>...] [--db <path>]")
		fmt.Println("  theranorm import --all [--db <path>]")
		return
	}

	var ids []string
	if !*all {
		for _, id := range strings.Split(*sources, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	reg := newRegistry(st, logger)
	reports, err := reg.Import(ctx, ids)
	for _, rep := range reports {
		fmt.Printf("[%s] %s %s: %d records in %s\n",
			rep.IngestorID, rep.Src, rep.Version, rep.Records, rep.Elapsed.Round(time.Millisecond))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func cmdRebuild(args []string) {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	dbPath := fs.String("db", "theranorm.db", "database path")
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	st, err := store.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	reg := newRegistry(st, logger)
	if err := reg.Rebuild(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}
}

func cmdNormalize(args []string) {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	dbPath := fs.String("db", "theranorm.db", "database path")
	srcFilter := fs.String("sources", "", "comma-separated source restriction (e.g. RxNorm,NCIt)")
	noInfer := fs.Bool("no-infer", false, "disable namespace inference")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: theranorm normalize [flags] <query>")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	st, err := store.Open(*dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	engine := query.NewEngine(therapy.DefaultPriorities(), nil, logger)
	builder := merge.NewBuilder(therapy.DefaultPriorities(), logger)
	reg := registry.New(st, engine, builder, logger)
	if err := reg.Reload(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "load snapshot: %v\n", err)
		os.Exit(1)
	}

	opts := &query.Options{NoInfer: *noInfer}
	if *srcFilter != "" {
		for _, name := range strings.Split(*srcFilter, ",") {
			src, ok := therapy.ParseSource(strings.TrimSpace(name))
			if !ok {
				fmt.Fprintf(os.Stderr, "unknown source %q\n", name)
				os.Exit(1)
			}
			opts.Sources = append(opts.Sources, src)
		}
	}

	res, err := engine.Normalize(fs.Arg(0), opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "normalize: %v\n", err)
		os.Exit(1)
	}

	out := struct {
		Outcome string `json:"outcome"`
		*query.Result
	}{Outcome: res.Outcome.String(), Result: res}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
}

func newRegistry(st *store.Store, logger *slog.Logger) *registry.Registry {
	priorities := therapy.DefaultPriorities()
	engine := query.NewEngine(priorities, nil, logger)
	builder := merge.NewBuilder(priorities, logger)
	return registry.New(st, engine, builder, logger)
}
