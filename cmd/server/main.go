package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theranorm/theranorm/pkg/api"
	"github.com/theranorm/theranorm/pkg/ingest"
	"github.com/theranorm/theranorm/pkg/merge"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/registry"
	"github.com/theranorm/theranorm/pkg/store"
	"github.com/theranorm/theranorm/pkg/therapy"
)

const version = "0.3.0"

type config struct {
	Addr          string         `yaml:"addr"`
	DBPath        string         `yaml:"db_path"`
	CheckInterval string         `yaml:"check_interval"` // Go duration, e.g. "12h"; empty disables
	Priorities    map[string]int `yaml:"priorities"`
	// TierOrder overrides the lookup tiers below CONCEPT_ID, e.g.
	// [[label], [alias, trade_name], [xref], [associated_with]].
	TierOrder [][]string `yaml:"tier_order"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "import":
		cmdImport(os.Args[2:])
	case "rebuild":
		cmdRebuild(os.Args[2:])
	case "normalize":
		cmdNormalize(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: theranorm <command>

Commands:
  serve      Start the HTTP + MCP server
  import     Run source ingestors and rebuild the merged set
  rebuild    Recompute merge groups from stored records
  normalize  Normalize a single query from the command line
`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := loadConfig(*cfgPath, logger)
	priorities := buildPriorities(cfg, logger)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.SeedImportSources(ctx, seedables()); err != nil {
		logger.Error("seed import sources", "error", err)
		os.Exit(1)
	}

	engine := query.NewEngine(priorities, buildTiers(cfg, logger), logger)
	builder := merge.NewBuilder(priorities, logger)
	reg := registry.New(st, engine, builder, logger)

	if err := reg.Reload(ctx); err != nil {
		logger.Error("initial snapshot load failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(engine, reg))
	api.MountMCP(mux, api.NewMCPServer("theranorm", version, engine, reg))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	if cfg.CheckInterval != "" {
		interval, err := time.ParseDuration(cfg.CheckInterval)
		if err != nil || interval <= 0 {
			logger.Error("invalid check_interval", "value", cfg.CheckInterval, "error", err)
			os.Exit(1)
		}
		go ingest.NewChecker(st, logger, interval).Start(ctx)
	}

	// SIGHUP: re-publish the snapshot from the store (e.g. after an offline
	// import into the same database file).
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			logger.Info("SIGHUP received, reloading snapshot")
			if err := reg.Reload(context.Background()); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}()

	go func() {
		logger.Info("theranorm listening", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown(context.Background())
}

func loadConfig(path string, logger *slog.Logger) config {
	cfg := config{
		Addr:   ":8427",
		DBPath: "theranorm.db",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg
		}
		logger.Error("read config", "error", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("parse config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func buildPriorities(cfg config, logger *slog.Logger) therapy.PriorityTable {
	if len(cfg.Priorities) == 0 {
		return therapy.DefaultPriorities()
	}
	table := make(therapy.PriorityTable, len(cfg.Priorities))
	for name, rank := range cfg.Priorities {
		src, ok := therapy.ParseSource(name)
		if !ok {
			logger.Error("unknown source in priorities config", "source", name)
			os.Exit(1)
		}
		table[src] = rank
	}
	return table
}

func buildTiers(cfg config, logger *slog.Logger) [][]therapy.RefType {
	if len(cfg.TierOrder) == 0 {
		return nil // engine falls back to the default order
	}
	tiers := make([][]therapy.RefType, 0, len(cfg.TierOrder))
	for _, names := range cfg.TierOrder {
		tier := make([]therapy.RefType, 0, len(names))
		for _, name := range names {
			rt, ok := therapy.ParseRefType(name)
			if !ok {
				logger.Error("unknown term category in tier_order config", "category", name)
				os.Exit(1)
			}
			tier = append(tier, rt)
		}
		tiers = append(tiers, tier)
	}
	return tiers
}

func seedables() []store.Seedable {
	ings := ingest.All()
	out := make([]store.Seedable, len(ings))
	for i, ing := range ings {
		out[i] = ing
	}
	return out
}
