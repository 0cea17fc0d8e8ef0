package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"askcode/internal/budget"
	"askcode/internal/config"
	"askcode/internal/engine"
	"askcode/internal/llm"
	"askcode/internal/mcp"
	"askcode/internal/metrics"
	"askcode/internal/query"
	"askcode/internal/tracelog"
	"askcode/internal/vectorstore"
	"askcode/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	app := &cli.App{
		Name:      "askcode",
		Usage:     "Answer questions about an indexed codebase with multi-channel retrieval",
		Version:   fmt.Sprintf("%s (built %s)", version, buildTime),
		ArgsUsage: "[question]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Emit the full response as JSON instead of plain text",
			},
			&cli.BoolFlag{
				Name:  "selftest",
				Usage: "Run built-in retrieval sanity checks against the live store",
			},
		},
		Before: setupLogger,
		Action: askCommand,
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve the engine over the Model Context Protocol on stdio",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// deps bundles everything a command needs, built once from config.
type deps struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	pusher  *metrics.Pusher
	store   *vectorstore.Client
	trace   *tracelog.Log
	engine  *engine.Engine
	logger  *slog.Logger
}

func buildDeps(c *cli.Context) (*deps, error) {
	logger := slog.Default()

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	m := metrics.New()
	pusher := metrics.NewPusher(cfg.PushgatewayURL, cfg.PushJob, cfg.PushInterval, m, logger)

	tracker := budget.NewTracker(cfg.MaxBudgetUSD, budget.DefaultPricing())

	model, err := llm.New(llm.Config{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		EmbedModel:   cfg.EmbedModel,
		ChatModel:    cfg.ChatModel,
		Concurrency:  cfg.EmbedConcurrency,
		Timeout:      cfg.CallTimeout,
		RetryBackoff: cfg.RetryBackoff,
		CacheSize:    cfg.EmbedCacheSize,
	}, tracker, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	store := vectorstore.New(vectorstore.Config{
		BaseURL:      cfg.StoreURL,
		Class:        cfg.StoreClass,
		EmbedVersion: cfg.EmbedVersion,
		Timeout:      cfg.StoreTimeout,
	}, logger)

	var trace *tracelog.Log
	if cfg.TraceLogPath != "" {
		trace, err = tracelog.New(cfg.TraceLogPath, logger)
		if err != nil {
			// Tracing is diagnostic; a broken trace DB must not block answers.
			logger.Warn("trace log disabled", "path", cfg.TraceLogPath, "err", err)
			trace = nil
		}
	}

	analyzer := query.NewAnalyzer()

	opts := engine.Options{
		TopK:            cfg.TopK,
		MaxSnippetChars: cfg.MaxSnippetChars,
		MinLines:        cfg.MinLines,
		AutoConfirm:     cfg.AutoConfirm,
		Weights:         cfg.Weights,
	}

	var sink engine.TraceSink
	if trace != nil {
		sink = trace
	}
	eng, err := engine.New(analyzer, store, model, opts, m, sink, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &deps{
		cfg:     cfg,
		metrics: m,
		pusher:  pusher,
		store:   store,
		trace:   trace,
		engine:  eng,
		logger:  logger,
	}, nil
}

func (d *deps) close() {
	if d.trace != nil {
		if err := d.trace.Close(); err != nil {
			d.logger.Warn("closing trace log", "err", err)
		}
	}
}

func askCommand(c *cli.Context) error {
	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if d.pusher != nil {
		d.pusher.Start(ctx)
		defer d.pusher.Wait()
	}

	if c.Bool("selftest") {
		return selftest(ctx, d)
	}

	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return cli.Exit("a question is required (or use --selftest)", 1)
	}

	resp, err := d.engine.Ask(ctx, question)
	if err != nil {
		// Runtime failures are reported but do not change the exit code;
		// only missing input does.
		fmt.Fprintln(os.Stderr, "Error:", err)
		return nil
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Println(resp.Answer)
	if resp.Inconclusive {
		fmt.Fprintln(os.Stderr, "(low confidence: the retrieved fragments scored below the adaptive threshold)")
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	d, err := buildDeps(c)
	if err != nil {
		return err
	}
	defer d.close()

	// stdout is reserved for the MCP protocol; everything else goes to stderr.
	d.logger.Info("askcode MCP server starting",
		"version", version,
		"chatModel", d.cfg.ChatModel,
		"embedVersion", d.store.EmbedVersion())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if d.pusher != nil {
		d.pusher.Start(ctx)
		defer d.pusher.Wait()
	}

	server := mcp.NewServer(d.engine, d.store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

// selftestCases exercise one question per category against the live
// store. Each question carries its category's trigger word so the
// expectation holds independent of index content.
var selftestCases = []struct {
	question     string
	wantCategory types.Category
}{
	{"what is the purpose of the load_balance module?", types.CategoryPurpose},
	{"which parameters does the retry policy accept?", types.CategoryParameter},
	{"show the implementation of the trailing manager", types.CategoryImplementation},
}

// selftest runs a handful of retrieval sanity checks against the live
// store and reports pass/fail per case. Like the ask path, it only logs
// failures; the exit code stays zero.
func selftest(ctx context.Context, d *deps) error {
	count, err := d.store.Count(ctx)
	if err != nil {
		fmt.Printf("FAIL store: %v\n", err)
		return nil
	}
	fmt.Printf("store: %d fragments indexed\n", count)
	if count == 0 {
		fmt.Println("FAIL store: no fragments indexed")
		return nil
	}

	failed := 0
	for _, tc := range selftestCases {
		results, qc, err := d.engine.Search(ctx, tc.question)
		switch {
		case err != nil:
			fmt.Printf("FAIL %q: %v\n", tc.question, err)
			failed++
		case qc.Category != tc.wantCategory:
			fmt.Printf("FAIL %q: category %s, want %s\n", tc.question, qc.Category, tc.wantCategory)
			failed++
		case len(results) == 0:
			fmt.Printf("FAIL %q: no results\n", tc.question)
			failed++
		default:
			fmt.Printf("PASS %q: %d results, top %s (%.3f)\n",
				tc.question, len(results), results[0].FilePath, results[0].FinalScore)
		}
	}

	if failed > 0 {
		fmt.Printf("selftest: %d of %d cases failed\n", failed, len(selftestCases))
		return nil
	}
	fmt.Println("selftest passed")
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
