package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackmap/internal/config"
	"github.com/matzehuels/stackmap/pkg/pipeline"
	"github.com/matzehuels/stackmap/pkg/results"
	"github.com/matzehuels/stackmap/pkg/results/sqlite"
)

// resolveFlags holds command-line overrides for the configuration file.
type resolveFlags struct {
	baseURL      string
	agentMarker  string
	concurrency  int
	fetchTimeout time.Duration
	kind         string
	dir          string
	stash        string
	redisAddr    string
	redisPrefix  string
	noCache      bool
	output       string
	sqlitePath   string
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var flags resolveFlags

	cmd := &cobra.Command{
		Use:   "resolve [traces.json]",
		Short: "Resolve recorded stack traces to original source positions",
		Long: `Resolve reads a JSON object mapping observation ids to lists of raw stack
trace strings, maps every frame through the inline source maps of the scripts
it references, and writes the resolved stacks with their frames and source
files. With no file, or "-", traces are read from stdin.`,
		Example: `  stackmap resolve --base http://localhost:8080/ --content dir --dir ./site traces.json
  stackmap resolve -c stackmap.toml --sqlite leaks.db traces.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "-"
			if len(args) == 1 {
				input = args[0]
			}
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return c.runResolve(cmd.Context(), cmd, input, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.baseURL, "base", "b", "", "page URL relative frame files resolve against")
	f.StringVar(&flags.agentMarker, "agent-marker", pipeline.DefaultAgentMarker, "drop frames mentioning this string (empty disables)")
	f.IntVar(&flags.concurrency, "concurrency", pipeline.DefaultConcurrency, "URLs resolved in parallel")
	f.DurationVar(&flags.fetchTimeout, "fetch-timeout", pipeline.DefaultFetchTimeout, "timeout per resource fetch")
	f.StringVar(&flags.kind, "content", config.KindHTTP, "content store: dir, http, memory, redis")
	f.StringVar(&flags.dir, "dir", "", "served root for --content dir")
	f.StringVar(&flags.stash, "stash", "", "JSON resource stash for --content memory")
	f.StringVar(&flags.redisAddr, "redis-addr", "", "Redis address for --content redis")
	f.StringVar(&flags.redisPrefix, "redis-prefix", "", "Redis key prefix for --content redis")
	f.BoolVar(&flags.noCache, "no-cache", false, "disable the HTTP response cache")
	f.StringVarP(&flags.output, "output", "o", "", "write JSON results to file (default stdout)")
	f.StringVar(&flags.sqlitePath, "sqlite", "", "store results in a SQLite database instead of JSON")

	return cmd
}

// apply copies explicitly set flags onto cfg.
func (f *resolveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("base") {
		cfg.BaseURL = f.baseURL
	}
	if set("agent-marker") {
		cfg.AgentMarker = f.agentMarker
	}
	if set("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if set("fetch-timeout") {
		cfg.FetchTimeout.Duration = f.fetchTimeout
	}
	if set("content") {
		cfg.Content.Kind = f.kind
	}
	if set("dir") {
		cfg.Content.Dir = f.dir
	}
	if set("stash") {
		cfg.Content.Stash = f.stash
	}
	if set("redis-addr") {
		cfg.Content.RedisAddr = f.redisAddr
	}
	if set("redis-prefix") {
		cfg.Content.RedisPrefix = f.redisPrefix
	}
	if f.noCache {
		cfg.Content.CacheTTL.Duration = 0
	}
	if set("output") {
		cfg.Output.JSON = f.output
	}
	if set("sqlite") {
		cfg.Output.SQLite = f.sqlitePath
	}
}

// loadConfig reads the --config file, or returns defaults without one.
func (c *CLI) loadConfig() (config.Config, error) {
	if c.configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	c.Logger.Debug("loaded config", "path", c.configPath, "config", cfg.String())
	return cfg, nil
}

// runResolve loads traces, runs the pipeline, and writes output.
func (c *CLI) runResolve(ctx context.Context, cmd *cobra.Command, input string, cfg config.Config) error {
	traces, err := readTraces(cmd.InOrStdin(), input)
	if err != nil {
		return err
	}

	store, closeStore, err := c.openStore(ctx, cfg.Content)
	if err != nil {
		return fmt.Errorf("open content store: %w", err)
	}
	defer closeStore()

	var (
		sink   results.Sink
		memory *results.Results
		db     *sqlite.Store
		run    *sqlite.Sink
	)
	if cfg.Output.SQLite != "" {
		db, err = sqlite.Open(cfg.Output.SQLite)
		if err != nil {
			return err
		}
		defer db.Close()
		run, err = db.NewRun(ctx, cfg.BaseURL)
		if err != nil {
			return err
		}
		sink = run
	} else {
		memory = results.New()
		sink = memory
	}

	opts := cfg.PipelineOptions()
	opts.Logger = c.Logger
	runner := pipeline.NewRunner(store, sink, c.Logger)

	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, fmt.Sprintf("Resolving %d observations...", len(traces)))
	spinner.Start()

	res, err := runner.Run(ctx, traces, opts)
	if err != nil {
		spinner.StopWithError("Resolution failed")
		return err
	}
	spinner.Stop()
	prog.done(fmt.Sprintf("Resolved %d unique stacks", res.Stats.UniqueTraces))

	if run != nil {
		if err := run.SaveStacks(ctx, res.Stacks); err != nil {
			return fmt.Errorf("save stacks: %w", err)
		}
	} else if err := writeJSON(cmd.OutOrStdout(), cfg.Output.JSON, memory, res.Stacks); err != nil {
		return err
	}

	printSuccess("Resolution complete")
	switch {
	case run != nil:
		printFile(cfg.Output.SQLite)
		printKeyValue("Run", run.RunID())
	case cfg.Output.JSON != "":
		printFile(cfg.Output.JSON)
	}
	printStats(res.Stats.Traces, res.Stats.Frames, res.Stats.URLs, res.Stats.MappedURLs)
	printFailures(res.Failures)
	return nil
}

// readTraces decodes the traces file, or stdin for "-".
func readTraces(stdin io.Reader, input string) (pipeline.GrowthStackTraces, error) {
	r := stdin
	if input != "-" {
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("open traces: %w", err)
		}
		defer f.Close()
		r = f
	}
	var traces pipeline.GrowthStackTraces
	if err := json.NewDecoder(r).Decode(&traces); err != nil {
		return nil, fmt.Errorf("decode traces %s: %w", input, err)
	}
	return traces, nil
}

// writeJSON writes the results export to path, or to stdout when path is
// empty.
func writeJSON(stdout io.Writer, path string, r *results.Results, stacks pipeline.GrowthStacks) error {
	if path == "" {
		return r.WriteJSON(stdout, stacks)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.WriteJSON(f, stacks); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// printFailures lists URLs whose source maps could not be used.
func printFailures(failures map[string]error) {
	if len(failures) == 0 {
		return
	}
	urls := make([]string, 0, len(failures))
	for u := range failures {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	printNewline()
	printWarning("%d source maps unavailable, raw positions kept", len(urls))
	for _, u := range urls {
		printDetail("%s: %v", u, failures[u])
	}
}
