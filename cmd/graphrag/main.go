// Command graphrag drives the engine from the terminal without a
// server: series management, imports, ingestion, builds, and queries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rdahmani/graphrag"
)

const usage = `usage: graphrag <command> [flags] [args]

commands:
  series   list series, or -create / -delete one
  import   copy local files into a series
  ingest   extract, chunk, and embed a series
  build    build the knowledge graph for a series
  query    answer a question over a series
  search   show the raw top-k chunk retrieval

run 'graphrag <command> -h' for the flags of one command.`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	_ = godotenv.Load()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "series":
		err = runSeries(args)
	case "import":
		err = runImport(args)
	case "ingest":
		err = runIngest(args)
	case "build":
		err = runBuild(args)
	case "query":
		err = runQuery(args)
	case "search":
		err = runSearch(args)
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(cmd+" failed", "error", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	config  string
	series  string
	jsonLog bool
}

func addCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.config, "config", "", "path to config file (YAML or JSON)")
	fs.StringVar(&cf.series, "series", "", "series name (falls back to the configured default)")
	fs.BoolVar(&cf.jsonLog, "json", false, "log as JSON instead of the pretty handler")
	return cf
}

// setup installs logging and wires an engine from config + environment.
func setup(cf *commonFlags) (graphrag.Engine, error) {
	if cf.jsonLog {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	} else {
		slog.SetDefault(slog.New(NewPrettyHandler(os.Stderr, PrettyHandlerOptions{})))
	}

	cfg := graphrag.DefaultConfig()
	if cf.config != "" {
		var err error
		cfg, err = graphrag.LoadConfig(cf.config)
		if err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	return graphrag.New(context.Background(), cfg)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSeries(args []string) error {
	fs := flag.NewFlagSet("series", flag.ExitOnError)
	cf := addCommon(fs)
	create := fs.String("create", "", "create a series with this name (empty quotes for a timestamp name)")
	del := fs.String("delete", "", "delete this series")
	fs.Parse(args)

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	switch {
	case *create != "" || hasFlag(fs, "create"):
		name, err := eng.CreateSeries(*create)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	case *del != "":
		return eng.DeleteSeries(context.Background(), *del)
	default:
		list, err := eng.Series()
		if err != nil {
			return err
		}
		for _, s := range list {
			fmt.Println(s)
		}
		return nil
	}
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	cf := addCommon(fs)
	fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("import: no files given")
	}

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	report, err := eng.ImportFiles(cf.series, fs.Args())
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cf := addCommon(fs)
	fs.Parse(args)

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	report, err := eng.Ingest(context.Background(), cf.series)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runBuild(args []string) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	cf := addCommon(fs)
	minConf := fs.Float64("min-conf", 0, "confidence floor for extracted entities")
	levels := fs.Int("levels", 0, "community levels")
	resolution := fs.Float64("resolution", 0, "community resolution")
	summaryLevels := fs.String("summary-levels", "", "comma-separated levels to summarize")
	timeout := fs.Duration("timeout", 0, "abort the build after this long")
	fs.Parse(args)

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	var opts []graphrag.BuildOption
	if *minConf > 0 {
		opts = append(opts, graphrag.WithMinConf(*minConf))
	}
	if *levels > 0 {
		opts = append(opts, graphrag.WithLevels(*levels))
	}
	if *resolution > 0 {
		opts = append(opts, graphrag.WithResolution(*resolution))
	}
	if *summaryLevels != "" {
		parsed, err := parseLevels(*summaryLevels)
		if err != nil {
			return err
		}
		opts = append(opts, graphrag.WithSummaryLevels(parsed...))
	}
	if *timeout > 0 {
		opts = append(opts, graphrag.WithBuildTimeout(*timeout))
	}

	report, err := eng.Build(context.Background(), cf.series, opts...)
	if report != nil {
		_ = printJSON(report)
	}
	return err
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	cf := addCommon(fs)
	mode := fs.String("mode", "", "query mode: graph, path, vector (empty routes automatically)")
	k := fs.Int("k", 0, "paths or chunks kept")
	n := fs.Int("n", 0, "seed entities for path retrieval")
	alpha := fs.Float64("alpha", 0, "per-hop decay of the path score")
	theta := fs.Float64("theta", 0, "confidence floor for path nodes and edges")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("query: no question given")
	}

	parsedMode, ok := graphrag.ParseMode(*mode)
	if !ok {
		return fmt.Errorf("query: unknown mode %q", *mode)
	}

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	var opts []graphrag.QueryOption
	if parsedMode != graphrag.ModeAuto {
		opts = append(opts, graphrag.WithMode(parsedMode))
	}
	if *k > 0 {
		opts = append(opts, graphrag.WithTopK(*k))
	}
	if *n > 0 {
		opts = append(opts, graphrag.WithTopN(*n))
	}
	if *alpha > 0 {
		opts = append(opts, graphrag.WithAlpha(*alpha))
	}
	if *theta > 0 {
		opts = append(opts, graphrag.WithTheta(*theta))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	answer, err := eng.Query(ctx, cf.series, question, opts...)
	if err != nil {
		return err
	}
	return printJSON(answer)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addCommon(fs)
	k := fs.Int("k", 0, "chunks returned")
	fs.Parse(args)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("search: no query given")
	}

	eng, err := setup(cf)
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	result, err := eng.Search(context.Background(), cf.series, question, *k)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// hasFlag reports whether a flag was set explicitly, so -create ""
// still means "create with a generated name".
func hasFlag(fs *flag.FlagSet, name string) bool {
	var set bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func parseLevels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("summary levels: %w", err)
		}
		out = append(out, n)
	}
	return out, nil
}
