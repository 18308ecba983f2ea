// cmd/extractstudio/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valpere/extractstudio/internal/config"
	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/monitoring"
	"github.com/valpere/extractstudio/internal/nlp"
	"github.com/valpere/extractstudio/internal/output"
	"github.com/valpere/extractstudio/internal/pipeline"
	"github.com/valpere/extractstudio/internal/scraper"
	"github.com/valpere/extractstudio/internal/search"
	"github.com/valpere/extractstudio/internal/security"
	"github.com/valpere/extractstudio/internal/utils"
	"github.com/valpere/extractstudio/pkg/types"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const storageTimeout = 2 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(errors.ExitGeneral)
	}
	os.Exit(dispatch(os.Args[1], os.Args[2:]))
}

func dispatch(command string, args []string) int {
	switch command {
	case "run":
		return runCommand(args)
	case "validate":
		return validateCommand(args)
	case "template":
		return templateCommand(args)
	case "version", "--version":
		printVersion()
		return errors.ExitOK
	case "help", "--help", "-h":
		printUsage()
		return errors.ExitOK
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command '%s'\n\n", command)
		printUsage()
		return errors.ExitGeneral
	}
}

type runOptions struct {
	verbose            bool
	quiet              bool
	jsonLogs           bool
	metricsAddr        string
	outputDir          string
	treeDir            string
	maxResults         int
	disableSearch      bool
	disableReadability bool
}

func runCommand(args []string) int {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.BoolVar(&opts.verbose, "v", false, "verbose output")
	fs.BoolVar(&opts.verbose, "verbose", false, "verbose output")
	fs.BoolVar(&opts.quiet, "quiet", false, "hide progress lines")
	fs.BoolVar(&opts.jsonLogs, "log-json", false, "write JSON logs")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address")
	fs.StringVar(&opts.outputDir, "output-dir", config.DefaultOutputDir, "export directory for URL and query runs")
	fs.StringVar(&opts.treeDir, "save-tree", "", "also save every record as a folder tree under this directory")
	fs.IntVar(&opts.maxResults, "max-results", config.DefaultSearchResults, "search results used as seeds in query mode")
	fs.BoolVar(&opts.disableSearch, "no-search", false, "fail query input instead of searching the web")
	fs.BoolVar(&opts.disableReadability, "no-readability", false, "use only the built-in main-content heuristics")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return errors.ExitGeneral
	}
	if len(positional) == 0 {
		fmt.Fprintln(os.Stderr, "Error: run requires a config file, URL or search query")
		return errors.ExitGeneral
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(opts.verbose, opts.jsonLogs)
	defer logger.Sync()

	return run(ctx, strings.Join(positional, " "), opts, logger)
}

func run(ctx context.Context, input string, opts runOptions, logger utils.Logger) int {
	settings := config.DefaultSettings()
	settings.Search.MaxResults = opts.maxResults

	job, err := resolveJob(input, settings, opts.outputDir)
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err, opts.verbose))
		return errors.ExitCode(err)
	}
	auditJob(input, job, logger)

	collector := monitoring.NewCollector(monitoring.MetricsConfig{})
	if opts.metricsAddr != "" {
		health := monitoring.NewHealthManager(monitoring.HealthConfig{Version: version})
		health.RegisterCheck(monitoring.LastRunCheck(collector))
		health.RegisterCheck(monitoring.GoroutineHealthCheck(10000))

		server := monitoring.NewServer(opts.metricsAddr, collector, health, logger)
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return errors.ExitGeneral
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		fmt.Fprintf(os.Stderr, "Metrics available at http://%s/metrics\n", server.Addr())
	}

	var searcher search.Searcher
	if !opts.disableSearch {
		client := scraper.NewHTTPClient(scraper.ClientConfig{
			Timeout:   job.Settings().RequestTimeout,
			UserAgent: config.DefaultUserAgent,
		})
		searcher = search.NewDuckDuckGo(client, logger)
	}

	p := pipeline.New(pipeline.Options{
		Logger:             logger,
		Progress:           progressPrinter(os.Stderr, opts.quiet),
		Searcher:           searcher,
		NLP:                nlp.NewLexical(),
		Observer:           collector,
		OutputDir:          opts.outputDir,
		Settings:           settings,
		DisableReadability: opts.disableReadability,
	})

	records, metrics := p.RunJob(ctx, job)
	runErr := metrics.Err()

	// Partial results of an interrupted or failed run are still saved.
	saveErr := save(job, records, opts, logger)

	printSummary(os.Stdout, metrics, len(records))

	if runErr != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(runErr, opts.verbose))
		return errors.ExitCode(runErr)
	}
	if saveErr != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(saveErr, opts.verbose))
		return errors.ExitCode(saveErr)
	}
	return errors.ExitOK
}

// resolveJob loads a config file, or synthesises a job for a URL or query.
func resolveJob(input string, settings config.Settings, outputDir string) (*config.Job, error) {
	if pipeline.IsConfigPath(input) {
		return config.Load(input)
	}
	return config.NewQueryJob(input, settings, outputDir)
}

// auditJob logs security findings; they never stop a run.
func auditJob(input string, job *config.Job, logger utils.Logger) {
	var raw []byte
	if pipeline.IsConfigPath(input) {
		raw, _ = os.ReadFile(input)
	}
	for _, issue := range security.NewAuditor(nil, logger).AuditJob(job, raw).Issues {
		logger.Warnf("security [%s]: %s", issue.Severity, issue.Message)
	}
}

func save(job *config.Job, records []types.EnrichedRecord, opts runOptions, logger utils.Logger) error {
	var errs []error

	results, err := output.NewManager(logger).ExportJob(job, records)
	for _, r := range results {
		if r.Success {
			fmt.Printf("Saved %d records to %s\n", r.RecordsCount, r.FilePath)
		}
	}
	if err != nil {
		errs = append(errs, err)
	}

	if cfg := job.Storage(); cfg != nil && len(records) > 0 {
		if err := store(*cfg, records, logger); err != nil {
			errs = append(errs, err)
		}
	}

	if opts.treeDir != "" && len(records) > 0 {
		tree, err := output.NewTreeWriter(opts.treeDir, job.Label(), logger)
		if err == nil {
			err = tree.Write(records)
			if closeErr := tree.Close(); err == nil {
				err = closeErr
			}
		}
		if err != nil {
			errs = append(errs, errors.Output("save tree", err))
		} else {
			fmt.Printf("Saved %d record folders under %s\n", len(records), tree.Root())
		}
	}

	return errors.Join(errs...)
}

// store runs on its own context so an interrupted run still persists what
// it produced.
func store(cfg config.StorageConfig, records []types.EnrichedRecord, logger utils.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	sink, err := output.OpenSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	n, err := sink.Store(ctx, records)
	if err != nil {
		return err
	}
	fmt.Printf("Stored %d records in %s\n", n, cfg.Driver)
	return nil
}

type validateOptions struct {
	verbose bool
	watch   bool
	strict  bool
	blocked string
}

func validateCommand(args []string) int {
	var opts validateOptions
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.BoolVar(&opts.verbose, "v", false, "show configuration details")
	fs.BoolVar(&opts.verbose, "verbose", false, "show configuration details")
	fs.BoolVar(&opts.watch, "watch", false, "re-validate whenever the file changes")
	fs.BoolVar(&opts.strict, "strict", false, "fail on critical security findings")
	fs.StringVar(&opts.blocked, "blocked-domains", "", "comma-separated hosts that must not be crawled")

	positional, err := parseArgs(fs, args)
	if err != nil {
		return errors.ExitGeneral
	}
	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "Error: validate requires exactly one config file")
		return errors.ExitGeneral
	}
	path := positional[0]
	auditor := security.NewAuditor(splitList(opts.blocked), nil)

	job, err := config.Load(path)
	code := reportValidation(path, job, err, auditor, opts)
	if !opts.watch {
		return code
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchConfig(ctx, path, auditor, opts)
}

// reportValidation prints the outcome of loading path and its audit
// findings, and returns the exit code.
func reportValidation(path string, job *config.Job, err error, auditor *security.Auditor, opts validateOptions) int {
	if err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err, opts.verbose))
		return errors.ExitCode(err)
	}

	fmt.Printf("✓ Configuration file '%s' is valid\n", path)
	if opts.verbose {
		printJobDetails(os.Stdout, job)
	}

	raw, _ := os.ReadFile(path)
	result := auditor.AuditJob(job, raw)
	for _, issue := range result.Issues {
		fmt.Printf("⚠ [%s] %s\n", issue.Severity, issue.Message)
		if opts.verbose && issue.Remediation != "" {
			fmt.Printf("    %s\n", issue.Remediation)
		}
	}
	if len(result.Issues) > 0 {
		fmt.Printf("Security risk score: %d/100\n", result.RiskScore)
	}
	if opts.strict && !result.Valid {
		return errors.ExitConfig
	}
	return errors.ExitOK
}

func watchConfig(ctx context.Context, path string, auditor *security.Auditor, opts validateOptions) int {
	logger := newLogger(opts.verbose, false)
	defer logger.Sync()

	watcher, err := config.NewConfigWatcher(path, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return errors.ExitGeneral
	}
	defer watcher.Close()

	watcher.OnChange(func(job *config.Job, err error) {
		reportValidation(path, job, err, auditor, opts)
	})

	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", path)
	select {
	case <-ctx.Done():
	case <-watcher.Done():
	}
	return errors.ExitOK
}

func templateCommand(args []string) int {
	fs := flag.NewFlagSet("template", flag.ContinueOnError)
	templateType := fs.String("type", "basic", "template type: "+strings.Join(config.TemplateTypes, ", "))
	if _, err := parseArgs(fs, args); err != nil {
		return errors.ExitGeneral
	}

	out, err := generateTemplate(*templateType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return errors.ExitGeneral
	}
	fmt.Print(out)
	return errors.ExitOK
}

func generateTemplate(templateType string) (string, error) {
	template := config.GenerateTemplate(templateType)
	data, err := yaml.Marshal(template)
	if err != nil {
		return "", fmt.Errorf("failed to marshal template to YAML: %w", err)
	}
	return string(data), nil
}

// parseArgs parses fs while allowing flags after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(verbose, jsonLogs bool) *utils.ZapLogger {
	level := utils.WarnLevel
	if verbose {
		level = utils.DebugLevel
	}
	if env := os.Getenv("EXTRACTSTUDIO_LOG_LEVEL"); env != "" {
		level = utils.ParseLogLevel(env)
	}
	return utils.NewZapLogger(utils.LoggerOptions{Level: level, JSON: jsonLogs, Output: os.Stderr})
}

func progressPrinter(w io.Writer, quiet bool) pipeline.ProgressFunc {
	if quiet {
		return nil
	}
	return func(message string, percent int) {
		fmt.Fprintf(w, "[%3d%%] %s\n", percent, message)
	}
}

func printJobDetails(w io.Writer, job *config.Job) {
	fmt.Fprintf(w, "Configuration details:\n")
	fmt.Fprintf(w, "  Label: %s\n", job.Label())
	fmt.Fprintf(w, "  Sources: %d\n", len(job.Sources()))
	for _, src := range job.Sources() {
		fmt.Fprintf(w, "  - %s (%s)\n", src.Name, src.SourceType)
		fmt.Fprintf(w, "      Seeds: %d, depth: %d\n", len(src.Seeds), src.Crawl.Depth)
		fmt.Fprintf(w, "      Export: %s -> %s\n", src.Export.Format, src.Export.OutputPath)
	}
	if s := job.Storage(); s != nil {
		fmt.Fprintf(w, "  Storage: %s\n", s.Driver)
	}
}

func printSummary(w io.Writer, metrics *pipeline.Metrics, records int) {
	summary := metrics.Summary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "\nRun summary (%d records):\n", records)
	for _, k := range keys {
		v := summary[k]
		if f, ok := v.(float64); ok {
			v = fmt.Sprintf("%.2f", f)
		}
		fmt.Fprintf(w, "  %-20s %v\n", k, v)
	}
	for _, e := range metrics.Errors() {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
}

func printUsage() {
	fmt.Printf(`ExtractStudio - configurable content extraction pipeline

Usage:
  extractstudio <command> [options] [arguments]

Commands:
  run <config|URL|query>   Run the pipeline on a job file, a single URL or a search query
  validate <config>        Validate a job configuration file
  template [--type TYPE]   Print a job template (%s)
  version                  Show version information
  help                     Show this help message

Run options:
  -v, --verbose            Debug logging and detailed errors
  --quiet                  Hide progress lines
  --log-json               Write logs as JSON
  --metrics-addr ADDR      Serve Prometheus metrics and health on ADDR
  --output-dir DIR         Export directory for URL and query runs (default %s)
  --save-tree DIR          Also save each record as a folder tree
  --max-results N          Search results used as seeds (default %d)
  --no-search              Do not search the web for query input
  --no-readability         Use only the built-in main-content heuristics

Validate options:
  -v, --verbose            Show configuration details
  --watch                  Re-validate whenever the file changes
  --strict                 Fail on critical security findings
  --blocked-domains LIST   Comma-separated hosts that must not be crawled

Examples:
  extractstudio run jobs/news.yaml
  extractstudio run https://example.com/article
  extractstudio run "premier league table 2024" --max-results 3
  extractstudio validate jobs/news.yaml --watch
  extractstudio template --type table > jobs/table.yaml
`, strings.Join(config.TemplateTypes, ", "), config.DefaultOutputDir, config.DefaultSearchResults)
}

func printVersion() {
	fmt.Printf("ExtractStudio %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
