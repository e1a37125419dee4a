package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/memvault/internal/bootstrap"
	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/config"
	"github.com/p-blackswan/memvault/internal/core"
	"github.com/p-blackswan/memvault/internal/detect"
	"github.com/p-blackswan/memvault/internal/health"
	"github.com/p-blackswan/memvault/internal/metrics"
)

const usage = `memvault - persistent project memory and recovery

Usage:
  memvault init -name <name> -type <video|script|creative|technical> [-objective <text>]...
  memvault validate
  memvault recover -tier <automatic|guided|desperate>
  memvault confirm -action <id>[,<id>...]
  memvault qa [-fix]
  memvault status
  memvault timeline [-limit <n>]
  memvault search -term <text>
  memvault tree
  memvault serve

The project root is taken from MEMVAULT_ROOT (default: current directory).
`

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	defaults, defaultType, err := config.LoadDefaults(cfg.DefaultsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load defaults file")
	}

	m := metrics.New()
	mgr := core.New(cfg.Root, defaults, m, logger)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init":
		runInit(mgr, defaultType, args)
	case "validate":
		runValidate(mgr)
	case "recover":
		runRecover(mgr, args)
	case "confirm":
		runConfirm(mgr, args)
	case "qa":
		runQA(mgr, args)
	case "status":
		runStatus(mgr)
	case "timeline":
		runTimeline(mgr, args)
	case "search":
		runSearch(mgr, args)
	case "tree":
		runTree(cfg.Root, logger)
	case "serve":
		runServe(cfg, m, logger)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

type objectiveList []string

func (o *objectiveList) String() string     { return strings.Join(*o, ", ") }
func (o *objectiveList) Set(v string) error { *o = append(*o, v); return nil }

func runInit(mgr *core.Manager, defaultType string, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	name := fs.String("name", "", "project name")
	ptype := fs.String("type", defaultType, "project type")
	var objectives objectiveList
	fs.Var(&objectives, "objective", "project objective (repeatable)")
	fs.Parse(args)

	if *ptype == "" {
		*ptype = "creative"
	}
	if err := mgr.InitializeProject(*name, *ptype, objectives); err != nil {
		fatal(err)
	}
	fmt.Printf("project %q initialized\n", *name)
}

func runValidate(mgr *core.Manager) {
	errs, err := mgr.ValidateProjectState()
	if err != nil {
		fatal(err)
	}
	if len(errs) == 0 {
		fmt.Println("project state is valid")
		return
	}
	for _, e := range errs {
		fmt.Printf("[%s] %s: %s\n", e.Severity, e.Type, e.Description)
	}
	os.Exit(1)
}

func runRecover(mgr *core.Manager, args []string) {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	tier := fs.String("tier", "automatic", "recovery tier")
	fs.Parse(args)

	report, err := mgr.TriggerRecovery(*tier)
	if err != nil {
		fatal(err)
	}
	printJSON(report)
	if !report.Success {
		os.Exit(1)
	}
}

func runConfirm(mgr *core.Manager, args []string) {
	fs := flag.NewFlagSet("confirm", flag.ExitOnError)
	action := fs.String("action", "", "comma-separated pending action ids")
	fs.Parse(args)

	if *action == "" {
		fatal(fmt.Errorf("at least one action id is required"))
	}
	report, err := mgr.ConfirmRecovery(strings.Split(*action, ","))
	if err != nil {
		fatal(err)
	}
	printJSON(report)
	if !report.Success {
		os.Exit(1)
	}
}

func runQA(mgr *core.Manager, args []string) {
	fs := flag.NewFlagSet("qa", flag.ExitOnError)
	fix := fs.Bool("fix", false, "auto-fix fixable issues")
	fs.Parse(args)

	report, err := mgr.RunQualityCheck()
	if err != nil {
		fatal(err)
	}
	printJSON(report)
	if *fix {
		res, err := mgr.AutoFixQualityIssues(report)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("auto-fix: %d fixed, %d failed of %d issues\n", res.Fixed, res.Failed, res.Total)
	}
}

func runStatus(mgr *core.Manager) {
	st, err := mgr.GetStatus()
	if err != nil {
		fatal(err)
	}
	printJSON(st)
}

func runTimeline(mgr *core.Manager, args []string) {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of actions")
	fs.Parse(args)

	actions, err := mgr.GetTimeline(*limit)
	if err != nil {
		fatal(err)
	}
	for _, a := range actions {
		fmt.Printf("[%s] %s %s\n", a.Timestamp, a.Type, strings.Join(a.Files, ", "))
	}
}

func runSearch(mgr *core.Manager, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	term := fs.String("term", "", "search term")
	fs.Parse(args)

	actions, err := mgr.SearchLogs(*term)
	if err != nil {
		fatal(err)
	}
	for _, a := range actions {
		fmt.Printf("[%s] %s %s\n", a.Timestamp, a.Type, strings.Join(a.Files, ", "))
	}
}

func runTree(root string, logger zerolog.Logger) {
	boot := bootstrap.New(logger)
	node, err := boot.GetTree(root)
	if err != nil {
		fatal(err)
	}
	printTree(node, "")
}

func printTree(n *bootstrap.Node, indent string) {
	name := n.Name
	if n.Dir {
		name += "/"
	}
	fmt.Println(indent + name)
	for _, c := range n.Children {
		printTree(c, indent+"  ")
	}
}

// runServe exposes /metrics, /health and /ready until interrupted.
func runServe(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) {
	if cfg.MetricsAddr == "" {
		logger.Fatal().Msg("METRICS_ADDR is empty, nothing to serve")
	}
	boot := bootstrap.New(logger)
	det := detect.New(cfg.Root, boot, buildlog.New(cfg.Root, logger), logger)
	checker := health.NewChecker(logger)
	checker.Register("structure", health.StructureCheck(cfg.Root, boot))
	checker.Register("error_log", health.ErrorLogCheck(det))

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())

	srv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics and health")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("metrics server failed")
		}
	}()

	<-sigCh
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(b))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
