// cmd/diagramforge/main.go
//
// Entry point for the diagramforge CLI. It reads an architecture diagram,
// runs the analysis/compliance/cost/generation pipeline against the AI
// capability server, and writes a deployable bundle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"diagramforge/internal/bundle"
	"diagramforge/internal/cache"
	"diagramforge/internal/capability"
	"diagramforge/internal/config"
	"diagramforge/internal/logbook"
	"diagramforge/internal/logging"
	"diagramforge/internal/pipeline"
	"diagramforge/internal/policy"
	"diagramforge/internal/stage"
	"diagramforge/internal/tui"
)

const version = "0.3.0"

func main() {
	if err := run(); err != nil {
		if rejection, ok := pipeline.IsDomainRejection(err); ok {
			fmt.Fprintln(os.Stderr, rejectionMessage(rejection))
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "diagramforge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		inputPath   = flag.String("input", "", "diagram file to process (image or text export)")
		environment = flag.String("env", "", "deployment environment: dev, staging, or prod")
		fast        = flag.Bool("fast", false, "skip deep analysis passes for a quicker, rougher result")
		outDir      = flag.String("out", "", "bundle output directory (default .diagramforge/out)")
		noTUI       = flag.Bool("no-tui", false, "run headless and print the summary")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("diagramforge " + version)
		return nil
	}
	if *inputPath == "" && flag.NArg() > 0 {
		*inputPath = flag.Arg(0)
	}
	if *inputPath == "" {
		return fmt.Errorf("no input diagram; usage: diagramforge -input diagram.png [-env dev]")
	}

	content, err := os.ReadFile(*inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	if err := config.InitWorkspace(cwd); err != nil {
		return err
	}
	cfg, err := config.New(cwd)
	if err != nil {
		return err
	}

	env := strings.ToLower(strings.TrimSpace(*environment))
	if env == "" {
		env = cfg.Project.DefaultEnvironment
	}
	if !config.ValidEnvironment(env) {
		return fmt.Errorf("unknown environment %q; supported: %s", env, strings.Join(config.Environments, ", "))
	}

	logger, err := logging.New(cfg.LogsDir())
	if err != nil {
		return err
	}
	defer logger.Close()
	book, err := logbook.New(filepath.Join(cfg.LogsDir(), "pipeline.log"))
	if err != nil {
		return err
	}

	if err := policy.EnsureDefaultRules(cfg.PoliciesDir()); err != nil {
		return err
	}
	rules, err := policy.LoadDir(cfg.PoliciesDir())
	if err != nil {
		return err
	}

	store, closeStore, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := connectCapabilities(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	invoker, err := capability.NewMCPInvoker(session)
	if err != nil {
		return err
	}
	client := capability.NewClient(invoker,
		capability.WithTimeout(cfg.Project.Capability.Timeout()),
		capability.WithRetries(cfg.Project.Capability.Retries),
	)

	stages := []stage.Stage{
		stage.NewAnalysis(client, store),
		stage.NewCompliance(client, store, rules,
			stage.WithMaxIterations(cfg.Project.Pipeline.ComplianceMaxIterations)),
		stage.NewCost(client, store),
		stage.NewGeneration(client, store),
	}

	input := stage.Input{Content: string(content), Environment: env, Fast: *fast}
	logger.Printf("processing %s (env=%s fast=%t)", *inputPath, env, *fast)

	var result *pipeline.Result
	if *noTUI {
		result, err = runHeadless(ctx, stages, cfg, book, input)
	} else {
		result, err = runWithTUI(ctx, stages, cfg, book, input)
	}
	if err != nil {
		logger.Printf("run failed: %v", err)
		return err
	}

	archive, err := writeBundle(cfg, *outDir, result)
	if err != nil {
		return err
	}
	logger.Printf("bundle written to %s", archive)
	fmt.Printf("Bundle written to %s\n", archive)
	printSummary(result.Summary)
	return nil
}

func newOrchestrator(stages []stage.Stage, cfg *config.Config, book *logbook.Logbook, extra ...pipeline.Option) (*pipeline.Orchestrator, error) {
	opts := []pipeline.Option{
		pipeline.WithMaxParallel(cfg.Project.Pipeline.MaxParallel),
		pipeline.WithWorkerLimit(cfg.Project.Pipeline.WorkerLimit),
		pipeline.WithObserver(logbookObserver(book)),
	}
	opts = append(opts, extra...)
	return pipeline.New(stages, opts...)
}

func runHeadless(ctx context.Context, stages []stage.Stage, cfg *config.Config, book *logbook.Logbook, input stage.Input) (*pipeline.Result, error) {
	orch, err := newOrchestrator(stages, cfg, book)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, input)
}

func runWithTUI(ctx context.Context, stages []stage.Stage, cfg *config.Config, book *logbook.Logbook, input stage.Input) (*pipeline.Result, error) {
	order := make([]stage.ID, len(stages))
	for i, s := range stages {
		order[i] = s.Info().ID
	}
	var orch *pipeline.Orchestrator
	model := tui.NewModel(func(runCtx context.Context) (*pipeline.Result, error) {
		// Cancel the run when either the signal context or the view's own
		// context (the q key) fires.
		merged, cancel := mergeContexts(ctx, runCtx)
		defer cancel()
		return orch.Run(merged, input)
	}, order)
	orch, err := newOrchestrator(stages, cfg, book, pipeline.WithObserver(model.Observer()))
	if err != nil {
		return nil, err
	}
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	return model.Final()
}

// mergeContexts cancels when either parent does.
func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stopWatch := context.AfterFunc(b, cancel)
	return ctx, func() {
		stopWatch()
		cancel()
	}
}

func logbookObserver(book *logbook.Logbook) pipeline.Observer {
	return pipeline.ObserverFunc(func(event pipeline.Event) {
		log := book.Run(event.RunID)
		switch event.Type {
		case pipeline.EventRunStarted:
			log.Info("run started")
		case pipeline.EventStageStarted:
			log.Info("stage %s started", event.Stage)
		case pipeline.EventStageComplete:
			if event.FromCache {
				log.Info("stage %s complete (cached)", event.Stage)
			} else {
				log.Info("stage %s complete", event.Stage)
			}
		case pipeline.EventStageFailed:
			log.Error("stage %s failed: %v", event.Stage, event.Err)
		case pipeline.EventRunComplete:
			log.Info("run complete")
		case pipeline.EventRunFailed:
			log.Error("run failed: %v", event.Err)
		}
	})
}

func openCache(cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.Project.Cache.Backend == "sqlite" {
		db, err := cache.OpenSQLite(cfg.CachePath())
		if err != nil {
			return nil, nil, err
		}
		store, err := cache.NewSQLite(db, "stages", cfg.Project.Cache.Capacity)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil
	}
	return cache.NewMemory(cfg.Project.Cache.Capacity), func() {}, nil
}

func connectCapabilities(ctx context.Context, cfg *config.Config) (*mcp.ClientSession, error) {
	command := cfg.Project.Capability.Command
	if command == "" {
		return nil, fmt.Errorf("capability command is not configured; set capability.command in %s", cfg.ConfigPath())
	}
	cmd := exec.Command(command, cfg.Project.Capability.Args...)
	transport := &mcp.CommandTransport{Command: cmd}
	client := mcp.NewClient(&mcp.Implementation{Name: "diagramforge", Version: version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect capability server %q: %w", command, err)
	}
	return session, nil
}

func writeBundle(cfg *config.Config, outDir string, result *pipeline.Result) (string, error) {
	rc := result.Context
	if rc.Generated == nil || rc.Compliance == nil || rc.Cost == nil {
		return "", errors.New("pipeline finished without generated output")
	}
	files, err := bundle.Compose(rc.Generated, *rc.Compliance, *rc.Cost, rc.Input.Environment)
	if err != nil {
		return "", err
	}
	dir := outDir
	if dir == "" {
		dir = cfg.OutputDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	handle := bundleHandle(rc)
	return bundle.CreateArchive(dir, handle, files)
}

func bundleHandle(rc *stage.RunContext) string {
	digest := rc.Key.Digest
	if len(digest) > 12 {
		digest = digest[:12]
	}
	return fmt.Sprintf("diagramforge-%s-%s", rc.Input.Environment, digest)
}

func rejectionMessage(rejection *stage.DomainRejectionError) string {
	var b strings.Builder
	b.WriteString("This diagram does not describe a supported architecture.\n")
	if msg := rejection.Message; msg != "" {
		b.WriteString(msg + "\n")
	}
	if len(rejection.DetectedPlatforms) > 0 {
		b.WriteString("Detected platforms: " + strings.Join(rejection.DetectedPlatforms, ", ") + "\n")
	}
	if len(rejection.Services) > 0 {
		b.WriteString("Detected services: " + strings.Join(rejection.Services, ", ") + "\n")
	}
	b.WriteString("diagramforge targets Azure architectures; redraw the diagram with Azure services and retry.")
	return b.String()
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Printf("  components: %d (accuracy %.0f%%)\n", s.ComponentCount, s.AccuracyScore*100)
	fmt.Printf("  compliance: %d/100", s.ComplianceScore)
	if s.FixesApplied > 0 {
		fmt.Printf(", %d fixes applied", s.FixesApplied)
	}
	if !s.Converged {
		fmt.Printf(", %d violations outstanding (did not converge)", s.OutstandingViolations)
	}
	fmt.Println()
	if s.EstimatedMonthlySavings != "" {
		fmt.Printf("  estimated savings: %s/month\n", s.EstimatedMonthlySavings)
	}
	fmt.Printf("  files: %d, cache hits: %d\n", s.FileCount, s.CacheHits)
}
