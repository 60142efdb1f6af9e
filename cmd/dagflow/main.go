package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/deepnoodle-ai/dagflow"
	"github.com/deepnoodle-ai/dagflow/handlers"
	"github.com/deepnoodle-ai/dagflow/postgres"
	"github.com/deepnoodle-ai/dagflow/server"
)

// CLI configuration
type Config struct {
	GraphFile   string
	Inputs      map[string]any
	RunsDir     string
	Timeout     time.Duration
	Verbose     bool
	JSON        bool
	ShowInputs  bool
	ShowOutputs bool
	ServeAddr   string
	Resume      string
}

func main() {
	// .env is optional; flags and the environment win over it.
	_ = godotenv.Load()

	config := parseFlags()

	if config.GraphFile == "" {
		color.Red("Error: graph file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.GraphFile); os.IsNotExist(err) {
		color.Red("Error: graph file '%s' not found", config.GraphFile)
		os.Exit(1)
	}

	logger := dagflow.NewLogger()
	if config.Verbose {
		logger = dagflow.NewLoggerWithLevel(slog.LevelDebug)
	}

	color.Blue("Loading graph from: %s", config.GraphFile)
	graph, err := dagflow.LoadFile(config.GraphFile)
	if err != nil {
		log.Fatalf("Failed to load graph: %v", err)
	}

	color.Cyan("Graph: %s", graph.Name())
	if graph.Description() != "" {
		color.White("Description: %s", graph.Description())
	}

	if config.ShowInputs {
		showGraphInputs(graph)
		return
	}

	ctx := context.Background()

	// Persistence: postgres when DATABASE_URL is set, files otherwise.
	checkpointer, runStore, eventLog, cleanup, err := buildStores(ctx, config)
	if err != nil {
		log.Fatalf("Failed to set up persistence: %v", err)
	}
	defer cleanup()

	engine, err := dagflow.NewEngine(dagflow.EngineOptions{
		Graphs: []*dagflow.Graph{graph},
		Handlers: []dagflow.Handler{
			handlers.NewScriptHandler(nil),
			handlers.NewPrintHandler(nil),
			handlers.NewWaitHandler(),
			handlers.NewFailHandler(),
			handlers.NewHTTPHandler(),
		},
		Checkpointer: checkpointer,
		RunStore:     runStore,
		EventLog:     eventLog,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	if config.ServeAddr != "" {
		serve(engine, config.ServeAddr)
		return
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	var run *dagflow.Run
	if config.Resume != "" {
		color.Green("Resuming run %s...", config.Resume)
		run, err = engine.Resume(ctx, config.Resume)
	} else {
		run, err = engine.Start(ctx, graph.Name(), config.Inputs)
	}
	if err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}

	color.Green("Run started (ID: %s)\n", run.ID)

	startTime := time.Now()
	waitErr := engine.Wait(ctx, run.ID)
	showRunResults(ctx, engine, run.ID, waitErr, time.Since(startTime), config)
}

func buildStores(ctx context.Context, config *Config) (dagflow.Checkpointer, dagflow.RunStore, dagflow.EventLog, func(), error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		store, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, nil, nil, err
		}
		color.Blue("Persistence: postgres")
		return store, store, store, func() { store.Close() }, nil
	}

	checkpointer, err := dagflow.NewFileCheckpointer(config.RunsDir)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if config.RunsDir != "" {
		color.Blue("Checkpoints: %s", config.RunsDir)
	}
	return checkpointer, dagflow.NewMemoryRunStore(), dagflow.NewMemoryEventLog(), func() {}, nil
}

func serve(engine *dagflow.Engine, addr string) {
	srv := server.New(engine, nil)
	color.Green("Serving HTTP on %s", addr)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

func parseFlags() *Config {
	config := &Config{
		Inputs: make(map[string]any),
	}

	flag.StringVar(&config.GraphFile, "file", "", "Path to the YAML graph definition file (required)")
	flag.StringVar(&config.GraphFile, "f", "", "Path to the YAML graph definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Input parameter in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Input parameter in format key=value (shorthand, can be used multiple times)")

	flag.StringVar(&config.RunsDir, "runs", "", "Directory to store run checkpoints (default ~/.dagflow/runs)")
	flag.StringVar(&config.Resume, "resume", "", "Resume the run with the given id instead of starting a new one")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Run timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Run timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")
	flag.BoolVar(&config.ShowInputs, "show-inputs", false, "Show graph input requirements and exit")
	flag.BoolVar(&config.ShowOutputs, "show-outputs", true, "Show node outputs after the run (default: true)")
	flag.StringVar(&config.ServeAddr, "serve", "", "Serve the HTTP control surface on this address instead of running once")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `dagflow - Execute YAML-defined workflow graphs

Usage: %s [options] -file <graph.yaml>

Examples:
  # Execute a graph once
  %s -file etl.yaml

  # Execute with inputs and checkpoints
  %s -file etl.yaml -input region=us-east-1 -runs ./runs

  # Resume a failed or suspended run
  %s -file etl.yaml -resume run_01h455vb4pex5vsknk084sn02q

  # Serve the HTTP control surface
  %s -file etl.yaml -serve :8080

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Built-in Handlers:
  script - Evaluate a Risor expression
  print  - Print a message to the console
  wait   - Wait for a specified duration
  fail   - Intentionally fail with a message
  http   - Make HTTP requests

Input Format:
  Use -input key=value for each input parameter.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	for _, input := range inputFlags {
		parts := strings.SplitN(input, "=", 2)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		key, value := parts[0], parts[1]

		// Try to parse as JSON, fallback to string
		var parsedValue any
		if err := json.Unmarshal([]byte(value), &parsedValue); err != nil {
			parsedValue = value
		}
		config.Inputs[key] = parsedValue
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func showGraphInputs(graph *dagflow.Graph) {
	inputs := graph.Inputs()
	if len(inputs) == 0 {
		color.Blue("No inputs required")
		return
	}

	color.Blue("Graph inputs:")
	for _, input := range inputs {
		required := ""
		defaultValue := ""
		if input.Default != nil {
			if defaultBytes, err := json.Marshal(input.Default); err == nil {
				defaultValue = fmt.Sprintf(" [default: %s]", string(defaultBytes))
			}
		} else if input.Required {
			required = " (required)"
		}

		fmt.Printf("  %s (%s)%s%s\n", input.Name, input.Type, required, defaultValue)
		if input.Description != "" {
			fmt.Printf("    %s\n", input.Description)
		}
	}
}

func showRunResults(ctx context.Context, engine *dagflow.Engine, runID string, runErr error, duration time.Duration, config *Config) {
	snapshot, err := engine.Status(ctx, runID)
	if err != nil {
		log.Fatalf("Failed to read run status: %v", err)
	}

	color.White("Run finished in %v", duration)
	color.White("Status: %s", snapshot.Run.Status)

	if runErr != nil {
		color.Red("Error: %v", runErr)
	} else if snapshot.Run.Status == dagflow.RunStatusCompleted {
		color.Green("Run successful!")
	}

	if config.ShowOutputs && len(snapshot.Outputs) > 0 {
		fmt.Printf("\n")
		color.Magenta("Outputs:")
		if config.JSON {
			outputBytes, err := json.MarshalIndent(snapshot.Outputs, "", "  ")
			if err != nil {
				fmt.Printf("Error formatting outputs: %v\n", err)
			} else {
				fmt.Println(string(outputBytes))
			}
		} else {
			for key, value := range snapshot.Outputs {
				if valueBytes, err := json.Marshal(value); err == nil {
					fmt.Printf("  %s: %s\n", key, string(valueBytes))
				} else {
					fmt.Printf("  %s: %v\n", key, value)
				}
			}
		}
	}

	if runErr != nil && snapshot.Run.Status != dagflow.RunStatusCompleted {
		os.Exit(1)
	}
}
