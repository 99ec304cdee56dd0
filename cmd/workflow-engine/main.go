// Command workflow-engine is the CLI collaborator named in SPEC_FULL §6.1:
// it loads a workflow document, runs it to quiescence with the in-process
// Engine, and prints a summary of the resulting run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/lyzr/workflow-engine/common/config"
	"github.com/lyzr/workflow-engine/common/logger"
	"github.com/lyzr/workflow-engine/internal/engine"
	"github.com/lyzr/workflow-engine/internal/graph"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runCommand(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: workflow-engine run <file> [--verbose] [--key=<credential>]")
}

func runCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "log at debug level")
	key := fs.String("key", "", "robot/AI-agent strategy credential")
	fs.Parse(args)

	if fs.NArg() < 1 {
		usage()
		return 1
	}
	path := fs.Arg(0)

	level := "info"
	if *verbose {
		level = "debug"
	}
	cfg, err := config.Load("workflow-engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	log := logger.New(level, cfg.Service.LogFormat)

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Error("failed to read workflow document", "path", path, "error", err)
		return 1
	}

	var doc graph.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Error("failed to parse workflow document", "path", path, "error", err)
		return 1
	}

	credential := *key
	if credential == "" {
		credential = cfg.Engine.ModelCredential
	} else {
		// The AI-agent strategy reads its credential from GEMINI_API_KEY.
		os.Setenv("GEMINI_API_KEY", credential)
	}

	eng, err := engine.NewFromDocument(&doc, engine.Options{
		Credential: credential,
		Logger:     log,
		Retry: &engine.RetryPolicy{
			BaseDelay:   cfg.Engine.RetryBaseDelay,
			Factor:      cfg.Engine.RetryFactor,
			Jitter:      cfg.Engine.RetryJitter,
			MaxAttempts: cfg.Engine.RetryMaxAttempts,
		},
	})
	if err != nil {
		log.Error("failed to load workflow", "error", err)
		return 1
	}

	ctx := context.Background()
	runID, err := eng.Start(ctx, map[string]interface{}{})
	if err != nil {
		log.Error("failed to start run", "error", err)
		return 1
	}

	if err := eng.RunToQuiescence(ctx); err != nil {
		log.Error("run failed", "run_id", runID, "error", err)
		return 1
	}

	status := eng.Status()
	log.Info("run finished", "run_id", runID, "status", status, "tokens", len(eng.Tokens()))
	printSummary(runID, status, eng)

	if status == "completed" || status == "waiting" {
		return 0
	}
	return 1
}

func printSummary(runID, status string, eng *engine.Engine) {
	fmt.Printf("run %s: %s\n", runID, status)
	for _, tok := range eng.Tokens() {
		fmt.Printf("  token %s [%s] at %s\n", tok.ID, tok.Status, tok.CurrentNodeID)
	}
}
