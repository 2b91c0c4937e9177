package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/kcze/conveyor/internal/pipeline/engine"
	"github.com/kcze/conveyor/internal/pipeline/manifest"
	"github.com/kcze/conveyor/internal/pipeline/trace"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])
	case "plan":
		cmdPlan(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  conveyor run --manifest <file.yaml> [--run-id <id>] [--events <file.ndjson>] [--var k=v]... [--verbose]")
	fmt.Fprintln(os.Stderr, "  conveyor plan --manifest <file.yaml>")
	fmt.Fprintln(os.Stderr, "  conveyor validate --manifest <file.yaml>")
}

type runFlags struct {
	manifestPath string
	runID        string
	eventsPath   string
	vars         map[string]string
	verbose      bool
}

func parseRunFlags(args []string) runFlags {
	f := runFlags{vars: map[string]string{}}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--manifest":
			i++
			if i >= len(args) {
				fatalUsage("--manifest requires a value")
			}
			f.manifestPath = args[i]
		case "--run-id":
			i++
			if i >= len(args) {
				fatalUsage("--run-id requires a value")
			}
			f.runID = args[i]
		case "--events":
			i++
			if i >= len(args) {
				fatalUsage("--events requires a value")
			}
			f.eventsPath = args[i]
		case "--var":
			i++
			if i >= len(args) {
				fatalUsage("--var requires a value in the form k=v")
			}
			k, v, ok := strings.Cut(args[i], "=")
			if !ok || k == "" {
				fatalUsage("--var requires a value in the form k=v")
			}
			f.vars[k] = v
		case "--verbose":
			f.verbose = true
		default:
			fatalUsage(fmt.Sprintf("unknown arg: %s", args[i]))
		}
	}
	if f.manifestPath == "" {
		usage()
		os.Exit(2)
	}
	return f
}

func fatalUsage(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}

// loadChecked loads a manifest and refuses to proceed on error-severity
// diagnostics. Warnings go to stderr and the run continues.
func loadChecked(path string) *manifest.Manifest {
	m, err := manifest.Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	diags := m.Validate()
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", d.Severity, d.Rule, d.Message)
	}
	if manifest.HasErrors(diags) {
		os.Exit(2)
	}
	return m
}

func buildExecutor(m *manifest.Manifest, f runFlags, sink trace.Sink) *engine.Executor {
	vars := map[string]string{}
	for k, v := range m.Vars {
		vars[k] = v
	}
	for k, v := range f.vars {
		vars[k] = v
	}

	opts := engine.Options{
		RunID:      f.runID,
		MaxRetries: m.MaxRetries,
		Orders:     m.Order,
		DisabledBy: m.Disabler(vars),
		Sink:       sink,
	}
	if b := m.Backoff; b != nil {
		opts.Backoff = engine.BackoffConfig{
			InitialDelayMS: b.InitialDelayMS,
			BackoffFactor:  b.BackoffFactor,
			MaxDelayMS:     b.MaxDelayMS,
			Jitter:         b.Jitter,
		}
	}

	pipeline, comps := buildPipeline(m)
	x, err := engine.New(pipeline, comps, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return x
}

func cmdRun(args []string) {
	f := parseRunFlags(args)
	m := loadChecked(f.manifestPath)

	level := zerolog.WarnLevel
	if f.verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	sinks := []trace.Sink{trace.NewZerologSink(log)}
	if f.eventsPath != "" {
		ef, err := os.OpenFile(f.eventsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		defer ef.Close()
		sinks = append(sinks, trace.NewNDJSONSink(ef))
	}

	x := buildExecutor(m, f, trace.Multi(sinks...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := x.Run(ctx, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run %s completed\n", res.RunID)
	names := make([]string, 0, len(res.Outputs))
	for name := range res.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s: %v\n", name, res.Outputs[name])
	}
	for _, s := range res.Skipped {
		fmt.Printf("  skipped %s/%s: %s\n", s.Protocol, s.Component, s.Reason)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	if n := len(res.Attempts); n > 0 {
		fmt.Printf("  %d retries recovered\n", n)
	}
}

func cmdPlan(args []string) {
	f := parseRunFlags(args)
	m := loadChecked(f.manifestPath)
	x := buildExecutor(m, f, nil)

	for _, sp := range x.Plan() {
		fmt.Printf("%s: %s\n", sp.Protocol, strings.Join(sp.Order, " -> "))
		for _, id := range sp.Omitted {
			fmt.Printf("  omitted from explicit order: %s\n", id)
		}
		for _, id := range sp.Unknown {
			fmt.Printf("  unknown in explicit order: %s\n", id)
		}
	}
}

func cmdValidate(args []string) {
	f := parseRunFlags(args)
	loadChecked(f.manifestPath)
	fmt.Println("ok")
}
