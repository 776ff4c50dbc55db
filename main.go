package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/don7panic/script-partitioner/config"
	"github.com/don7panic/script-partitioner/models"
	"github.com/don7panic/script-partitioner/partitioner"
	"github.com/don7panic/script-partitioner/server"
)

func main() {
	filePath := flag.String("file", "", "Path to the Python script to partition")
	entry := flag.String("entry", "", "Name of the entry-point function (default from config: predict)")
	prefix := flag.String("prefix", "", "Object key prefix for serialized values")
	outDir := flag.String("out", "", "Directory to write training_script.py, inference.py and manifest.json to")
	format := flag.String("format", "json", "Output format: json or yaml")
	configPath := flag.String("config", "", "Path to a YAML config file")
	watchMode := flag.Bool("watch", false, "Partition again whenever a script changes")
	trace := flag.Bool("trace", false, "Print partition spans to stderr")
	serveMode := flag.Bool("serve", false, "Serve the HTTP API instead of partitioning files")
	listen := flag.String("listen", "", "Address to serve on (default from config: :8080)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	cfg, err := config.WithEnv(cfg)
	if err != nil {
		fmt.Printf("Error reading environment: %v\n", err)
		os.Exit(1)
	}
	if *entry != "" {
		cfg.EntryPoint = *entry
	}
	if *prefix != "" {
		cfg.KeyPrefix = *prefix
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *trace {
		cfg.Trace = true
	}

	level, err := cfg.Level()
	if err != nil {
		fmt.Printf("Error in config: %v\n", err)
		os.Exit(1)
	}
	var logger *slog.Logger
	if *serveMode {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	slog.SetDefault(logger)

	opts, err := cfg.PartitionerOptions()
	if err != nil {
		fmt.Printf("Error in config: %v\n", err)
		os.Exit(1)
	}
	opts = append(opts, partitioner.WithLogger(logger))
	if cfg.Trace {
		tp, err := newTracerProvider(os.Stderr)
		if err != nil {
			fmt.Printf("Error setting up tracing: %v\n", err)
			os.Exit(1)
		}
		defer tp.Shutdown(context.Background())
		opts = append(opts, partitioner.WithTracerProvider(tp))
	}
	p := partitioner.New(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serveMode {
		if err := serve(ctx, p, logger, cfg.Listen); err != nil {
			logger.Error("server stopped", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	var scripts []string
	if *filePath != "" {
		scripts = append(scripts, *filePath)
	}
	scripts = append(scripts, flag.Args()...)
	if len(scripts) == 0 {
		fmt.Println("Error: --file argument is required")
		os.Exit(1)
	}
	if *format != "json" && *format != "yaml" {
		fmt.Printf("Error: unknown format %q\n", *format)
		os.Exit(1)
	}

	run := func(ctx context.Context) error {
		results, err := partitionAll(ctx, p, cfg.EntryPoint, scripts)
		if err != nil {
			return err
		}
		if *outDir != "" {
			if err := writeAll(*outDir, scripts, results); err != nil {
				return err
			}
		}
		return printResults(os.Stdout, *format, results)
	}

	if *watchMode {
		if err := watch(ctx, logger, scripts, run); err != nil {
			fmt.Printf("Error watching scripts: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(ctx); err != nil {
		fmt.Printf("Error partitioning script: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, p *partitioner.Partitioner, logger *slog.Logger, addr string) error {
	e := server.BuildServer(p, logger)
	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		errs <- e.Start(addr)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return e.Shutdown(context.Background())
	}
}

// partitionAll partitions every script concurrently. Results keep the
// order of scripts.
func partitionAll(ctx context.Context, p *partitioner.Partitioner, entry string, scripts []string) ([]*models.PartitionResult, error) {
	results := make([]*models.PartitionResult, len(scripts))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range scripts {
		i, path := i, path
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			res, err := p.Partition(ctx, src, entry)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// writeAll writes the artifacts of each result to dir, or to a
// subdirectory named after the script when there are several.
func writeAll(dir string, scripts []string, results []*models.PartitionResult) error {
	for i, res := range results {
		target := dir
		if len(results) > 1 {
			base := filepath.Base(scripts[i])
			target = filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))
		}
		if err := writeArtifacts(target, res); err != nil {
			return err
		}
	}
	return nil
}

func writeArtifacts(dir string, res *models.PartitionResult) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	manifest, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	files := map[string][]byte{
		"training_script.py": []byte(res.TrainingScript),
		"inference.py":       []byte(res.InferenceScript),
		"manifest.json":      append(manifest, '\n'),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0644); err != nil {
			return err
		}
	}
	return nil
}

func printResults(w io.Writer, format string, results []*models.PartitionResult) error {
	var v any = results
	if len(results) == 1 {
		v = results[0]
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
