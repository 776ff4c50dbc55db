// Package partitioner splits a Python script into a training script that
// serializes the values an entry-point function needs and an inference
// script that restores them and defines only the code the entry point
// depends on.
package partitioner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/don7panic/script-partitioner/analyzer"
	"github.com/don7panic/script-partitioner/models"
	"github.com/don7panic/script-partitioner/pyast"
)

var (
	// ErrEntryPointNotFound is returned when the script does not define the
	// entry point at module level.
	ErrEntryPointNotFound = errors.New("partitioner: entry point not found")
	// ErrEntryPointNotFunction is returned when the entry point names a class.
	ErrEntryPointNotFunction = errors.New("partitioner: entry point is not a function")
)

const instrumentationName = "github.com/don7panic/script-partitioner/partitioner"

type Partitioner struct {
	opts options
}

func New(opts ...Option) *Partitioner {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &Partitioner{opts: o}
}

// Partition partitions src with the default options plus opts.
func Partition(ctx context.Context, src []byte, entry string, opts ...Option) (*models.PartitionResult, error) {
	return New(opts...).Partition(ctx, src, entry)
}

// Partition splits src around the function named entry. overrides apply
// to this call only. Output is deterministic for the same input.
func (p *Partitioner) Partition(ctx context.Context, src []byte, entry string, overrides ...Option) (*models.PartitionResult, error) {
	o := p.opts
	for _, opt := range overrides {
		opt(&o)
	}

	ctx, span := o.tracerProvider.Tracer(instrumentationName).Start(ctx, "Partitioner.Partition")
	defer span.End()
	span.SetAttributes(
		attribute.String("entry_point", entry),
		attribute.Int("script_bytes", len(src)),
	)

	res, err := o.partition(ctx, src, entry)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.DebugContext(ctx, "partition failed",
			slog.String("entry_point", entry),
			slog.Any("error", err),
		)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("inlined", len(res.Inlined)),
		attribute.Int("external", len(res.External)),
		attribute.Int("warnings", len(res.Warnings)),
	)
	o.logger.DebugContext(ctx, "partitioned script",
		slog.String("entry_point", entry),
		slog.Int("inlined", len(res.Inlined)),
		slog.Int("external", len(res.External)),
		slog.Int("libraries", len(res.RequiredLibraries)),
	)
	for _, w := range res.Warnings {
		o.logger.WarnContext(ctx, w, slog.String("entry_point", entry))
	}
	return res, nil
}

func (o options) partition(ctx context.Context, src []byte, entry string) (*models.PartitionResult, error) {
	mod, err := pyast.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	script := analyzer.Collect(mod)

	if o.strict {
		if err := script.CheckDuplicates(); err != nil {
			return nil, err
		}
	}

	decl, ok := script.Lookup(entry)
	if !ok {
		return nil, fmt.Errorf("%w: function %q is not defined in the script", ErrEntryPointNotFound, entry)
	}
	if decl.Kind != analyzer.KindFunction {
		return nil, fmt.Errorf("%w: %q is a %s", ErrEntryPointNotFunction, entry, decl.Kind)
	}

	cl := computeClosure(script, entry)

	training, err := o.trainingScript(script, decl, cl.externalNames())
	if err != nil {
		return nil, err
	}
	loops, err := loopLines(ctx, []byte(training))
	if err != nil {
		return nil, fmt.Errorf("generated training script does not parse: %w", err)
	}

	return &models.PartitionResult{
		EntryPoint:        entry,
		TrainingScript:    training,
		InferenceScript:   o.inferenceScript(script, cl),
		RequiredLibraries: script.Libraries(),
		InputSchema:       inputSchema(decl.Params),
		LoopLines:         loops,
		Inlined:           cl.inlinedNames(),
		External:          cl.externalNames(),
		Declarations:      declarations(script, cl),
		Dependencies:      cl.deps,
		Warnings:          warnings(script, cl),
	}, nil
}

func declarations(s *analyzer.Script, cl *closure) []models.Declaration {
	out := []models.Declaration{}
	for _, d := range s.Ordered() {
		sp := d.Stmt.Pos()
		md := models.Declaration{
			Name:      d.Name,
			Kind:      d.Kind.String(),
			StartLine: sp.StartLine,
			EndLine:   sp.EndLine,
			Inlined:   cl.inlined[d.Name],
		}
		for _, p := range d.Params {
			md.Parameters = append(md.Parameters, p.Name)
		}
		out = append(out, md)
	}
	return out
}

func warnings(s *analyzer.Script, cl *closure) []string {
	out := []string{}
	for _, d := range s.Shadowed {
		winner := s.Declarations[d.Name]
		out = append(out, fmt.Sprintf(
			"%s %q on line %d is shadowed by the definition on line %d",
			d.Kind, d.Name, d.Stmt.Pos().StartLine, winner.Stmt.Pos().StartLine,
		))
	}
	for _, name := range cl.externalNames() {
		if s.ModuleNames[name] {
			continue
		}
		if s.Wildcard {
			out = append(out, fmt.Sprintf("%q is not bound at module level and may come from a wildcard import", name))
			continue
		}
		out = append(out, fmt.Sprintf("%q is referenced but never bound at module level", name))
	}
	return out
}
