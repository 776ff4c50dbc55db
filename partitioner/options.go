package partitioner

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Placement decides where the training script serializes external values.
type Placement int

const (
	// PlacementInline serializes right before the entry-point definition.
	PlacementInline Placement = iota
	// PlacementEnd serializes after the last statement of the script.
	PlacementEnd
)

func (p Placement) String() string {
	if p == PlacementEnd {
		return "end"
	}
	return "inline"
}

const (
	DefaultVersionEnv      = "VERSION"
	DefaultTrainingModule  = "training_script_module"
	DefaultInferenceModule = "src.inference"
	DefaultBucket          = "ml-objects"
)

type options struct {
	keyPrefix       string
	versionEnv      string
	storage         Storage
	trainingModule  string
	inferenceModule string
	placement       Placement
	strict          bool
	logger          *slog.Logger
	tracerProvider  trace.TracerProvider
}

func defaults() options {
	return options{
		versionEnv:      DefaultVersionEnv,
		storage:         S3Storage{Bucket: DefaultBucket},
		trainingModule:  DefaultTrainingModule,
		inferenceModule: DefaultInferenceModule,
		placement:       PlacementInline,
		logger:          slog.Default(),
		tracerProvider:  otel.GetTracerProvider(),
	}
}

type Option func(*options)

// WithKeyPrefix sets the object key prefix. A "{version}" placeholder is
// replaced by the version at run time; otherwise the version follows the
// prefix.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) { o.keyPrefix = prefix }
}

// WithVersionEnv names the environment variable the generated scripts
// read the version from.
func WithVersionEnv(name string) Option {
	return func(o *options) {
		if name != "" {
			o.versionEnv = name
		}
	}
}

func WithStorage(s Storage) Option {
	return func(o *options) {
		if s != nil {
			o.storage = s
		}
	}
}

// WithModuleRemap sets the module the training script runs as and the
// module the inference script is loaded as. Classes pickled under the
// first are unpickled from the second.
func WithModuleRemap(training, inference string) Option {
	return func(o *options) {
		if training != "" {
			o.trainingModule = training
		}
		if inference != "" {
			o.inferenceModule = inference
		}
	}
}

func WithPlacement(p Placement) Option {
	return func(o *options) { o.placement = p }
}

// WithStrictDeclarations rejects scripts that define a top-level name more
// than once.
func WithStrictDeclarations(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider sets where Partition spans go. The default is the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}
