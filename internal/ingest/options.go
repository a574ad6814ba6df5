package ingest

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"evovis/internal/metrics"
)

// optionsValidate is shared; validator caches struct metadata per instance.
var optionsValidate = validator.New()

// Options control one load. The zero value is valid: run id from the
// directory name, advisory chromosome checks, no timeout.
type Options struct {
	// RunID overrides the run identifier derived from the directory name.
	RunID string `yaml:"run_id" validate:"omitempty,max=200,excludesall=/\\"`
	// StrictChromosomeValidation makes a chromosome that is not a traversal
	// of the gene pool a load error instead of a warning.
	StrictChromosomeValidation bool `yaml:"strict_chromosome_validation"`
	// TimeoutSeconds bounds the whole load when set.
	TimeoutSeconds *float64 `yaml:"timeout_seconds" validate:"omitempty,gt=0"`

	Logger  *zap.Logger         `yaml:"-" validate:"-"`
	Metrics *metrics.Collectors `yaml:"-" validate:"-"`
}

func (o Options) Validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		return fmt.Errorf("invalid load options: %w", err)
	}
	return nil
}

// Timeout returns the configured deadline and whether one is set.
func (o Options) Timeout() (time.Duration, bool) {
	if o.TimeoutSeconds == nil {
		return 0, false
	}
	return time.Duration(*o.TimeoutSeconds * float64(time.Second)), true
}

func (o Options) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// Seconds is a convenience for building TimeoutSeconds.
func Seconds(v float64) *float64 {
	return &v
}
