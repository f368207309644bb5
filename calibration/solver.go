package calibration

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/handeye/logging"
)

// Solver methods accepted by NewSolver.
const (
	LevenbergMarquardtMethod = "levenberg_marquardt"
	BFGSMethod               = "bfgs"
	NelderMeadMethod         = "nelder_mead"
)

const (
	defaultMaxIterations      = 200
	defaultFunctionTolerance  = 1e-12
	defaultParameterTolerance = 1e-12
	defaultGradientTolerance  = 1e-12
)

// LeastSquaresProblem is a nonlinear least squares problem: minimize the sum of squares of
// Residuals over its parameters.
type LeastSquaresProblem struct {
	NumResiduals int
	// Residuals writes the NumResiduals residuals at x into dst. It must not modify x.
	Residuals func(dst, x []float64)
	// Labels names each parameter. It may be nil.
	Labels []string
}

func (p LeastSquaresProblem) cost(x, scratch []float64) float64 {
	p.Residuals(scratch, x)
	var sse float64
	for _, r := range scratch {
		sse += r * r
	}
	return sse
}

func (p LeastSquaresProblem) check(x0 []float64) error {
	if len(x0) == 0 {
		return errors.New("problem has no parameters")
	}
	if p.NumResiduals < len(x0) {
		return newDegenerateInputError("%d residuals cannot constrain %d parameters", p.NumResiduals, len(x0))
	}
	if p.Residuals == nil {
		return errors.New("problem has no residual function")
	}
	if p.Labels != nil && len(p.Labels) != len(x0) {
		return errors.Errorf("%d labels given for %d parameters", len(p.Labels), len(x0))
	}
	return nil
}

// SolverResult is the outcome of a solve. Costs are sums of squared residuals.
type SolverResult struct {
	X           []float64
	Converged   bool
	InitialCost float64
	FinalCost   float64
	// Covariance is nil when it could not be computed.
	Covariance *Covariance
	Iterations int
	Status     string
}

// A Solver minimizes least squares problems.
type Solver interface {
	Solve(ctx context.Context, problem LeastSquaresProblem, x0 []float64) (SolverResult, error)
}

// SolverConfig selects and tunes a Solver. Zero values take defaults.
type SolverConfig struct {
	Method             string  `json:"method,omitempty" yaml:"method,omitempty"`
	MaxIterations      int     `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	FunctionTolerance  float64 `json:"function_tolerance,omitempty" yaml:"function_tolerance,omitempty"`
	ParameterTolerance float64 `json:"parameter_tolerance,omitempty" yaml:"parameter_tolerance,omitempty"`
	GradientTolerance  float64 `json:"gradient_tolerance,omitempty" yaml:"gradient_tolerance,omitempty"`
}

// Validate returns every problem with the config.
func (cfg SolverConfig) Validate() error {
	var err error
	switch strings.ToLower(cfg.Method) {
	case "", LevenbergMarquardtMethod, BFGSMethod, NelderMeadMethod:
	default:
		err = multierr.Append(err, errors.Errorf("unknown solver method %q", cfg.Method))
	}
	if cfg.MaxIterations < 0 {
		err = multierr.Append(err, errors.Errorf("max_iterations must not be negative, got %d", cfg.MaxIterations))
	}
	if cfg.FunctionTolerance < 0 {
		err = multierr.Append(err, errors.Errorf("function_tolerance must not be negative, got %v", cfg.FunctionTolerance))
	}
	if cfg.ParameterTolerance < 0 {
		err = multierr.Append(err, errors.Errorf("parameter_tolerance must not be negative, got %v", cfg.ParameterTolerance))
	}
	if cfg.GradientTolerance < 0 {
		err = multierr.Append(err, errors.Errorf("gradient_tolerance must not be negative, got %v", cfg.GradientTolerance))
	}
	return err
}

func (cfg SolverConfig) withDefaults() SolverConfig {
	if cfg.Method == "" {
		cfg.Method = LevenbergMarquardtMethod
	}
	cfg.Method = strings.ToLower(cfg.Method)
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.FunctionTolerance == 0 {
		cfg.FunctionTolerance = defaultFunctionTolerance
	}
	if cfg.ParameterTolerance == 0 {
		cfg.ParameterTolerance = defaultParameterTolerance
	}
	if cfg.GradientTolerance == 0 {
		cfg.GradientTolerance = defaultGradientTolerance
	}
	return cfg
}

// NewSolver returns the solver named by cfg.Method, defaulting to Levenberg-Marquardt.
func NewSolver(cfg SolverConfig, logger logging.Logger) (Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	switch cfg.Method {
	case BFGSMethod, NelderMeadMethod:
		return NewGonumMinimizer(cfg, logger), nil
	default:
		return NewLevenbergMarquardt(cfg, logger), nil
	}
}

// DefaultSolver returns a Levenberg-Marquardt solver with default settings.
func DefaultSolver(logger logging.Logger) Solver {
	return NewLevenbergMarquardt(SolverConfig{}.withDefaults(), logger)
}
