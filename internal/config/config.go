package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/edp1096/toy-pv/pkg/circuit"
	"github.com/edp1096/toy-pv/pkg/device"
)

const EnvPrefix = "PVSIM"

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Solver SolverConfig `mapstructure:"solver"`
	Sweep  SweepConfig  `mapstructure:"sweep"`
	Output OutputConfig `mapstructure:"output"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SolverConfig struct {
	Cell     CellConfig     `mapstructure:"cell"`
	Series   SeriesConfig   `mapstructure:"series"`
	Parallel ParallelConfig `mapstructure:"parallel"`
}

type CellConfig struct {
	MaxIter int     `mapstructure:"max_iter"`
	ITol    float64 `mapstructure:"i_tol"`
	VTol    float64 `mapstructure:"v_tol"`
}

type SeriesConfig struct {
	MaxIter int     `mapstructure:"max_iter"`
	VTol    float64 `mapstructure:"v_tol"`
	MinGain float64 `mapstructure:"min_gain"`
}

type ParallelConfig struct {
	MaxIter int     `mapstructure:"max_iter"`
	ITol    float64 `mapstructure:"i_tol"`
	MinGain float64 `mapstructure:"min_gain"`
}

type SweepConfig struct {
	Workers int  `mapstructure:"workers"`
	Reduce  bool `mapstructure:"reduce"`
}

type OutputConfig struct {
	Format      string `mapstructure:"format"`
	Plot        string `mapstructure:"plot"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// New returns a viper instance with defaults and PVSIM_ environment overrides.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	solvers := circuit.DefaultSolvers()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("solver.cell.max_iter", solvers.Cell.MaxIter)
	v.SetDefault("solver.cell.i_tol", solvers.Cell.ITol)
	v.SetDefault("solver.cell.v_tol", solvers.Cell.VTol)
	v.SetDefault("solver.series.max_iter", solvers.Series.MaxIter)
	v.SetDefault("solver.series.v_tol", solvers.Series.VTol)
	v.SetDefault("solver.series.min_gain", solvers.Series.MinGain)
	v.SetDefault("solver.parallel.max_iter", solvers.Parallel.MaxIter)
	v.SetDefault("solver.parallel.i_tol", solvers.Parallel.ITol)
	v.SetDefault("solver.parallel.min_gain", solvers.Parallel.MinGain)

	v.SetDefault("sweep.workers", 0)
	v.SetDefault("sweep.reduce", false)

	v.SetDefault("output.format", "table")
	v.SetDefault("output.plot", "")
	v.SetDefault("output.metrics_file", "")
}

// Load reads path, or $HOME/.pvsim.yaml when path is empty, and decodes the
// merged configuration. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(".pvsim")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var err error
	invalid := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !slices.Contains([]string{"error", "warn", "warning", "info", "debug", "trace"}, strings.ToLower(c.Log.Level)) {
		invalid("log.level %q", c.Log.Level)
	}
	if !slices.Contains([]string{"table", "json", "yaml"}, c.Output.Format) {
		invalid("output.format %q", c.Output.Format)
	}

	solvers := c.Solvers()
	if cellErr := solvers.Cell.Validate(); cellErr != nil {
		invalid("solver.cell: %w", cellErr)
	}
	err = multierr.Append(err, solvers.Series.Validate())
	err = multierr.Append(err, solvers.Parallel.Validate())
	return err
}

// Solvers converts the solver section to circuit solver settings.
func (c *Config) Solvers() circuit.Solvers {
	return circuit.Solvers{
		Cell: device.CellSolver{
			MaxIter: c.Solver.Cell.MaxIter,
			ITol:    c.Solver.Cell.ITol,
			VTol:    c.Solver.Cell.VTol,
		},
		Series: circuit.SeriesSolver{
			MaxIter: c.Solver.Series.MaxIter,
			VTol:    c.Solver.Series.VTol,
			MinGain: c.Solver.Series.MinGain,
		},
		Parallel: circuit.ParallelSolver{
			MaxIter: c.Solver.Parallel.MaxIter,
			ITol:    c.Solver.Parallel.ITol,
			MinGain: c.Solver.Parallel.MinGain,
		},
	}
}
