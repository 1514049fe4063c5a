// Package algo evaluates configured indicator rules ("algos") against
// incoming bars and turns their weighted votes into order requests.
package algo

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/indicator"
)

// SourceKind tags where a condition operand comes from.
type SourceKind int

const (
	// SourceLiteral compares against a fixed number from the config.
	SourceLiteral SourceKind = iota
	// SourceField reads a named field of the algo's first indicator output.
	SourceField
	// SourceIndex reads the primary value of the n-th indicator output.
	SourceIndex
)

// Source is one operand of a condition: a literal, a named output field,
// or an indicator index. Exactly one variant is set.
type Source struct {
	Kind    SourceKind
	Literal float64
	Field   string
	Index   int
}

// sourceYAML is the config shape: exactly one key must be present.
type sourceYAML struct {
	Literal *float64 `yaml:"literal"`
	Field   *string  `yaml:"field"`
	Index   *int     `yaml:"index"`
}

// UnmarshalYAML decodes the tagged variant from its one-key form.
func (s *Source) UnmarshalYAML(value *yaml.Node) error {
	var raw sourceYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch {
	case raw.Literal != nil:
		*s = Source{Kind: SourceLiteral, Literal: *raw.Literal}
	case raw.Field != nil:
		*s = Source{Kind: SourceField, Field: *raw.Field}
	case raw.Index != nil:
		*s = Source{Kind: SourceIndex, Index: *raw.Index}
	default:
		return fmt.Errorf("algo: condition source needs literal, field or index")
	}
	return nil
}

// Resolve looks the operand up against this bar's indicator outputs.
// Reports ok=false when the referenced output is missing or not yet warm,
// which short-circuits the condition to "no signal".
func (s Source) Resolve(outputs []indicator.Output) (float64, bool) {
	switch s.Kind {
	case SourceLiteral:
		return s.Literal, true
	case SourceField:
		if len(outputs) == 0 || outputs[0] == nil {
			return 0, false
		}
		return outputs[0].Field(s.Field)
	case SourceIndex:
		if s.Index < 0 || s.Index >= len(outputs) || outputs[s.Index] == nil {
			return 0, false
		}
		return outputs[s.Index].Value(), true
	}
	return 0, false
}

// Condition compares two operands and votes for a side when it holds.
type Condition struct {
	Compare  Source      `yaml:"compare"`
	Operator string      `yaml:"operator"`
	Against  Source      `yaml:"against"`
	Side     domain.Side `yaml:"side"`
}

// compare applies the configured operator. The strict variants are kept
// for config compatibility; on floats they match their loose forms.
func compare(a float64, operator string, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch operator {
	case ">":
		return a > b
	case "<":
		return a < b
	case ">=":
		return a >= b
	case "<=":
		return a <= b
	case "==", "===":
		return a == b
	case "!=", "!==":
		return a != b
	}
	return false
}

// PeriodSpec configures one indicator instance for an algo.
type PeriodSpec struct {
	Name         string  `yaml:"name"`
	Kind         string  `yaml:"kind"`
	Period       int     `yaml:"period"`
	StdDev       float64 `yaml:"std_dev"`
	FastPeriod   int     `yaml:"fast_period"`
	SlowPeriod   int     `yaml:"slow_period"`
	SignalPeriod int     `yaml:"signal_period"`
}

// Params converts the period definition to indicator parameters.
func (p PeriodSpec) Params() indicator.Params {
	return indicator.Params{
		Name:         p.Name,
		Kind:         p.Kind,
		Period:       p.Period,
		StdDev:       p.StdDev,
		FastPeriod:   p.FastPeriod,
		SlowPeriod:   p.SlowPeriod,
		SignalPeriod: p.SignalPeriod,
	}
}

// Spec is one configured algo: its indicator instances, the conditions
// that fire signals, and the fixed weighting each fired signal carries.
type Spec struct {
	Enabled    bool        `yaml:"enabled"`
	Type       string      `yaml:"type"`
	Weighting  float64     `yaml:"weighting"`
	Periods    []PeriodSpec `yaml:"periods"`
	Conditions []Condition  `yaml:"conditions"`
}

// Restriction caps how many signals of one sub-type and side may count
// toward an order. Exceeding the cap blocks the order attempt.
type Restriction struct {
	Type      string      `yaml:"type"`
	Side      domain.Side `yaml:"side"`
	Threshold int         `yaml:"threshold"`
}

// Config is the full signal-engine configuration for a session.
type Config struct {
	ThresholdToBuy      float64         `yaml:"threshold_to_buy"`
	ThresholdToSell     float64         `yaml:"threshold_to_sell"`
	UseStandardPatterns bool            `yaml:"use_standard_patterns"`
	MinPatternSamples   int             `yaml:"min_pattern_samples"`
	Restrictions        []Restriction   `yaml:"restrictions"`
	Algos               map[string]Spec `yaml:"algos"`
}

// LoadConfig reads the algo configuration from a YAML file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("algo.LoadConfig: read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("algo.LoadConfig: parse YAML: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MinPatternSamples <= 0 {
		c.MinPatternSamples = 10
	}
	if c.ThresholdToBuy <= 0 {
		c.ThresholdToBuy = 1
	}
	if c.ThresholdToSell <= 0 {
		c.ThresholdToSell = 1
	}
}

// DefaultConfig is the built-in rule set used when no algos file is
// supplied: RSI extremes, an SMA/EMA crossover and a MACD signal cross,
// plus the standard candlestick pass.
func DefaultConfig() Config {
	cfg := Config{
		ThresholdToBuy:      1,
		ThresholdToSell:     1,
		UseStandardPatterns: true,
		Restrictions: []Restriction{
			{Type: "movingaverage", Side: domain.SideBuy, Threshold: 3},
		},
		Algos: map[string]Spec{
			"RSI": {
				Enabled:   true,
				Type:      "oscillator",
				Weighting: 0.5,
				Periods:   []PeriodSpec{{Name: "rsi14", Kind: "RSI", Period: 14}},
				Conditions: []Condition{
					{
						Compare:  Source{Kind: SourceField, Field: "value"},
						Operator: "<",
						Against:  Source{Kind: SourceLiteral, Literal: 30},
						Side:     domain.SideBuy,
					},
					{
						Compare:  Source{Kind: SourceField, Field: "value"},
						Operator: ">",
						Against:  Source{Kind: SourceLiteral, Literal: 70},
						Side:     domain.SideSell,
					},
				},
			},
			"SMA": {
				Enabled:   true,
				Type:      "movingaverage",
				Weighting: 0.5,
				Periods: []PeriodSpec{
					{Name: "smaFast", Kind: "SMA", Period: 9},
					{Name: "smaSlow", Kind: "SMA", Period: 21},
				},
				Conditions: []Condition{
					{
						Compare:  Source{Kind: SourceIndex, Index: 0},
						Operator: ">",
						Against:  Source{Kind: SourceIndex, Index: 1},
						Side:     domain.SideBuy,
					},
					{
						Compare:  Source{Kind: SourceIndex, Index: 0},
						Operator: "<",
						Against:  Source{Kind: SourceIndex, Index: 1},
						Side:     domain.SideSell,
					},
				},
			},
			"MACD": {
				Enabled:   true,
				Type:      "movingaverage",
				Weighting: 0.5,
				Periods: []PeriodSpec{
					{Name: "macd", Kind: "MACD", FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
				},
				Conditions: []Condition{
					{
						Compare:  Source{Kind: SourceField, Field: "MACD"},
						Operator: ">",
						Against:  Source{Kind: SourceField, Field: "signal"},
						Side:     domain.SideBuy,
					},
					{
						Compare:  Source{Kind: SourceField, Field: "MACD"},
						Operator: "<",
						Against:  Source{Kind: SourceField, Field: "signal"},
						Side:     domain.SideSell,
					},
				},
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}
