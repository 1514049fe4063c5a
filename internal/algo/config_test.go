package algo

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/robobull/trader/internal/domain"
	"github.com/robobull/trader/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceUnmarshalYAML(t *testing.T) {
	cases := []struct {
		in   string
		want Source
	}{
		{"literal: 30", Source{Kind: SourceLiteral, Literal: 30}},
		{"field: MACD", Source{Kind: SourceField, Field: "MACD"}},
		{"index: 1", Source{Kind: SourceIndex, Index: 1}},
	}
	for _, tc := range cases {
		var got Source
		require.NoError(t, yaml.Unmarshal([]byte(tc.in), &got), tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	var bad Source
	assert.Error(t, yaml.Unmarshal([]byte("nope: 1"), &bad))
}

func TestSourceResolve(t *testing.T) {
	outputs := []indicator.Output{
		{"value": 42, "MACD": 1.5},
		nil, // still warming up
	}

	v, ok := Source{Kind: SourceLiteral, Literal: 30}.Resolve(nil)
	assert.True(t, ok)
	assert.Equal(t, 30.0, v)

	v, ok = Source{Kind: SourceField, Field: "MACD"}.Resolve(outputs)
	assert.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = Source{Kind: SourceField, Field: "missing"}.Resolve(outputs)
	assert.False(t, ok)

	v, ok = Source{Kind: SourceIndex, Index: 0}.Resolve(outputs)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)

	_, ok = Source{Kind: SourceIndex, Index: 1}.Resolve(outputs)
	assert.False(t, ok, "nil output resolves to missing")

	_, ok = Source{Kind: SourceIndex, Index: 5}.Resolve(outputs)
	assert.False(t, ok)

	_, ok = Source{Kind: SourceField, Field: "value"}.Resolve(nil)
	assert.False(t, ok)
}

func TestCompareOperators(t *testing.T) {
	assert.True(t, compare(2, ">", 1))
	assert.True(t, compare(1, "<", 2))
	assert.True(t, compare(2, ">=", 2))
	assert.True(t, compare(2, "<=", 2))
	assert.True(t, compare(2, "==", 2))
	assert.True(t, compare(2, "===", 2))
	assert.True(t, compare(2, "!=", 1))
	assert.True(t, compare(2, "!==", 1))
	assert.False(t, compare(1, ">", 2))
	assert.False(t, compare(1, "bogus", 2))
}

func TestLoadConfig(t *testing.T) {
	raw := `
threshold_to_buy: 2.5
use_standard_patterns: true
algos:
  RSI:
    enabled: true
    type: oscillator
    weighting: 0.5
    periods:
      - name: rsi14
        kind: RSI
        period: 14
    conditions:
      - compare:
          field: value
        operator: "<"
        against:
          literal: 30
        side: buy
`
	path := filepath.Join(t.TempDir(), "algos.yaml")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.ThresholdToBuy)
	assert.Equal(t, 1.0, cfg.ThresholdToSell, "default applied")
	assert.Equal(t, 10, cfg.MinPatternSamples, "default applied")

	spec := cfg.Algos["RSI"]
	require.Len(t, spec.Conditions, 1)
	assert.Equal(t, Source{Kind: SourceField, Field: "value"}, spec.Conditions[0].Compare)
	assert.Equal(t, Source{Kind: SourceLiteral, Literal: 30}, spec.Conditions[0].Against)
	assert.Equal(t, domain.SideBuy, spec.Conditions[0].Side)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfigIsUsable(t *testing.T) {
	cfg := DefaultConfig()

	require.NotEmpty(t, cfg.Algos)
	for name, spec := range cfg.Algos {
		assert.True(t, spec.Enabled, name)
		assert.Greater(t, spec.Weighting, 0.0, name)
		require.NotEmpty(t, spec.Periods, name)
		for _, p := range spec.Periods {
			_, err := indicator.New(p.Params())
			require.NoError(t, err, name)
		}
	}
	assert.True(t, cfg.UseStandardPatterns)
}
