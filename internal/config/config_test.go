package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadRoundCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debate.MaxResearchRounds = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	cfg = DefaultConfig()
	cfg.Debate.MaxRiskRounds = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestValidateRejectsBadAlpha(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.Alpha = 1.5
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg = DefaultConfig()
	cfg.Memory.AlphaByCollection = map[string]float64{"bull": -0.1}
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg = DefaultConfig()
	cfg.Memory.AlphaByCollection = map[string]float64{"nonexistent": 0.5}
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
}

func TestValidateRejectsUnknownAnalyst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysts.Disabled = []string{"bull"}
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	cfg = DefaultConfig()
	cfg.Analysts.Disabled = []string{"news_analyst"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadDiscovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Discovery = map[string]DiscoveryPolicy{
		"market_analyst": {
			Enabled: true,
			Servers: map[string]ServerConfig{
				"alt": {Endpoint: "http://localhost:9000", Transport: "grpc"},
			},
		},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)

	// Disabled policies are not validated; they never run.
	cfg.Discovery["market_analyst"] = DiscoveryPolicy{
		Enabled: false,
		Servers: map[string]ServerConfig{
			"alt": {Endpoint: "", Transport: "grpc"},
		},
	}
	assert.NoError(t, cfg.Validate())
}

func TestAlphaFor(t *testing.T) {
	cfg := MemoryConfig{
		Alpha:             0.5,
		AlphaByCollection: map[string]float64{"bull": 0.9},
	}
	assert.Equal(t, 0.9, cfg.AlphaFor("bull"))
	assert.Equal(t, 0.5, cfg.AlphaFor("bear"))
}

func TestIsDisabled(t *testing.T) {
	cfg := AnalystsConfig{Disabled: []string{"social_analyst"}}
	assert.True(t, cfg.IsDisabled("social_analyst"))
	assert.False(t, cfg.IsDisabled("market_analyst"))
}

func TestInvocationTimeout(t *testing.T) {
	assert.Equal(t, "45s", LLMConfig{Timeout: "45s"}.InvocationTimeout().String())
	assert.Equal(t, "2m0s", LLMConfig{Timeout: ""}.InvocationTimeout().String())
	assert.Equal(t, "2m0s", LLMConfig{Timeout: "-3s"}.InvocationTimeout().String())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Debate, cfg.Debate)
	assert.Equal(t, DefaultConfig().Memory.Alpha, cfg.Memory.Alpha)
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradenerd.yaml")
	data := `
llm:
  quick_think_model: test-quick
debate:
  max_research_rounds: 3
memory:
  alpha: 0.7
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	t.Setenv("TRADENERD_API_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-quick", cfg.LLM.QuickThinkModel)
	assert.Equal(t, 3, cfg.Debate.MaxResearchRounds)
	assert.Equal(t, 0.7, cfg.Memory.Alpha)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	// Values absent from the file keep their defaults.
	assert.Equal(t, DefaultConfig().Debate.MaxRiskRounds, cfg.Debate.MaxRiskRounds)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm: [not a map"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}
