package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestFilteringCanBeDisabledFromFile(t *testing.T) {
	t.Parallel()

	var fileCfg Config
	require.NoError(t, yaml.Unmarshal([]byte("enrichment:\n  filtering: false\n"), &fileCfg))

	merged := mergeConfig(defaultConfig(), fileCfg)
	assert.False(t, merged.Enrichment.FilteringEnabled(), "explicit filtering: false must win over the default")
}

func TestFilteringDefaultsOnWhenAbsent(t *testing.T) {
	t.Parallel()

	assert.True(t, defaultConfig().Enrichment.FilteringEnabled())

	var fileCfg Config
	require.NoError(t, yaml.Unmarshal([]byte("enrichment:\n  batchLimit: 10\n"), &fileCfg))

	merged := mergeConfig(defaultConfig(), fileCfg)
	assert.True(t, merged.Enrichment.FilteringEnabled(), "absent key keeps the gate enabled")
	assert.Equal(t, 10, merged.Enrichment.BatchLimit)
}

func TestMergeConfigKeepsDefaultsForAbsentSections(t *testing.T) {
	t.Parallel()

	var fileCfg Config
	require.NoError(t, yaml.Unmarshal([]byte("logging:\n  level: error\n"), &fileCfg))

	merged := mergeConfig(defaultConfig(), fileCfg)
	assert.Equal(t, "error", merged.Logging.Level)
	assert.Equal(t, "ru", merged.Enrichment.TargetLang)
	assert.Equal(t, 3900, merged.Delivery.MessageLimit)
}
