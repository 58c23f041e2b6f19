package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccastromar/aos-healthcare-assistant/internal/config"
)

func TestDefinitionsSwap(t *testing.T) {
	rt := New(nil, nil, nil)
	require.False(t, rt.SpecsLoaded())
	require.Nil(t, rt.Definitions())

	rt.SetDefinitions(&config.Config{})
	require.False(t, rt.SpecsLoaded())

	cfg := &config.Config{Crews: map[string]config.Crew{"healthcare": {Name: "healthcare"}}}
	rt.SetDefinitions(cfg)
	require.True(t, rt.SpecsLoaded())
	require.Same(t, cfg, rt.Definitions())
}
