package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidatePinsNumThreadsToOneUnderISIS(t *testing.T) {
	cfg := Default()
	cfg.NumThreads = 8
	cfg.SessionType = "isis"

	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.NumThreads)
}

func TestValidateLeavesNumThreadsAloneForNonISISSessions(t *testing.T) {
	cfg := Default()
	cfg.NumThreads = 8
	cfg.SessionType = "pinhole"

	require.NoError(t, cfg.Validate())
	require.Equal(t, 8, cfg.NumThreads)
}

func TestValidateDefaultsNonPositiveNumThreadsToOne(t *testing.T) {
	cfg := Default()
	cfg.NumThreads = 0

	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.NumThreads)
}

func TestValidateRejectsUnknownCostFunction(t *testing.T) {
	cfg := Default()
	cfg.CostFunction = "bogus"

	require.Error(t, cfg.Validate())
}
