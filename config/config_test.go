package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesReferenceScenario(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Mesh.TimeNodes)
	assert.Equal(t, 100, cfg.Mesh.SpaceNodes)
	assert.Equal(t, 5.0, cfg.Mesh.TimeBunching)
	assert.Equal(t, 0.05, cfg.Mesh.SpaceBunching)
	assert.Equal(t, 3.5, cfg.Mesh.MaxMoneyness)
	assert.Equal(t, 0.55, cfg.Solver.Theta)
	assert.Equal(t, 4, cfg.Greeks.Workers)
	assert.True(t, cfg.Job.IsCall)
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("PDE_MESH_TIME_NODES", "50")
	t.Setenv("PDE_SOLVER_THETA", "1")

	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Mesh.TimeNodes)
	assert.Equal(t, 1.0, cfg.Solver.Theta)
}

func TestValidateRejectsBadSolverSettings(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	bad := *cfg
	bad.Solver.Theta = 1.5
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Greeks.Workers = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Mesh.SpaceBunching = 0
	assert.Error(t, bad.Validate())
}

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("PDE_CONFIG_PATH", path)
}

func TestLoadReadsConfigFile(t *testing.T) {
	writeConfig(t, "job:\n  strike: 130\nsolver:\n  theta: 1.0\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 130.0, cfg.Job.Strike)
	assert.Equal(t, 1.0, cfg.Solver.Theta)
	assert.Equal(t, 100, cfg.Mesh.SpaceNodes, "unset keys keep their defaults")
}

func TestLoadRejectsInvalidConfigFile(t *testing.T) {
	writeConfig(t, "job:\n  strike: 130\nsolver:\n  theta: 2.0\n")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.False(t, IsNotFound(err), "a rejected file is not a missing file")
	assert.Contains(t, err.Error(), "solver.theta")
}

func TestLoadWithoutConfigFile(t *testing.T) {
	// Tests run inside config/, which has no config/ subdirectory
	t.Setenv("PDE_CONFIG_PATH", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "got %v", err)
}

func TestValidateRejectsZeroTheta(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	cfg.Solver.Theta = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ExplicitSolver")
}
