package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "taskenginectl", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	commands := cmd.Commands()
	assert.Len(t, commands, 2, "should have run and bench subcommands")

	names := make(map[string]bool)
	for _, c := range commands {
		names[c.Use] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["bench"])

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()
	assert.Equal(t, "run", cmd.Use)
	assert.NotNil(t, cmd.RunE)
}

func TestBuildBenchCommand(t *testing.T) {
	cmd := buildBenchCommand()
	assert.Equal(t, "bench", cmd.Use)
	assert.NotNil(t, cmd.RunE)

	unitsFlag := cmd.Flags().Lookup("units")
	assert.NotNil(t, unitsFlag)
	assert.Equal(t, "1", unitsFlag.DefValue)

	countFlag := cmd.Flags().Lookup("count")
	assert.NotNil(t, countFlag)
	assert.Equal(t, "1000", countFlag.DefValue)
}

func TestPoolSizeFromConfig(t *testing.T) {
	v, err := poolSizeFromConfig("auto")
	assert.NoError(t, err)
	assert.Equal(t, -1, v)

	v, err = poolSizeFromConfig("")
	assert.NoError(t, err)
	assert.Equal(t, -1, v)

	v, err = poolSizeFromConfig("8")
	assert.NoError(t, err)
	assert.Equal(t, 8, v)

	_, err = poolSizeFromConfig("not-a-number")
	assert.Error(t, err)
}
