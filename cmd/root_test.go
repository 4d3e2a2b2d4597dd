package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "extract", "review", "reparse", "ingest", "export", "evaluate", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "binderlab", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestReviewCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "set"} {
		assert.NotNil(t, reviewCmd.Flags().Lookup(name), "review should have --%s flag", name)
	}
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "binder-source", "lab", "folder", "test", "extract"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest should have --%s flag", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag)
	assert.Equal(t, "binder_tests.xlsx", flag.DefValue)
}

func TestArgsValidation(t *testing.T) {
	assert.Error(t, extractCmd.Args(extractCmd, nil))
	assert.NoError(t, extractCmd.Args(extractCmd, []string{"t-1"}))
	assert.Error(t, reviewCmd.Args(reviewCmd, []string{"a", "b"}))
	assert.Error(t, ingestCmd.Args(ingestCmd, nil))
	assert.NoError(t, evaluateCmd.Args(evaluateCmd, []string{"t-1"}))
}
