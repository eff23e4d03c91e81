package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "vs", cfg.NamePrefix)
	assert.Equal(t, "deny", cfg.PolicyDefault)
	assert.False(t, cfg.DefaultAccept())

	// State must persist across CLI invocations out of the box, so the
	// default points at a real file rather than an in-memory store.
	assert.Equal(t, "/var/lib/vpcsim/state.db", cfg.StatePath)
}

func TestLoadParsesHCL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpcsim.hcl")
	content := `
state_path        = "/var/lib/vpcsim/topology.db"
name_prefix       = "lab"
link_wait_seconds = 10
policy_default    = "allow"
log_level         = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.NamePrefix)
	assert.Equal(t, "/var/lib/vpcsim/topology.db", cfg.StatePath)
	assert.Equal(t, 10, cfg.LinkWaitSeconds)
	assert.True(t, cfg.DefaultAccept())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []Config{
		{NamePrefix: "TOOLONG"},
		{NamePrefix: "1ab"},
		{LinkWaitSeconds: -1},
		{PolicyDefault: "maybe"},
		{LogLevel: "loud"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), "%+v", c)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpcsim.hcl")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	// Never overwrite an existing file.
	assert.Error(t, WriteDefault(path))
}
