package cas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
version: "3.0"
ssoBaseURL: https://cas.example.com/cas
serverBaseURL: http://localhost:8080
validateURL: /custom/serviceValidate
useSAML: true
`), 0o600)
	require.NoError(t, err)

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, CAS30, opts.Version)
	assert.Equal(t, "https://cas.example.com/cas", opts.SSOBaseURL)
	assert.Equal(t, "http://localhost:8080", opts.ServerBaseURL)
	assert.Equal(t, "/custom/serviceValidate", opts.ValidateURL)
	assert.True(t, opts.UseSAML)

	// a loaded file still goes through construction validation
	_, err = New(opts, acceptAll)
	assert.NoError(t, err)
}

func TestLoadOptions_MissingFile(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadOptions_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: [unclosed"), 0o600))

	_, err := LoadOptions(path)
	assert.Error(t, err)
}
