package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Default().AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"PORT", "MODEL_PATH", "METADATA_PATH", "ORT_LIBRARY_PATH", "MAX_UPLOAD_BYTES", "MAX_IMAGE_PIXELS"} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newFlagSet(t), "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: "9000"
model_path: /srv/model.onnx
metadata_path: /srv/meta.yaml
max_upload_bytes: 2048
shutdown_timeout: 3s
`), 0o644))

	t.Setenv("MODEL_PATH", "/env/model.onnx")
	t.Setenv("MAX_UPLOAD_BYTES", "4096")
	t.Setenv("MAX_IMAGE_PIXELS", "1000000")

	cfg, err := Load(newFlagSet(t, "--max-upload-bytes=8192", "--ort-library=/opt/libonnxruntime.so"), file)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "/env/model.onnx", cfg.ModelPath)
	assert.Equal(t, "/srv/meta.yaml", cfg.MetadataPath)
	assert.Equal(t, "/opt/libonnxruntime.so", cfg.ORTLibraryPath)
	assert.Equal(t, int64(8192), cfg.MaxUploadBytes)
	assert.Equal(t, int64(1000000), cfg.MaxImagePixels)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad env number", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_UPLOAD_BYTES", "ten")
		_, err := Load(newFlagSet(t), "")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(newFlagSet(t), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid port", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(newFlagSet(t, "--port=http"), "")
		assert.Error(t, err)
	})

	t.Run("bad pixel limit env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_IMAGE_PIXELS", "lots")
		_, err := Load(newFlagSet(t), "")
		assert.Error(t, err)
	})

	t.Run("non positive pixel limit", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(newFlagSet(t, "--max-image-pixels=-1"), "")
		assert.Error(t, err)
	})

	t.Run("non positive upload limit", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(newFlagSet(t, "--max-upload-bytes=0"), "")
		assert.Error(t, err)
	})
}
