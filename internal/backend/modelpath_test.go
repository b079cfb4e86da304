package backend_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-service/internal/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModelPath_Absolute(t *testing.T) {
	t.Parallel()

	modelPath := filepath.Join(t.TempDir(), "voice.onnx")
	require.NoError(t, os.WriteFile(modelPath, []byte("onnx"), 0o600))

	resolved, err := backend.ResolveModelPath(modelPath)
	require.NoError(t, err)
	assert.Equal(t, modelPath, resolved)
}

func TestResolveModelPath_CacheDir(t *testing.T) {
	cacheDir := t.TempDir()
	t.Setenv("VOICE_CACHE_DIR", cacheDir)

	modelsDir := filepath.Join(cacheDir, "models")
	require.NoError(t, os.MkdirAll(modelsDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "cached-voice.onnx"), []byte("onnx"), 0o600))

	resolved, err := backend.ResolveModelPath("cached-voice.onnx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(modelsDir, "cached-voice.onnx"), resolved)
	assert.Equal(t, cacheDir, backend.CacheDir())
}

func TestResolveModelPath_NotFound(t *testing.T) {
	t.Setenv("VOICE_CACHE_DIR", t.TempDir())

	_, err := backend.ResolveModelPath("no-such-voice-7f3a.onnx")
	require.ErrorIs(t, err, backend.ErrModelNotFound)
}
