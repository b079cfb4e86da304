package piper_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/backend/piper"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePiper writes a script that records its arguments and stdin, then copies
// a fixture WAV to the --output_file path.
func fakePiper(t *testing.T, fixture, argsLog, stdinLog string, exitCode int) string {
	t.Helper()

	script := fmt.Sprintf(`#!/bin/sh
echo "$@" > %q
cat > %q
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "--output_file" ]; then out="$2"; fi
  shift
done
if [ %d -ne 0 ]; then echo "voice file is corrupt" >&2; exit %d; fi
cp %q "$out"
`, argsLog, stdinLog, exitCode, exitCode, fixture)

	path := filepath.Join(t.TempDir(), "piper")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700))

	return path
}

type piperEnv struct {
	model    core.VoiceModel
	argsLog  string
	stdinLog string
	output   string
}

func newPiper(t *testing.T, device core.Device, exitCode int) piperEnv {
	t.Helper()

	workDir := t.TempDir()

	encoded, err := audio.EncodeSamples(workDir, make([]float32, 22050), 22050)
	require.NoError(t, err)

	fixture := filepath.Join(workDir, "fixture.wav")
	require.NoError(t, os.WriteFile(fixture, encoded.Raw, 0o600))

	voice := filepath.Join(workDir, "es_ES-test.onnx")
	require.NoError(t, os.WriteFile(voice, []byte("onnx"), 0o600))

	testLogger, err := logger.New(t.TempDir(), "piper-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	env := piperEnv{
		argsLog:  filepath.Join(workDir, "args.log"),
		stdinLog: filepath.Join(workDir, "stdin.log"),
		output:   t.TempDir(),
	}

	model, err := piper.NewLoader(piper.Options{
		BinaryPath: fakePiper(t, fixture, env.argsLog, env.stdinLog, exitCode),
		ModelPath:  voice,
		OutputDir:  env.output,
	}, testLogger)(context.Background(), device)
	require.NoError(t, err)

	env.model = model

	return env
}

func TestGenerate_WritesWAV(t *testing.T) {
	t.Parallel()

	env := newPiper(t, core.Device{Kind: core.DeviceCPU, Name: "cpu"}, 0)

	speech, err := env.model.Generate(context.Background(), "Hola mundo", core.PiperParams{})
	require.NoError(t, err)
	require.NotEmpty(t, speech.FilePath)
	assert.Equal(t, env.output, filepath.Dir(speech.FilePath))

	encoded, err := audio.EncodeWAVFile(speech.FilePath)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, encoded.Duration, 1e-9)

	stdin, err := os.ReadFile(env.stdinLog)
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", string(stdin))

	args, err := os.ReadFile(env.argsLog)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--model")
	assert.Contains(t, string(args), "es_ES-test.onnx")
	assert.NotContains(t, string(args), "--cuda")
}

func TestGenerate_CUDAFlag(t *testing.T) {
	t.Parallel()

	env := newPiper(t, core.Device{Kind: core.DeviceCUDA, Name: "gpu"}, 0)

	_, err := env.model.Generate(context.Background(), "Hola", core.PiperParams{})
	require.NoError(t, err)

	args, err := os.ReadFile(env.argsLog)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(args)), "--cuda"))
}

func TestGenerate_Failure(t *testing.T) {
	t.Parallel()

	env := newPiper(t, core.Device{Kind: core.DeviceCPU, Name: "cpu"}, 3)

	_, err := env.model.Generate(context.Background(), "Hola", core.PiperParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "voice file is corrupt")

	entries, readErr := os.ReadDir(env.output)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "failed runs must not leave output files")
}

func TestGenerate_WrongParams(t *testing.T) {
	t.Parallel()

	env := newPiper(t, core.Device{Kind: core.DeviceCPU, Name: "cpu"}, 0)

	_, err := env.model.Generate(context.Background(), "Hola", core.MeloParams{Speed: 1})
	require.ErrorIs(t, err, piper.ErrWrongParams)
}

func TestLoader_MissingVoice(t *testing.T) {
	t.Setenv("VOICE_CACHE_DIR", t.TempDir())

	testLogger, err := logger.New(t.TempDir(), "piper-test.log")
	require.NoError(t, err)

	_, err = piper.NewLoader(piper.Options{
		BinaryPath: "sh",
		ModelPath:  "missing-voice-e1c2.onnx",
		OutputDir:  "",
	}, testLogger)(context.Background(), core.Device{Kind: core.DeviceCPU, Name: "cpu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-voice-e1c2.onnx")
}
