package audio_test

import (
	"os"
	"testing"

	"github.com/book-expert/voice-service/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeReference_ReleaseOnce(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	payload := []byte("RIFF fake reference")

	ref, err := audio.MaterializeReference(dir, payload)
	require.NoError(t, err)

	stored, err := os.ReadFile(ref.Path())
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	require.NoError(t, ref.Release())
	assert.NoFileExists(t, ref.Path())

	// A second release is a no-op.
	require.NoError(t, ref.Release())
}

func TestMaterializeReference_Empty(t *testing.T) {
	t.Parallel()

	_, err := audio.MaterializeReference(t.TempDir(), nil)
	require.ErrorIs(t, err, audio.ErrEmptyAudio)
}

func TestReferenceAudio_NilHandle(t *testing.T) {
	t.Parallel()

	var ref *audio.ReferenceAudio

	assert.Empty(t, ref.Path())
	assert.NoError(t, ref.Release())
}
