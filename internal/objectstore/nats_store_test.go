package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/voice-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	return jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, err := objectstore.New(newJetStream(t), "voice-audio")
	require.NoError(t, err)
	assert.Equal(t, "voice-audio", store.Bucket())

	ctx := context.Background()
	wavData := []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

	require.NoError(t, store.Upload(ctx, "clip.wav", wavData))

	downloaded, err := store.Download(ctx, "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, wavData, downloaded)

	_, err = store.Download(ctx, "missing.wav")
	require.Error(t, err)
}

func TestNatsObjectStore_BindsExistingBucket(t *testing.T) {
	t.Parallel()

	jetstreamContext := newJetStream(t)

	first, err := objectstore.New(jetstreamContext, "shared-audio")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "a.wav", []byte("a")))

	second, err := objectstore.New(jetstreamContext, "shared-audio")
	require.NoError(t, err)

	data, err := second.Download(context.Background(), "a.wav")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestNatsObjectStore_Guards(t *testing.T) {
	t.Parallel()

	store, err := objectstore.New(newJetStream(t), "guarded-audio")
	require.NoError(t, err)

	require.ErrorIs(t, store.Upload(context.Background(), "", []byte("x")), objectstore.ErrEmptyKey)

	_, err = store.Download(context.Background(), "")
	require.ErrorIs(t, err, objectstore.ErrEmptyKey)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, store.Upload(cancelled, "late.wav", []byte("x")), context.Canceled)
}
