package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/worker"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSubject = "voice.jobs.client-test"

var fakeWAV = []byte("RIFF fake wav bytes")

// fakeService answers jobs the way the real service would for the check scenarios.
type fakeService struct {
	mu     sync.Mutex
	inputs []map[string]any
	// brokenLanguage makes every job in that language fail.
	brokenLanguage string
}

func (f *fakeService) answer(msg *nats.Msg) {
	var job worker.JobMessage

	_ = json.Unmarshal(msg.Data, &job)

	f.mu.Lock()
	f.inputs = append(f.inputs, job.Input)
	broken := f.brokenLanguage
	f.mu.Unlock()

	var output core.Envelope

	text, _ := job.Input["text"].(string)
	language, _ := job.Input["language"].(string)

	switch {
	case text == "":
		output.Failure = core.MissingField("text").ToResult()
	case language == "invalid" || (broken != "" && language == broken):
		output.Failure = core.UnsupportedLanguage(language, []string{"en", "es", "fr"}).ToResult()
	default:
		output.Result = &core.SynthesisResult{
			Audio:             audio.EncodeBase64(fakeWAV),
			SampleRate:        24000,
			Duration:          1.5,
			BackendUsed:       core.Backend(stringOr(job.Input["backend"], "english")),
			LanguageUsed:      stringOr(language, "en"),
			TextLength:        len(text),
			GenerationTime:    0.25,
			DurationEstimated: false,
			Speed:             nil,
			AudioKey:          "",
			RawAudio:          nil,
		}
	}

	data, _ := json.Marshal(worker.JobReply{Header: *job.Header, Output: output})
	_ = msg.Respond(data)
}

func (f *fakeService) recorded() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]map[string]any(nil), f.inputs...)
}

func stringOr(value any, fallback string) string {
	if text, ok := value.(string); ok && text != "" {
		return text
	}

	return fallback
}

func startFakeService(t *testing.T, service *fakeService) string {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	conn, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = conn.Subscribe(testSubject, service.answer)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	return natsServer.ClientURL()
}

func newTestSession(t *testing.T, url string) *session {
	t.Helper()

	log, err := logger.New(t.TempDir(), "voice-client-test.log")
	require.NoError(t, err)

	conn, err := nats.Connect(url)
	require.NoError(t, err)

	sess := &session{
		opts: clientOptions{natsURL: url, subject: testSubject, timeout: defaultTimeout},
		conn: conn,
		log:  log,
	}
	t.Cleanup(sess.close)

	return sess
}

func TestNewRootCommand(t *testing.T) {
	cmd := newRootCommand()

	assert.Equal(t, "voice-client", cmd.Use)
	assert.True(t, cmd.HasSubCommands())

	for _, name := range []string{flagNATSURL, flagSubject, flagTimeout} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}

	subject, err := cmd.PersistentFlags().GetString(flagSubject)
	require.NoError(t, err)
	assert.Equal(t, "voice.jobs", subject)
}

func TestNewSubmitCommand(t *testing.T) {
	cmd := newSubmitCommand(nil)

	assert.Equal(t, "submit", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	output, err := cmd.Flags().GetString(flagOutput)
	require.NoError(t, err)
	assert.Equal(t, defaultOutputFile, output)
}

func TestNewCheckCommand(t *testing.T) {
	cmd := newCheckCommand(nil)

	assert.Equal(t, "check", cmd.Use)
	assert.NotNil(t, cmd.RunE)
	assert.False(t, cmd.HasSubCommands())
	assert.False(t, cmd.HasLocalFlags())
}

func TestBuildInput(t *testing.T) {
	t.Run("requires text or input file", func(t *testing.T) {
		cmd := newSubmitCommand(nil)

		_, err := buildInput(cmd, submitFlags{})
		require.ErrorIs(t, err, ErrNoText)
	})

	t.Run("rejects text and input file together", func(t *testing.T) {
		cmd := newSubmitCommand(nil)

		_, err := buildInput(cmd, submitFlags{text: "Hi", inputFile: "job.json"})
		require.ErrorIs(t, err, ErrTextAndInput)
	})

	t.Run("sends only flags that were set", func(t *testing.T) {
		cmd := newSubmitCommand(nil)
		require.NoError(t, cmd.ParseFlags([]string{"--text", "Hola", "--speed", "1.25", "--backend", "melo"}))

		text, _ := cmd.Flags().GetString(flagText)
		speed, _ := cmd.Flags().GetFloat64(flagSpeed)
		backend, _ := cmd.Flags().GetString(flagBackend)

		input, err := buildInput(cmd, submitFlags{text: text, speed: speed, backend: backend})
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"text": "Hola", "speed": 1.25, "backend": "melo"}, input)
	})

	t.Run("encodes reference audio", func(t *testing.T) {
		refPath := filepath.Join(t.TempDir(), "ref.wav")
		require.NoError(t, os.WriteFile(refPath, fakeWAV, 0o600))

		cmd := newSubmitCommand(nil)

		input, err := buildInput(cmd, submitFlags{text: "Hi", reference: refPath})
		require.NoError(t, err)
		assert.Equal(t, audio.EncodeBase64(fakeWAV), input["reference_audio"])
	})

	t.Run("unwraps input files", func(t *testing.T) {
		jobPath := filepath.Join(t.TempDir(), "job.json")
		require.NoError(t, os.WriteFile(jobPath, []byte(`{"input": {"text": "Bonjour", "language": "fr"}}`), 0o600))

		cmd := newSubmitCommand(nil)

		input, err := buildInput(cmd, submitFlags{inputFile: jobPath})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"text": "Bonjour", "language": "fr"}, input)
	})

	t.Run("reports malformed input files", func(t *testing.T) {
		jobPath := filepath.Join(t.TempDir(), "job.json")
		require.NoError(t, os.WriteFile(jobPath, []byte(`not json`), 0o600))

		cmd := newSubmitCommand(nil)

		_, err := buildInput(cmd, submitFlags{inputFile: jobPath})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse job file")
	})
}

func TestSubmitWritesAudio(t *testing.T) {
	service := &fakeService{}
	url := startFakeService(t, service)
	outputPath := filepath.Join(t.TempDir(), "page.wav")

	cmd := newRootCommand()

	var out strings.Builder
	cmd.SetOut(&out)
	cmd.SetArgs([]string{
		"--nats-url", url, "--subject", testSubject,
		"submit", "--text", "Hola, esto es español.", "--backend", "multilingual",
		"--language", "es", "--cfg-weight", "0.3", "-o", outputPath,
	})

	require.NoError(t, cmd.ExecuteContext(context.Background()))

	written, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, fakeWAV, written)
	assert.Contains(t, out.String(), "Generated: "+outputPath)
	assert.Contains(t, out.String(), "multilingual (es)")

	inputs := service.recorded()
	require.Len(t, inputs, 1)
	assert.InDelta(t, 0.3, inputs[0]["cfg_weight"], 1e-9)
	assert.NotContains(t, inputs[0], "exaggeration")
}

func TestSubmitReportsJobFailure(t *testing.T) {
	url := startFakeService(t, &fakeService{})
	sess := newTestSession(t, url)
	outputPath := filepath.Join(t.TempDir(), "page.wav")

	cmd := newSubmitCommand(nil)
	cmd.SetContext(context.Background())

	err := submit(cmd, sess, map[string]any{"text": "Test", "language": "invalid"}, outputPath)
	require.ErrorIs(t, err, ErrJobFailed)
	assert.Contains(t, err.Error(), "unsupported_language")
	assert.NoFileExists(t, outputPath)
}

func TestRunChecks(t *testing.T) {
	t.Run("all scenarios pass", func(t *testing.T) {
		service := &fakeService{}
		sess := newTestSession(t, startFakeService(t, service))

		var out strings.Builder

		err := runChecks(context.Background(), &out, sess, defaultScenarios())
		require.NoError(t, err)

		assert.Equal(t, 6, strings.Count(out.String(), "PASSED"))
		assert.Contains(t, out.String(), "6/6 checks passed")
		assert.Len(t, service.recorded(), 6)
	})

	t.Run("a failing backend is reported", func(t *testing.T) {
		service := &fakeService{brokenLanguage: "fr"}
		sess := newTestSession(t, startFakeService(t, service))

		var out strings.Builder

		err := runChecks(context.Background(), &out, sess, defaultScenarios())
		require.ErrorIs(t, err, ErrChecksFailed)
		assert.Contains(t, out.String(), "FAILED  multilingual fr")
		assert.Contains(t, out.String(), "5/6 checks passed")
	})

	t.Run("an accepted bad job is reported", func(t *testing.T) {
		sess := newTestSession(t, startFakeService(t, &fakeService{}))

		var out strings.Builder

		err := runChecks(context.Background(), &out, sess, []scenario{
			{name: "should fail", input: map[string]any{"text": "fine"}, wantError: true},
		})
		require.ErrorIs(t, err, ErrChecksFailed)
		assert.Contains(t, out.String(), "expected an error, got audio")
	})
}

func TestRequestWithoutConnection(t *testing.T) {
	sess := &session{opts: clientOptions{}, conn: nil, log: nil}

	_, err := sess.request(context.Background(), map[string]any{"text": "Hi"})
	require.ErrorIs(t, err, ErrNoConnection)
}
