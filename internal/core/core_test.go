package core_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/book-expert/voice-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestJobErrorKinds(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		err      *core.JobError
		kind     error
		kindName string
		field    string
	}{
		{"missing field", core.MissingField("text"), core.ErrMissingField, "missing_field", "text"},
		{
			"invalid enum",
			core.InvalidEnum("backend", "klingon", []string{"english"}),
			core.ErrInvalidEnum, "invalid_enum", "backend",
		},
		{
			"invalid parameter",
			core.InvalidParameter("seed", "must be a non-negative integer"),
			core.ErrInvalidParameter, "invalid_parameter", "seed",
		},
		{
			"unsupported language",
			core.UnsupportedLanguage("xx", []string{"en"}),
			core.ErrUnsupportedLanguage, "unsupported_language", "language",
		},
		{"invalid audio", core.InvalidAudio(errBoom), core.ErrInvalidAudio, "invalid_audio", "reference_audio"},
		{"generation failed", core.GenerationFailed(errBoom), core.ErrGenerationFailed, "generation_failed", ""},
		{"internal", core.Internal("internal error", errBoom), core.ErrInternal, "internal", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.ErrorIs(t, tc.err, tc.kind)
			assert.Equal(t, tc.kindName, tc.err.KindName())
			assert.Equal(t, tc.field, tc.err.Field)
			assert.Equal(t, tc.kindName, tc.err.ToResult().Kind)
		})
	}
}

func TestJobErrorUnwrapsCause(t *testing.T) {
	t.Parallel()

	err := core.GenerationFailed(errBoom)

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "Generation failed: boom", err.Error())

	wrapped := fmt.Errorf("dispatch: %w", err)

	jobErr, ok := core.AsJobError(wrapped)
	require.True(t, ok)
	assert.Same(t, err, jobErr)

	_, ok = core.AsJobError(errBoom)
	assert.False(t, ok)
}

func TestInternalHidesCause(t *testing.T) {
	t.Parallel()

	result := core.Internal("internal error while processing job", errBoom).ToResult()

	assert.Equal(t, "internal error while processing job", result.Error)
	assert.NotContains(t, result.Error, "boom")
	assert.Empty(t, result.SupportedLanguages)
}

func TestUnknownKindReportsInternal(t *testing.T) {
	t.Parallel()

	err := &core.JobError{Kind: errBoom, Message: "odd"}

	assert.Equal(t, "internal", err.KindName())
}

func TestUnsupportedLanguageCopiesSet(t *testing.T) {
	t.Parallel()

	supported := []string{"en", "fr"}
	result := core.UnsupportedLanguage("xx", supported).ToResult()

	supported[0] = "zz"

	assert.Equal(t, []string{"en", "fr"}, result.SupportedLanguages)
}

func TestEnvelopeMarshalsFlat(t *testing.T) {
	t.Parallel()

	t.Run("result", func(t *testing.T) {
		t.Parallel()

		envelope := core.Envelope{
			Result: &core.SynthesisResult{
				Audio:             "UklGRg==",
				SampleRate:        24000,
				Duration:          1.5,
				BackendUsed:       core.BackendEnglish,
				LanguageUsed:      "en",
				TextLength:        5,
				GenerationTime:    0.42,
				DurationEstimated: false,
				Speed:             nil,
				AudioKey:          "",
				RawAudio:          []byte("RIFF"),
			},
			Failure: nil,
		}

		data, err := json.Marshal(envelope)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))

		assert.Equal(t, "english", fields["backend_used"])
		assert.NotContains(t, fields, "error")
		assert.NotContains(t, fields, "speed")
		assert.NotContains(t, fields, "audio_key")
		assert.NotContains(t, fields, "RawAudio")

		var decoded core.Envelope
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.True(t, decoded.OK())

		expected := *envelope.Result
		expected.RawAudio = nil
		assert.Equal(t, &expected, decoded.Result)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		envelope := core.Envelope{
			Result:  nil,
			Failure: core.UnsupportedLanguage("xx", []string{"en", "es"}).ToResult(),
		}

		data, err := json.Marshal(envelope)
		require.NoError(t, err)
		assert.JSONEq(t,
			`{"error": "Unsupported language: 'xx'", "error_kind": "unsupported_language", "supported_languages": ["en", "es"]}`,
			string(data))

		var decoded core.Envelope
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.False(t, decoded.OK())
		assert.Equal(t, envelope.Failure, decoded.Failure)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		_, err := json.Marshal(core.Envelope{})
		require.ErrorIs(t, err, core.ErrEmptyEnvelope)
	})
}

func TestBackendDeclarations(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]core.Backend{core.BackendEnglish, core.BackendMelo, core.BackendMultilingual, core.BackendPiper},
		core.Backends())

	english, ok := core.LookupBackend(core.BackendEnglish)
	require.True(t, ok)
	assert.Equal(t, "en", english.FixedLanguage())
	assert.True(t, english.Cloning)

	multilingual, ok := core.LookupBackend(core.BackendMultilingual)
	require.True(t, ok)
	assert.Empty(t, multilingual.FixedLanguage())
	assert.Len(t, multilingual.Languages, 23)
	assert.IsIncreasing(t, multilingual.Languages)
	assert.True(t, multilingual.Supports("fr"))
	assert.False(t, multilingual.Supports("invalid"))

	multilingual.Languages[0] = "mutated"

	again, _ := core.LookupBackend(core.BackendMultilingual)
	assert.Equal(t, "ar", again.Languages[0])

	_, ok = core.LookupBackend("klingon")
	assert.False(t, ok)

	assert.Equal(t, "French", core.LanguageName("fr"))
	assert.Equal(t, "Unknown", core.LanguageName("xx"))
}

func TestBackendOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, core.BackendMelo, core.BackendOf(core.MeloParams{Speed: 1}))
	assert.Equal(t, core.BackendPiper, core.BackendOf(core.PiperParams{}))
	assert.Equal(t, core.BackendMultilingual, core.BackendOf(core.MultilingualParams{Language: "fr"}))
}
