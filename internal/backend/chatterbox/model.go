package chatterbox

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
)

// Model names understood by the server.
const (
	MODEL_ENGLISH      = "chatterbox"
	MODEL_MULTILINGUAL = "chatterbox-multilingual"
)

// ErrWrongParams is returned when a model receives another backend's parameters.
var ErrWrongParams = errors.New("parameters do not match model")

// EnglishModel is the English-only Chatterbox model.
type EnglishModel struct {
	client *Client
}

// Generate synthesizes text with ChatterboxParams.
func (m *EnglishModel) Generate(ctx context.Context, text string, params core.Params) (*core.Speech, error) {
	chatterboxParams, ok := params.(core.ChatterboxParams)
	if !ok {
		return nil, fmt.Errorf("%w: english got %s", ErrWrongParams, core.BackendOf(params))
	}

	return generate(ctx, m.client, SpeechRequest{
		Model:             MODEL_ENGLISH,
		Text:              text,
		Language:          "",
		SpeakerRefPath:    chatterboxParams.ReferenceAudioPath,
		Exaggeration:      chatterboxParams.Exaggeration,
		Temperature:       chatterboxParams.Temperature,
		CFGWeight:         chatterboxParams.CFGWeight,
		MinP:              &chatterboxParams.MinP,
		TopP:              &chatterboxParams.TopP,
		RepetitionPenalty: &chatterboxParams.RepetitionPenalty,
		Seed:              chatterboxParams.Seed,
	})
}

// MultilingualModel is the multilingual Chatterbox model.
type MultilingualModel struct {
	client    *Client
	languages []string
}

// Generate synthesizes text with MultilingualParams.
func (m *MultilingualModel) Generate(ctx context.Context, text string, params core.Params) (*core.Speech, error) {
	multilingualParams, ok := params.(core.MultilingualParams)
	if !ok {
		return nil, fmt.Errorf("%w: multilingual got %s", ErrWrongParams, core.BackendOf(params))
	}

	return generate(ctx, m.client, SpeechRequest{
		Model:             MODEL_MULTILINGUAL,
		Text:              text,
		Language:          multilingualParams.Language,
		SpeakerRefPath:    multilingualParams.ReferenceAudioPath,
		Exaggeration:      multilingualParams.Exaggeration,
		Temperature:       multilingualParams.Temperature,
		CFGWeight:         multilingualParams.CFGWeight,
		MinP:              nil,
		TopP:              nil,
		RepetitionPenalty: nil,
		Seed:              multilingualParams.Seed,
	})
}

// SupportedLanguages returns the codes reported by the server at load time.
func (m *MultilingualModel) SupportedLanguages() []string {
	return slices.Clone(m.languages)
}

// NewEnglishLoader returns a loader that makes the English model resident.
func NewEnglishLoader(client *Client, log *logger.Logger) func(context.Context, core.Device) (core.VoiceModel, error) {
	return func(ctx context.Context, device core.Device) (core.VoiceModel, error) {
		loadErr := load(ctx, client, MODEL_ENGLISH, device, log)
		if loadErr != nil {
			return nil, loadErr
		}

		return &EnglishModel{client: client}, nil
	}
}

// NewMultilingualLoader returns a loader that makes the multilingual model
// resident and records its language list. If the server cannot list its
// languages, the declared set is used.
func NewMultilingualLoader(client *Client, log *logger.Logger) func(context.Context, core.Device) (core.VoiceModel, error) {
	return func(ctx context.Context, device core.Device) (core.VoiceModel, error) {
		loadErr := load(ctx, client, MODEL_MULTILINGUAL, device, log)
		if loadErr != nil {
			return nil, loadErr
		}

		languages, err := client.Languages(ctx, MODEL_MULTILINGUAL)
		if err != nil || len(languages) == 0 {
			log.Warn("Could not list multilingual languages, using declared set: %v", err)

			info, _ := core.LookupBackend(core.BackendMultilingual)
			languages = info.Languages
		}

		log.Info("Multilingual model supports %d languages", len(languages))

		return &MultilingualModel{client: client, languages: languages}, nil
	}
}

func load(ctx context.Context, client *Client, model string, device core.Device, log *logger.Logger) error {
	healthErr := client.HealthCheck(ctx)
	if healthErr != nil {
		return healthErr
	}

	log.Info("Requesting %s on %s", model, device.Kind)

	loadErr := client.LoadModel(ctx, LoadRequest{Model: model, Device: string(device.Kind)})
	if loadErr != nil {
		return fmt.Errorf("failed to load %s: %w", model, loadErr)
	}

	return nil
}

func generate(ctx context.Context, client *Client, req SpeechRequest) (*core.Speech, error) {
	wavData, err := client.GenerateSpeech(ctx, req)
	if err != nil {
		return nil, err
	}

	samples, sampleRate, err := audio.DecodeWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s output: %w", req.Model, err)
	}

	return &core.Speech{Samples: samples, SampleRate: sampleRate, FilePath: ""}, nil
}
