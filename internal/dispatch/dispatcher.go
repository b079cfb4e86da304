// Package dispatch invokes a loaded voice model with the parameters of its
// backend and turns the output into a synthesis result.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
)

// MELO_SAMPLE_RATE is the rate MeloTTS writes its output at.
const MELO_SAMPLE_RATE = 44100

var (
	ErrUnknownBackend = errors.New("no parameter mapping for backend")
	ErrEmptySpeech    = errors.New("model returned no audio")
)

// Dispatcher runs a single generation call per request.
type Dispatcher struct {
	tempDir string
	log     *logger.Logger
}

// New creates a Dispatcher. Intermediate audio files are written to tempDir
// (the OS default when empty).
func New(tempDir string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		tempDir: tempDir,
		log:     log,
	}
}

// Synthesize generates speech for a normalized request with an already
// acquired model. ref may be nil.
func (d *Dispatcher) Synthesize(
	ctx context.Context,
	req *core.Request,
	model core.VoiceModel,
	ref *audio.ReferenceAudio,
) (*core.SynthesisResult, error) {
	languageErr := checkRuntimeLanguages(req, model)
	if languageErr != nil {
		return nil, languageErr
	}

	params, err := buildParams(req, ref.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to map parameters: %w", err)
	}

	d.log.Info("Generating %d characters with %s, language: %s (%s)",
		req.TextLength(), req.Backend.Name, req.Language, core.LanguageName(req.Language))

	start := time.Now()

	speech, genErr := model.Generate(ctx, req.Text, params)
	generationTime := audio.RoundSeconds(time.Since(start).Seconds())

	if genErr != nil {
		return nil, core.GenerationFailed(genErr)
	}

	if speech == nil {
		return nil, core.GenerationFailed(ErrEmptySpeech)
	}

	defer d.removeOutput(speech.FilePath)

	encoded, encodeErr := d.encode(req.Backend.Name, speech)
	if encodeErr != nil {
		return nil, core.GenerationFailed(encodeErr)
	}

	d.log.Info("Generated %.2fs of audio in %.2fs", encoded.Duration, generationTime)

	result := &core.SynthesisResult{
		Audio:             encoded.Base64,
		SampleRate:        encoded.SampleRate,
		Duration:          encoded.Duration,
		BackendUsed:       req.Backend.Name,
		LanguageUsed:      req.Language,
		TextLength:        req.TextLength(),
		GenerationTime:    generationTime,
		DurationEstimated: encoded.Estimated,
		Speed:             nil,
		AudioKey:          "",
		RawAudio:          encoded.Raw,
	}

	if melo, ok := params.(core.MeloParams); ok {
		speed := melo.Speed
		result.Speed = &speed
	}

	return result, nil
}

// buildParams projects the normalized settings onto the backend's variant.
func buildParams(req *core.Request, referencePath string) (core.Params, error) {
	settings := req.Settings

	if !req.Backend.Cloning {
		referencePath = ""
	}

	switch req.Backend.Name {
	case core.BackendEnglish:
		return core.ChatterboxParams{
			Exaggeration:       settings.Exaggeration,
			Temperature:        settings.Temperature,
			CFGWeight:          settings.CFGWeight,
			MinP:               settings.MinP,
			TopP:               settings.TopP,
			RepetitionPenalty:  settings.RepetitionPenalty,
			Seed:               settings.Seed,
			ReferenceAudioPath: referencePath,
		}, nil
	case core.BackendMultilingual:
		return core.MultilingualParams{
			Language:           req.Language,
			Exaggeration:       settings.Exaggeration,
			Temperature:        settings.Temperature,
			CFGWeight:          settings.CFGWeight,
			Seed:               settings.Seed,
			ReferenceAudioPath: referencePath,
		}, nil
	case core.BackendMelo:
		return core.MeloParams{Speed: settings.Speed}, nil
	case core.BackendPiper:
		return core.PiperParams{}, nil
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownBackend, req.Backend.Name)
	}
}

// checkRuntimeLanguages cross-checks the requested language against the set a
// multilingual model reports once loaded.
func checkRuntimeLanguages(req *core.Request, model core.VoiceModel) error {
	if !req.Backend.Multilingual {
		return nil
	}

	multilingual, ok := model.(core.MultilingualModel)
	if !ok {
		return nil
	}

	supported := multilingual.SupportedLanguages()
	if len(supported) == 0 || slices.Contains(supported, req.Language) {
		return nil
	}

	sorted := slices.Clone(supported)
	slices.Sort(sorted)

	return core.UnsupportedLanguage(req.Language, sorted)
}

func (d *Dispatcher) encode(backend core.Backend, speech *core.Speech) (*audio.Encoded, error) {
	if speech.FilePath == "" {
		return audio.EncodeSamples(d.tempDir, speech.Samples, speech.SampleRate)
	}

	if backend == core.BackendMelo {
		sampleRate := speech.SampleRate
		if sampleRate <= 0 {
			sampleRate = MELO_SAMPLE_RATE
		}

		return audio.EncodeFileEstimate(speech.FilePath, sampleRate, audio.ESTIMATE_BYTES_PER_SECOND)
	}

	return audio.EncodeWAVFile(speech.FilePath)
}

func (d *Dispatcher) removeOutput(path string) {
	if path == "" {
		return
	}

	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		d.log.Warn("Failed to remove output file %s: %v", path, err)
	}
}
