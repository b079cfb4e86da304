// Package normalize turns an untrusted job mapping into a core.Request,
// applying defaults, per-parameter range policies and language checks.
package normalize

import (
	"errors"
	"fmt"
	"slices"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
)

// DefaultMaxTextLength is the text ceiling in runes.
const DefaultMaxTextLength = 500

// Field names on the wire. The legacy names are accepted as aliases.
const (
	FieldText                = "text"
	FieldBackend             = "backend"
	FieldLanguage            = "language"
	FieldReferenceAudio      = "reference_audio"
	legacyFieldBackend       = "model_type"
	legacyFieldLanguage      = "language_id"
	legacyFieldReferenceData = "audio_prompt"
)

// ErrUnknownDefaultBackend is returned when the configured default backend does not exist.
var ErrUnknownDefaultBackend = errors.New("unknown default backend")

// Options configures a Normalizer. Zero values select the defaults.
type Options struct {
	MaxTextLength  int
	DefaultBackend core.Backend
	Params         []ParamSpec
}

// Normalizer validates and normalizes jobs. It holds no per-job state.
type Normalizer struct {
	maxTextLength  int
	defaultBackend core.Backend
	params         []ParamSpec
	seed           ParamSpec
	log            *logger.Logger
}

// New creates a Normalizer.
func New(opts Options, log *logger.Logger) (*Normalizer, error) {
	maxTextLength := opts.MaxTextLength
	if maxTextLength <= 0 {
		maxTextLength = DefaultMaxTextLength
	}

	defaultBackend := opts.DefaultBackend
	if defaultBackend == "" {
		defaultBackend = core.DefaultBackend
	}

	if _, ok := core.LookupBackend(defaultBackend); !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownDefaultBackend, defaultBackend)
	}

	params := opts.Params
	if len(params) == 0 {
		params = DefaultParamSpecs()
	}

	return &Normalizer{
		maxTextLength:  maxTextLength,
		defaultBackend: defaultBackend,
		params:         slices.Clone(params),
		seed:           ParamSpec{Name: ParamSeed, Default: 0, Min: 0, Max: float64(1<<63 - 1), Policy: PolicyReject},
		log:            log,
	}, nil
}

// Normalize validates a raw job. Every returned error is a *core.JobError.
func (n *Normalizer) Normalize(raw map[string]any) (*core.Request, error) {
	text, err := n.normalizeText(raw)
	if err != nil {
		return nil, err
	}

	info, err := n.normalizeBackend(raw)
	if err != nil {
		return nil, err
	}

	settings, err := n.normalizeSettings(raw)
	if err != nil {
		return nil, err
	}

	language, err := n.normalizeLanguage(raw, info)
	if err != nil {
		return nil, err
	}

	reference, err := n.normalizeReference(raw, info)
	if err != nil {
		return nil, err
	}

	return &core.Request{
		Text:           text,
		Backend:        info,
		Language:       language,
		Settings:       settings,
		ReferenceAudio: reference,
	}, nil
}

func (n *Normalizer) normalizeText(raw map[string]any) (string, error) {
	value, ok := raw[FieldText]
	if !ok || value == nil {
		return "", core.MissingField(FieldText)
	}

	text, isString := value.(string)
	if !isString {
		return "", core.InvalidParameter(FieldText, fmt.Sprintf("expected a string, got %T", value))
	}

	if text == "" {
		return "", core.MissingField(FieldText)
	}

	runes := []rune(text)
	if len(runes) > n.maxTextLength {
		n.log.Warn("Text truncated from %d to %d characters", len(runes), n.maxTextLength)

		return string(runes[:n.maxTextLength]), nil
	}

	return text, nil
}

func (n *Normalizer) normalizeBackend(raw map[string]any) (core.BackendInfo, error) {
	value, present := lookup(raw, FieldBackend, legacyFieldBackend)
	if !present {
		info, _ := core.LookupBackend(n.defaultBackend)

		return info, nil
	}

	name, isString := value.(string)
	if !isString {
		return core.BackendInfo{}, core.InvalidEnum(FieldBackend, fmt.Sprint(value), backendNames())
	}

	info, ok := core.LookupBackend(core.Backend(name))
	if !ok {
		return core.BackendInfo{}, core.InvalidEnum(FieldBackend, name, backendNames())
	}

	return info, nil
}

func (n *Normalizer) normalizeSettings(raw map[string]any) (core.GenerationSettings, error) {
	values := make(map[string]float64, len(n.params))

	for _, param := range n.params {
		value, err := n.resolveParam(raw, param)
		if err != nil {
			return core.GenerationSettings{}, err
		}

		values[param.Name] = value
	}

	seed, err := n.resolveSeed(raw)
	if err != nil {
		return core.GenerationSettings{}, err
	}

	return core.GenerationSettings{
		Exaggeration:      values[ParamExaggeration],
		Temperature:       values[ParamTemperature],
		CFGWeight:         values[ParamCFGWeight],
		MinP:              values[ParamMinP],
		TopP:              values[ParamTopP],
		RepetitionPenalty: values[ParamRepetitionPenalty],
		Speed:             values[ParamSpeed],
		Seed:              seed,
	}, nil
}

func (n *Normalizer) resolveParam(raw map[string]any, param ParamSpec) (float64, error) {
	value, present := raw[param.Name]
	if !present || value == nil {
		return param.Default, nil
	}

	number, err := toFloat(value)
	if err != nil {
		return 0, core.InvalidParameter(param.Name, err.Error())
	}

	applied, adjusted, err := param.apply(number)
	if err != nil {
		return 0, core.InvalidParameter(param.Name, err.Error())
	}

	if adjusted {
		n.log.Warn("Parameter %s=%g out of range [%g, %g], adjusted to %g (policy: %s)",
			param.Name, number, param.Min, param.Max, applied, param.Policy)
	}

	return applied, nil
}

func (n *Normalizer) resolveSeed(raw map[string]any) (int64, error) {
	value, present := raw[ParamSeed]
	if !present || value == nil {
		return 0, nil
	}

	seed, err := toInt(value)
	if err != nil {
		return 0, core.InvalidParameter(ParamSeed, err.Error())
	}

	_, _, err = n.seed.apply(float64(seed))
	if err != nil {
		return 0, core.InvalidParameter(ParamSeed, err.Error())
	}

	return seed, nil
}

func (n *Normalizer) normalizeLanguage(raw map[string]any, info core.BackendInfo) (string, error) {
	value, present := lookup(raw, FieldLanguage, legacyFieldLanguage)

	if !info.Multilingual {
		fixed := info.FixedLanguage()
		if present && value != fixed {
			n.log.Info("Backend %s only speaks '%s', ignoring language %v", info.Name, fixed, value)
		}

		return fixed, nil
	}

	if !present {
		return core.DefaultLanguage, nil
	}

	language, isString := value.(string)
	if !isString {
		return "", core.InvalidParameter(FieldLanguage, fmt.Sprintf("expected a string, got %T", value))
	}

	if !info.Supports(language) {
		return "", core.UnsupportedLanguage(language, info.Languages)
	}

	return language, nil
}

func (n *Normalizer) normalizeReference(raw map[string]any, info core.BackendInfo) ([]byte, error) {
	value, present := lookup(raw, FieldReferenceAudio, legacyFieldReferenceData)
	if !present {
		return nil, nil
	}

	encoded, isString := value.(string)
	if !isString {
		return nil, core.InvalidAudio(fmt.Errorf("%w: expected a base64 string, got %T", audio.ErrMalformedEncoding, value))
	}

	data, err := audio.DecodeBase64(encoded)
	if err != nil {
		return nil, core.InvalidAudio(err)
	}

	if !info.Cloning {
		n.log.Warn("Backend %s does not support voice cloning, ignoring reference audio", info.Name)

		return nil, nil
	}

	return data, nil
}

// lookup returns the first present, non-empty value among the given keys.
func lookup(raw map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		value, ok := raw[key]
		if !ok || value == nil {
			continue
		}

		if text, isString := value.(string); isString && text == "" {
			continue
		}

		return value, true
	}

	return nil, false
}

func backendNames() []string {
	names := core.Backends()
	out := make([]string, len(names))

	for index, name := range names {
		out[index] = string(name)
	}

	return out
}
