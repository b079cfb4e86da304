package core

// Params is the per-backend generation parameter set.
// The variants below are the only implementations.
type Params interface {
	backend() Backend
}

// ChatterboxParams are the generation parameters of the English Chatterbox model.
type ChatterboxParams struct {
	Exaggeration      float64
	Temperature       float64
	CFGWeight         float64
	MinP              float64
	TopP              float64
	RepetitionPenalty float64
	// Seed of zero leaves generation unseeded.
	Seed int64
	// ReferenceAudioPath is the voice-cloning reference, empty for the default voice.
	ReferenceAudioPath string
}

func (ChatterboxParams) backend() Backend { return BackendEnglish }

// MultilingualParams are the generation parameters of the multilingual Chatterbox model.
type MultilingualParams struct {
	Language           string
	Exaggeration       float64
	Temperature        float64
	CFGWeight          float64
	Seed               int64
	ReferenceAudioPath string
}

func (MultilingualParams) backend() Backend { return BackendMultilingual }

// MeloParams are the generation parameters of the MeloTTS backend.
type MeloParams struct {
	Speed float64
}

func (MeloParams) backend() Backend { return BackendMelo }

// PiperParams are the generation parameters of the Piper backend, which takes none.
type PiperParams struct{}

func (PiperParams) backend() Backend { return BackendPiper }

// BackendOf returns the backend a parameter variant belongs to.
func BackendOf(params Params) Backend {
	return params.backend()
}

// GenerationSettings holds every numeric parameter of a job after normalization.
// The dispatcher projects it onto the backend's Params variant.
type GenerationSettings struct {
	Exaggeration      float64
	Temperature       float64
	CFGWeight         float64
	MinP              float64
	TopP              float64
	RepetitionPenalty float64
	Speed             float64
	Seed              int64
}

// Request is a normalized job. It is built once by the normalizer and never mutated.
type Request struct {
	Text     string
	Backend  BackendInfo
	Language string
	Settings GenerationSettings
	// ReferenceAudio holds decoded reference-audio bytes, nil when absent or ignored.
	ReferenceAudio []byte
}

// TextLength returns the number of runes in the normalized text.
func (r *Request) TextLength() int {
	return len([]rune(r.Text))
}

// SynthesisResult is the success envelope of a job.
type SynthesisResult struct {
	Audio          string  `json:"audio"`
	SampleRate     int     `json:"sample_rate"`
	Duration       float64 `json:"duration"`
	BackendUsed    Backend `json:"backend_used"`
	LanguageUsed   string  `json:"language_used"`
	TextLength     int     `json:"text_length"`
	GenerationTime float64 `json:"generation_time"`
	// DurationEstimated is set when the backend could only report an estimate.
	DurationEstimated bool     `json:"duration_estimated,omitempty"`
	Speed             *float64 `json:"speed,omitempty"`
	AudioKey          string   `json:"audio_key,omitempty"`
	// RawAudio is the WAV container behind Audio, kept for storage and never serialized.
	RawAudio []byte `json:"-"`
}

// ErrorResult is the failure envelope of a job.
type ErrorResult struct {
	Error              string   `json:"error"`
	Kind               string   `json:"error_kind"`
	SupportedLanguages []string `json:"supported_languages,omitempty"`
}

// Envelope carries exactly one of Result or Failure.
type Envelope struct {
	Result  *SynthesisResult
	Failure *ErrorResult
}

// OK reports whether the envelope holds a synthesis result.
func (e Envelope) OK() bool {
	return e.Result != nil
}
