package core

import (
	"slices"
	"sort"
)

// Backend identifies one voice-model variant.
type Backend string

const (
	BackendEnglish      Backend = "english"
	BackendMultilingual Backend = "multilingual"
	BackendMelo         Backend = "melo"
	BackendPiper        Backend = "piper"
)

// DefaultBackend is used when a job does not name one.
const DefaultBackend = BackendMultilingual

// DefaultLanguage is used for multilingual jobs without a language.
const DefaultLanguage = "en"

// BackendInfo declares the fixed properties of a backend variant.
type BackendInfo struct {
	Name Backend
	// Languages is the supported set; single-language backends list exactly one.
	Languages    []string
	Multilingual bool
	// Cloning reports whether the backend accepts reference audio.
	Cloning bool
}

// FixedLanguage returns the only language of a single-language backend.
func (b BackendInfo) FixedLanguage() string {
	if b.Multilingual || len(b.Languages) == 0 {
		return ""
	}

	return b.Languages[0]
}

// Supports reports whether the language code is in the backend's set.
func (b BackendInfo) Supports(language string) bool {
	return slices.Contains(b.Languages, language)
}

// multilingualLanguages is the language set of the multilingual Chatterbox model.
var multilingualLanguages = map[string]string{
	"ar": "Arabic",
	"da": "Danish",
	"de": "German",
	"el": "Greek",
	"en": "English",
	"es": "Spanish",
	"fi": "Finnish",
	"fr": "French",
	"he": "Hebrew",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"ms": "Malay",
	"nl": "Dutch",
	"no": "Norwegian",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"sw": "Swahili",
	"tr": "Turkish",
	"zh": "Chinese",
}

var backends = map[Backend]BackendInfo{
	BackendEnglish: {
		Name:         BackendEnglish,
		Languages:    []string{"en"},
		Multilingual: false,
		Cloning:      true,
	},
	BackendMultilingual: {
		Name:         BackendMultilingual,
		Languages:    sortedKeys(multilingualLanguages),
		Multilingual: true,
		Cloning:      true,
	},
	BackendMelo: {
		Name:         BackendMelo,
		Languages:    []string{"es"},
		Multilingual: false,
		Cloning:      false,
	},
	BackendPiper: {
		Name:         BackendPiper,
		Languages:    []string{"es"},
		Multilingual: false,
		Cloning:      false,
	},
}

// LookupBackend returns the declaration of a known backend.
func LookupBackend(name Backend) (BackendInfo, bool) {
	info, ok := backends[name]
	if !ok {
		return BackendInfo{}, false
	}

	info.Languages = slices.Clone(info.Languages)

	return info, true
}

// Backends lists every known backend name in sorted order.
func Backends() []Backend {
	names := make([]Backend, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// LanguageName returns the display name of a multilingual language code.
func LanguageName(code string) string {
	name, ok := multilingualLanguages[code]
	if !ok {
		return "Unknown"
	}

	return name
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
