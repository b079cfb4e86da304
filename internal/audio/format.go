// Package audio moves audio between PCM samples, WAV files and the base64
// transport encoding, and owns the scoped temp files used for reference audio.
package audio

import (
	"errors"
	"fmt"
	"math"
)

// Constants for the WAV output written by the codec.
const (
	OUTPUT_BIT_DEPTH = 16
	OUTPUT_CHANNELS  = 1
	// WAV_FORMAT_PCM is the RIFF audio format tag for integer PCM.
	WAV_FORMAT_PCM = 1
)

// Constants for validation limits.
const (
	MAX_SAMPLE_RATE = 192000
)

// ESTIMATE_BYTES_PER_SECOND is the byte rate assumed when only a file size is known
// (44.1 kHz, 16-bit, mono).
const ESTIMATE_BYTES_PER_SECOND = 88200

// Constants for error messages and formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 1 and %d Hz, got %d"
	ERR_FMT_NON_FINITE_SAMPLE = "%w: sample %d is not finite"
)

// Common errors for the audio package.
var (
	ErrInvalidFormat = errors.New("invalid audio format")
	ErrNoSamples     = errors.New("no audio samples")
)

// Encoded is audio in its transport form together with its timing.
type Encoded struct {
	Base64     string
	SampleRate int
	// Duration is in seconds, rounded to two decimals.
	Duration float64
	// Estimated is set when Duration was derived from the file size alone.
	Estimated bool
	// Raw keeps the container bytes for callers that persist the audio.
	Raw []byte
}

// RoundSeconds rounds a duration in seconds to two decimal places.
func RoundSeconds(seconds float64) float64 {
	return math.Round(seconds*100) / 100
}

// Duration computes sampleCount / sampleRate rounded to two decimals.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return RoundSeconds(float64(sampleCount) / float64(sampleRate))
}

//
// Validation Helpers
//

func validateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(
			ERR_FMT_SAMPLE_RATE_RANGE,
			ErrInvalidFormat,
			MAX_SAMPLE_RATE,
			sampleRate,
		)
	}

	return nil
}

func validateSamples(samples []float32) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	for index, sample := range samples {
		value := float64(sample)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf(ERR_FMT_NON_FINITE_SAMPLE, ErrInvalidFormat, index)
		}
	}

	return nil
}
