package audio

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Errors returned while decoding transport-encoded audio.
var (
	ErrMalformedEncoding = errors.New("malformed base64 audio")
	ErrEmptyAudio        = errors.New("audio payload is empty")
	ErrInvalidWAV        = errors.New("not a valid WAV file")
)

const (
	dataURIPrefix    = "data:"
	dataURIBase64Tag = ";base64,"
	outputPattern    = "voice-output-*.wav"
	pcm16Scale       = math.MaxInt16
)

// EncodeBase64 converts raw bytes into the transport encoding.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 converts the transport encoding back into raw bytes.
// A data URI prefix and surrounding whitespace are tolerated; unpadded input is accepted.
func DecodeBase64(encoded string) ([]byte, error) {
	payload := strings.TrimSpace(encoded)

	if strings.HasPrefix(payload, dataURIPrefix) {
		_, after, found := strings.Cut(payload, dataURIBase64Tag)
		if !found {
			return nil, fmt.Errorf("%w: data URI is not base64", ErrMalformedEncoding)
		}

		payload = after
	}

	if payload == "" {
		return nil, ErrEmptyAudio
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
		}

		data = raw
	}

	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	return data, nil
}

// EncodeSamples writes mono float samples as a 16-bit PCM WAV and returns its
// transport encoding. The intermediate file lives in dir and is always removed.
func EncodeSamples(dir string, samples []float32, sampleRate int) (*Encoded, error) {
	rateErr := validateSampleRate(sampleRate)
	if rateErr != nil {
		return nil, rateErr
	}

	samplesErr := validateSamples(samples)
	if samplesErr != nil {
		return nil, samplesErr
	}

	wavData, err := writeWAV(dir, samples, sampleRate)
	if err != nil {
		return nil, err
	}

	return &Encoded{
		Base64:     EncodeBase64(wavData),
		SampleRate: sampleRate,
		Duration:   Duration(len(samples), sampleRate),
		Estimated:  false,
		Raw:        wavData,
	}, nil
}

// EncodeWAVFile encodes a WAV file written by a backend, reading the exact
// duration from its header.
func EncodeWAVFile(path string) (*Encoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file '%s': %w", path, err)
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}

	length, err := decoder.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to read duration of '%s': %w", path, err)
	}

	return &Encoded{
		Base64:     EncodeBase64(data),
		SampleRate: int(decoder.SampleRate),
		Duration:   RoundSeconds(length.Seconds()),
		Estimated:  false,
		Raw:        data,
	}, nil
}

// EncodeFileEstimate encodes an audio file whose duration can only be estimated
// from its size. The result is flagged as an estimate.
func EncodeFileEstimate(path string, sampleRate, bytesPerSecond int) (*Encoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file '%s': %w", path, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyAudio, path)
	}

	if bytesPerSecond <= 0 {
		bytesPerSecond = ESTIMATE_BYTES_PER_SECOND
	}

	return &Encoded{
		Base64:     EncodeBase64(data),
		SampleRate: sampleRate,
		Duration:   RoundSeconds(float64(len(data)) / float64(bytesPerSecond)),
		Estimated:  true,
		Raw:        data,
	}, nil
}

// DecodeWAV reads WAV bytes into mono float samples in [-1, 1].
// Multi-channel input keeps only the first channel.
func DecodeWAV(data []byte) ([]float32, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, ErrInvalidWAV
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		channels = 1
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		return nil, 0, fmt.Errorf("%w: missing bit depth", ErrInvalidWAV)
	}

	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, 0, len(buffer.Data)/channels)

	for index := 0; index < len(buffer.Data); index += channels {
		samples = append(samples, float32(buffer.Data[index])/scale)
	}

	return samples, int(decoder.SampleRate), nil
}

func writeWAV(dir string, samples []float32, sampleRate int) ([]byte, error) {
	tempFile, err := os.CreateTemp(dir, outputPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for wav output: %w", err)
	}

	defer os.Remove(tempFile.Name())

	encoder := wav.NewEncoder(tempFile, sampleRate, OUTPUT_BIT_DEPTH, OUTPUT_CHANNELS, WAV_FORMAT_PCM)

	buffer := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: OUTPUT_CHANNELS,
			SampleRate:  sampleRate,
		},
		Data:           toPCM16(samples),
		SourceBitDepth: OUTPUT_BIT_DEPTH,
	}

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		_ = tempFile.Close()

		return nil, fmt.Errorf("failed to write wav samples: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		_ = tempFile.Close()

		return nil, fmt.Errorf("failed to finalize wav header: %w", closeErr)
	}

	fileCloseErr := tempFile.Close()
	if fileCloseErr != nil {
		return nil, fmt.Errorf("failed to close wav output: %w", fileCloseErr)
	}

	data, err := os.ReadFile(tempFile.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to read wav output: %w", err)
	}

	return data, nil
}

func toPCM16(samples []float32) []int {
	pcm := make([]int, len(samples))

	for index, sample := range samples {
		clamped := math.Max(-1, math.Min(1, float64(sample)))
		pcm[index] = int(math.Round(clamped * pcm16Scale))
	}

	return pcm
}
