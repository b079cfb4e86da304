// Package melo adapts the MeloTTS command-line tool to core.VoiceModel.
// Melo only writes files, so the dispatcher estimates durations from size.
package melo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/core"
)

const (
	outputPattern   = "melo-output-*.wav"
	defaultLanguage = "ES"
)

// ErrWrongParams is returned when the model receives another backend's parameters.
var ErrWrongParams = errors.New("parameters do not match model")

// Options configures the Melo adapter.
type Options struct {
	BinaryPath string
	// Language is Melo's own language tag, e.g. "ES".
	Language  string
	OutputDir string
}

// Model runs one melo process per generation call.
type Model struct {
	binary    string
	language  string
	device    core.DeviceKind
	outputDir string
	log       *logger.Logger
}

// NewLoader returns a loader that locates the melo binary.
func NewLoader(opts Options, log *logger.Logger) func(context.Context, core.Device) (core.VoiceModel, error) {
	return func(_ context.Context, device core.Device) (core.VoiceModel, error) {
		binary, err := exec.LookPath(opts.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("melo binary '%s' not found: %w", opts.BinaryPath, err)
		}

		language := opts.Language
		if language == "" {
			language = defaultLanguage
		}

		kind := device.Kind
		if kind == "" {
			kind = core.DeviceCPU
		}

		log.Info("Melo %s ready on %s", language, kind)

		return &Model{
			binary:    binary,
			language:  language,
			device:    kind,
			outputDir: opts.OutputDir,
			log:       log,
		}, nil
	}
}

// Generate writes the synthesized text to a WAV file and returns its path.
func (m *Model) Generate(ctx context.Context, text string, params core.Params) (*core.Speech, error) {
	meloParams, ok := params.(core.MeloParams)
	if !ok {
		return nil, fmt.Errorf("%w: melo got %s", ErrWrongParams, core.BackendOf(params))
	}

	outputFile, err := os.CreateTemp(m.outputDir, outputPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for melo output: %w", err)
	}

	outputPath := outputFile.Name()
	_ = outputFile.Close()

	// "--" keeps text that starts with a dash from being read as a flag.
	args := []string{
		"--language", m.language,
		"--speed", strconv.FormatFloat(meloParams.Speed, 'f', 2, 64),
		"--device", string(m.device),
		"--",
		text,
		outputPath,
	}

	// #nosec G204 -- arguments are passed without a shell
	cmd := exec.CommandContext(ctx, m.binary, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)

		return nil, fmt.Errorf("melo execution failed: %w - output: %s", err, string(output))
	}

	return &core.Speech{Samples: nil, SampleRate: 0, FilePath: outputPath}, nil
}
