// Package piper adapts the Piper command-line synthesizer to core.VoiceModel.
package piper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/backend"
	"github.com/book-expert/voice-service/internal/core"
)

const outputPattern = "piper-output-*.wav"

// ErrWrongParams is returned when the model receives another backend's parameters.
var ErrWrongParams = errors.New("parameters do not match model")

// Options configures the Piper adapter.
type Options struct {
	BinaryPath string
	// ModelPath is an .onnx voice, resolved through backend.ResolveModelPath.
	ModelPath string
	// OutputDir receives the generated WAV files; empty means the OS temp dir.
	OutputDir string
}

// Model runs one piper process per generation call.
type Model struct {
	binary    string
	modelPath string
	outputDir string
	useCUDA   bool
	log       *logger.Logger
}

// NewLoader returns a loader that locates the binary and the voice file.
func NewLoader(opts Options, log *logger.Logger) func(context.Context, core.Device) (core.VoiceModel, error) {
	return func(_ context.Context, device core.Device) (core.VoiceModel, error) {
		binary, err := exec.LookPath(opts.BinaryPath)
		if err != nil {
			return nil, fmt.Errorf("piper binary '%s' not found: %w", opts.BinaryPath, err)
		}

		modelPath, err := backend.ResolveModelPath(opts.ModelPath)
		if err != nil {
			return nil, err
		}

		log.Info("Piper voice %s ready (cuda=%t)", modelPath, device.IsAccelerator())

		return &Model{
			binary:    binary,
			modelPath: modelPath,
			outputDir: opts.OutputDir,
			useCUDA:   device.IsAccelerator(),
			log:       log,
		}, nil
	}
}

// Generate writes the synthesized text to a WAV file and returns its path.
// The caller owns the file.
func (m *Model) Generate(ctx context.Context, text string, params core.Params) (*core.Speech, error) {
	if _, ok := params.(core.PiperParams); !ok {
		return nil, fmt.Errorf("%w: piper got %s", ErrWrongParams, core.BackendOf(params))
	}

	outputFile, err := os.CreateTemp(m.outputDir, outputPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for piper output: %w", err)
	}

	outputPath := outputFile.Name()
	_ = outputFile.Close()

	args := []string{"--model", m.modelPath, "--output_file", outputPath}
	if m.useCUDA {
		args = append(args, "--cuda")
	}

	// #nosec G204 -- binary and model are resolved at load time; text goes through stdin
	cmd := exec.CommandContext(ctx, m.binary, args...)
	cmd.Stdin = strings.NewReader(text)

	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)

		return nil, fmt.Errorf("piper execution failed: %w - output: %s", err, string(output))
	}

	return &core.Speech{Samples: nil, SampleRate: 0, FilePath: outputPath}, nil
}
