package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/voice-service/internal/audio"
	"github.com/spf13/cobra"
)

const (
	flagText         = "text"
	flagBackend      = "backend"
	flagLanguage     = "language"
	flagReference    = "reference"
	flagExaggeration = "exaggeration"
	flagCFGWeight    = "cfg-weight"
	flagTemperature  = "temperature"
	flagSeed         = "seed"
	flagSpeed        = "speed"
	flagInputFile    = "input-file"
	flagOutput       = "output"
)

const (
	defaultOutputFile = "output.wav"
	outputPermissions = 0o600
)

var (
	ErrNoText       = errors.New("either --text or --input-file must be provided")
	ErrTextAndInput = errors.New("cannot specify both --text and --input-file")
	ErrJobFailed    = errors.New("job failed")
)

type submitFlags struct {
	text         string
	backend      string
	language     string
	reference    string
	exaggeration float64
	cfgWeight    float64
	temperature  float64
	seed         int64
	speed        float64
	inputFile    string
	output       string
}

func newSubmitCommand(connect func() (*session, error)) *cobra.Command {
	var flags submitFlags

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Synthesize one job and write the audio to a WAV file",
		Example: `voice-client submit --text "Hola, esto es español." --backend multilingual --language es
voice-client submit --input-file test_input.json --output page.wav`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			input, err := buildInput(cmd, flags)
			if err != nil {
				return err
			}

			sess, err := connect()
			if err != nil {
				return err
			}
			defer sess.close()

			return submit(cmd, sess, input, flags.output)
		},
	}

	cmd.Flags().StringVar(&flags.text, flagText, "", "Text to synthesize")
	cmd.Flags().StringVar(&flags.backend, flagBackend, "", "Backend: english, multilingual, melo or piper")
	cmd.Flags().StringVar(&flags.language, flagLanguage, "", "Language code for the multilingual backend")
	cmd.Flags().StringVar(&flags.reference, flagReference, "", "WAV file with the voice to clone")
	cmd.Flags().Float64Var(&flags.exaggeration, flagExaggeration, 0, "Emotion exaggeration")
	cmd.Flags().Float64Var(&flags.cfgWeight, flagCFGWeight, 0, "Classifier-free guidance weight")
	cmd.Flags().Float64Var(&flags.temperature, flagTemperature, 0, "Sampling temperature")
	cmd.Flags().Int64Var(&flags.seed, flagSeed, 0, "Random seed, 0 for unseeded")
	cmd.Flags().Float64Var(&flags.speed, flagSpeed, 0, "Speaking speed (melo)")
	cmd.Flags().StringVar(&flags.inputFile, flagInputFile, "", `JSON job file, bare or {"input": {...}}`)
	cmd.Flags().StringVarP(&flags.output, flagOutput, "o", defaultOutputFile, "Output file path (.wav)")

	return cmd
}

// buildInput turns the flags into a job. Only flags set on the command line are sent.
func buildInput(cmd *cobra.Command, flags submitFlags) (map[string]any, error) {
	if flags.text == "" && flags.inputFile == "" {
		return nil, ErrNoText
	}

	if flags.text != "" && flags.inputFile != "" {
		return nil, ErrTextAndInput
	}

	if flags.inputFile != "" {
		return readInputFile(flags.inputFile)
	}

	input := map[string]any{"text": flags.text}

	changed := cmd.Flags().Changed

	if flags.backend != "" {
		input["backend"] = flags.backend
	}

	if flags.language != "" {
		input["language"] = flags.language
	}

	if changed(flagExaggeration) {
		input["exaggeration"] = flags.exaggeration
	}

	if changed(flagCFGWeight) {
		input["cfg_weight"] = flags.cfgWeight
	}

	if changed(flagTemperature) {
		input["temperature"] = flags.temperature
	}

	if changed(flagSeed) {
		input["seed"] = flags.seed
	}

	if changed(flagSpeed) {
		input["speed"] = flags.speed
	}

	if flags.reference != "" {
		data, err := os.ReadFile(flags.reference)
		if err != nil {
			return nil, fmt.Errorf("failed to read reference audio: %w", err)
		}

		input["reference_audio"] = audio.EncodeBase64(data)
	}

	return input, nil
}

func readInputFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var payload map[string]any

	decodeErr := json.Unmarshal(data, &payload)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, decodeErr)
	}

	if inner, ok := payload["input"].(map[string]any); ok {
		return inner, nil
	}

	return payload, nil
}

func submit(cmd *cobra.Command, sess *session, input map[string]any, outputPath string) error {
	reply, err := sess.request(cmd.Context(), input)
	if err != nil {
		return err
	}

	if !reply.Output.OK() {
		return fmt.Errorf("%w: %s (%s)", ErrJobFailed, reply.Output.Failure.Error, reply.Output.Failure.Kind)
	}

	result := reply.Output.Result

	wavData, err := audio.DecodeBase64(result.Audio)
	if err != nil {
		return fmt.Errorf("failed to decode audio: %w", err)
	}

	writeErr := os.WriteFile(outputPath, wavData, outputPermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write audio file: %w", writeErr)
	}

	printResult(cmd.OutOrStdout(), outputPath, result.AudioKey, result.Duration,
		result.SampleRate, result.GenerationTime, string(result.BackendUsed), result.LanguageUsed)

	return nil
}

func printResult(out io.Writer, path, audioKey string, duration float64, sampleRate int,
	generationTime float64, backend, language string,
) {
	_, _ = fmt.Fprintf(out, "Generated: %s\n", path)
	_, _ = fmt.Fprintf(out, "   Backend: %s (%s)\n", backend, language)
	_, _ = fmt.Fprintf(out, "   Duration: %.2fs\n", duration)
	_, _ = fmt.Fprintf(out, "   Sample Rate: %dHz\n", sampleRate)
	_, _ = fmt.Fprintf(out, "   Generation Time: %.2fs\n", generationTime)

	if audioKey != "" {
		_, _ = fmt.Fprintf(out, "   Stored as: %s\n", audioKey)
	}
}
