package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var ErrChecksFailed = errors.New("service checks failed")

// scenario is one job sent by the check command and whether it should fail.
type scenario struct {
	name      string
	input     map[string]any
	wantError bool
}

func defaultScenarios() []scenario {
	scenarios := []scenario{
		{
			name: "basic english",
			input: map[string]any{
				"text":         "Hello, this is a test of Chatterbox on RunPod!",
				"backend":      "english",
				"exaggeration": 0.5,
				"cfg_weight":   0.5,
			},
			wantError: false,
		},
	}

	multilingual := []struct{ language, text string }{
		{"en", "Hello, this is English."},
		{"es", "Hola, esto es español."},
		{"fr", "Bonjour, ceci est français."},
	}

	for _, sample := range multilingual {
		scenarios = append(scenarios, scenario{
			name: "multilingual " + sample.language,
			input: map[string]any{
				"text":         sample.text,
				"backend":      "multilingual",
				"language":     sample.language,
				"exaggeration": 0.5,
				"cfg_weight":   0.5,
			},
			wantError: false,
		})
	}

	return append(scenarios,
		scenario{
			name:      "missing text",
			input:     map[string]any{"backend": "english"},
			wantError: true,
		},
		scenario{
			name:      "invalid language",
			input:     map[string]any{"text": "Test", "backend": "multilingual", "language": "invalid"},
			wantError: true,
		},
	)
}

func newCheckCommand(connect func() (*session, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a smoke test suite against a running voice-service",
		Long: `Sends a fixed set of jobs covering the english and multilingual backends
and the error paths, and reports which ones behaved as expected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := connect()
			if err != nil {
				return err
			}
			defer sess.close()

			return runChecks(cmd.Context(), cmd.OutOrStdout(), sess, defaultScenarios())
		},
	}
}

func runChecks(ctx context.Context, out io.Writer, sess *session, scenarios []scenario) error {
	failed := 0

	for _, sc := range scenarios {
		detail, ok := runScenario(ctx, sess, sc)
		if ok {
			_, _ = fmt.Fprintf(out, "PASSED  %s: %s\n", sc.name, detail)

			continue
		}

		failed++

		_, _ = fmt.Fprintf(out, "FAILED  %s: %s\n", sc.name, detail)
	}

	_, _ = fmt.Fprintf(out, "\n%d/%d checks passed\n", len(scenarios)-failed, len(scenarios))

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrChecksFailed, failed, len(scenarios))
	}

	return nil
}

func runScenario(ctx context.Context, sess *session, sc scenario) (string, bool) {
	reply, err := sess.request(ctx, sc.input)
	if err != nil {
		return err.Error(), false
	}

	output := reply.Output

	switch {
	case sc.wantError && output.OK():
		return "expected an error, got audio", false
	case sc.wantError:
		return fmt.Sprintf("rejected with %s: %s", output.Failure.Kind, output.Failure.Error), true
	case !output.OK():
		return fmt.Sprintf("%s: %s", output.Failure.Kind, output.Failure.Error), false
	default:
		return fmt.Sprintf("duration %.2fs at %dHz in %.2fs",
			output.Result.Duration, output.Result.SampleRate, output.Result.GenerationTime), true
	}
}
