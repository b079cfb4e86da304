// Package device reports which compute device model loaders should target.
package device

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/book-expert/voice-service/internal/core"
)

// EnvOverride forces the probe result ("cuda" or "cpu").
const EnvOverride = "VOICE_DEVICE"

const (
	nvidiaSMI    = "nvidia-smi"
	probeTimeout = 5 * time.Second
)

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Probe detects an NVIDIA accelerator by asking nvidia-smi for its device list.
// The result only steers model placement and logging; a wrong answer never
// breaks a request.
type Probe struct {
	lookupEnv func(string) (string, bool)
	run       CommandRunner
}

// NewProbe creates a probe that reads the real environment and runs real commands.
func NewProbe() *Probe {
	return &Probe{
		lookupEnv: os.LookupEnv,
		run:       runCommand,
	}
}

// NewProbeWith creates a probe with injected environment and command runner.
func NewProbeWith(lookupEnv func(string) (string, bool), run CommandRunner) *Probe {
	return &Probe{
		lookupEnv: lookupEnv,
		run:       run,
	}
}

// Detect returns the accelerator when one is visible, otherwise the CPU fallback.
func (p *Probe) Detect(ctx context.Context) core.Device {
	if value, ok := p.lookupEnv(EnvOverride); ok && value != "" {
		kind := core.DeviceKind(strings.ToLower(strings.TrimSpace(value)))
		if kind == core.DeviceCPU {
			return core.Device{Kind: core.DeviceCPU, Name: "cpu"}
		}

		return core.Device{Kind: kind, Name: string(kind)}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	output, err := p.run(ctx, nvidiaSMI, "-L")
	if err != nil {
		return core.Device{Kind: core.DeviceCPU, Name: "cpu"}
	}

	name := firstLine(string(output))
	if name == "" {
		return core.Device{Kind: core.DeviceCPU, Name: "cpu"}
	}

	return core.Device{Kind: core.DeviceCUDA, Name: name}
}

func firstLine(output string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(output), "\n")

	return strings.TrimSpace(line)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- the probe only ever runs nvidia-smi with fixed arguments
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}
