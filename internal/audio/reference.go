package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

const referencePattern = "voice-ref-*.wav"

// ReferenceAudio is a temp file holding voice-cloning reference audio.
// It belongs to the request that created it; Release removes the file exactly once.
type ReferenceAudio struct {
	path       string
	once       sync.Once
	releaseErr error
}

// MaterializeReference writes decoded reference audio to a fresh temp file in dir.
// An empty dir means the system temp directory.
func MaterializeReference(dir string, data []byte) (*ReferenceAudio, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	tempFile, err := os.CreateTemp(dir, referencePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for reference audio: %w", err)
	}

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempFile.Name())

		return nil, fmt.Errorf("failed to write reference audio: %w", errors.Join(writeErr, closeErr))
	}

	return &ReferenceAudio{path: tempFile.Name()}, nil
}

// Path returns the location of the reference audio file.
func (r *ReferenceAudio) Path() string {
	if r == nil {
		return ""
	}

	return r.path
}

// Release deletes the backing file. Later calls return the first call's result.
func (r *ReferenceAudio) Release() error {
	if r == nil {
		return nil
	}

	r.once.Do(func() {
		err := os.Remove(r.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.releaseErr = fmt.Errorf("failed to remove reference audio '%s': %w", r.path, err)
		}
	})

	return r.releaseErr
}
