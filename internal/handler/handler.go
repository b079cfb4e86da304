// Package handler runs one synthesis job end to end and always answers with
// an envelope: either a synthesis result or a structured error.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/audio"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/normalize"
)

// INTERNAL_ERROR_MESSAGE is the only detail an Internal failure exposes.
const INTERNAL_ERROR_MESSAGE = "internal error while processing job"

// inputKey wraps the job in serverless-style payloads: {"input": {...}}.
const inputKey = "input"

// ModelSource hands out loaded models.
type ModelSource interface {
	Acquire(ctx context.Context, backend core.Backend) (core.VoiceModel, error)
}

// Synthesizer runs a generation call on an acquired model.
type Synthesizer interface {
	Synthesize(
		ctx context.Context,
		req *core.Request,
		model core.VoiceModel,
		ref *audio.ReferenceAudio,
	) (*core.SynthesisResult, error)
}

// Handler wires the normalizer, model registry and dispatcher together.
type Handler struct {
	normalizer *normalize.Normalizer
	models     ModelSource
	dispatcher Synthesizer
	tempDir    string
	log        *logger.Logger
}

// New creates a Handler. Reference audio temp files go to tempDir
// (the OS default when empty).
func New(
	normalizer *normalize.Normalizer,
	models ModelSource,
	dispatcher Synthesizer,
	tempDir string,
	log *logger.Logger,
) *Handler {
	return &Handler{
		normalizer: normalizer,
		models:     models,
		dispatcher: dispatcher,
		tempDir:    tempDir,
		log:        log,
	}
}

// Handle decodes a JSON job, bare or wrapped in {"input": ...}, and processes it.
func (h *Handler) Handle(ctx context.Context, raw []byte) core.Envelope {
	job, err := DecodeJob(raw)
	if err != nil {
		return h.failure(err)
	}

	return h.HandleInput(ctx, job)
}

// HandleInput processes an already decoded job.
func (h *Handler) HandleInput(ctx context.Context, job map[string]any) (envelope core.Envelope) {
	defer func() {
		if recovered := recover(); recovered != nil {
			h.log.Error("Panic while processing job: %v\n%s", recovered, debug.Stack())

			envelope = h.failure(core.Internal(INTERNAL_ERROR_MESSAGE, fmt.Errorf("panic: %v", recovered)))
		}
	}()

	result, err := h.process(ctx, job)
	if err != nil {
		return h.failure(err)
	}

	return core.Envelope{Result: result, Failure: nil}
}

func (h *Handler) process(ctx context.Context, job map[string]any) (*core.SynthesisResult, error) {
	req, err := h.normalizer.Normalize(job)
	if err != nil {
		return nil, err
	}

	model, err := h.models.Acquire(ctx, req.Backend.Name)
	if err != nil {
		return nil, core.GenerationFailed(err)
	}

	var ref *audio.ReferenceAudio

	if req.ReferenceAudio != nil {
		ref, err = audio.MaterializeReference(h.tempDir, req.ReferenceAudio)
		if err != nil {
			return nil, core.Internal(INTERNAL_ERROR_MESSAGE, err)
		}

		defer func() {
			releaseErr := ref.Release()
			if releaseErr != nil {
				h.log.Warn("%v", releaseErr)
			}
		}()
	}

	return h.dispatcher.Synthesize(ctx, req, model, ref)
}

// failure converts any error into an error envelope. Errors that are not
// already *core.JobError become Internal with a generic message.
func (h *Handler) failure(err error) core.Envelope {
	jobErr, ok := core.AsJobError(err)
	if !ok {
		jobErr = core.Internal(INTERNAL_ERROR_MESSAGE, err)
	}

	if jobErr.Kind == core.ErrInternal {
		h.log.Error("Job failed with internal error: %v", err)
		jobErr = core.Internal(INTERNAL_ERROR_MESSAGE, err)
	} else {
		h.log.Warn("Job rejected (%s): %s", jobErr.KindName(), jobErr.Message)
	}

	return core.Envelope{Result: nil, Failure: jobErr.ToResult()}
}

// DecodeJob parses a job payload. Numbers are kept as json.Number so integer
// seeds survive unchanged.
func DecodeJob(raw []byte) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var payload map[string]any

	err := decoder.Decode(&payload)
	if err != nil || payload == nil {
		return nil, core.InvalidParameter(inputKey, "job must be a JSON object")
	}

	return UnwrapInput(payload), nil
}

// UnwrapInput returns the nested job of an {"input": {...}} payload, or the
// payload itself when it is not wrapped.
func UnwrapInput(payload map[string]any) map[string]any {
	inner, ok := payload[inputKey].(map[string]any)
	if !ok {
		return payload
	}

	return inner
}
