// Package worker serves synthesis jobs received over NATS request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/book-expert/voice-service/internal/handler"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/panjf2000/ants/v2"
)

const (
	audioKeyExtension = ".wav"
	fieldText         = "text"
	fieldTextKey      = "text_key"
	fieldPageNumber   = "page_number"
	fieldTotalPages   = "total_pages"
	drainPollInterval = 10 * time.Millisecond
)

var (
	ErrSubjectEmpty  = errors.New("jobs subject cannot be empty")
	ErrNilHandler    = errors.New("job handler cannot be nil")
	ErrTimeoutNotSet = errors.New("job timeout must be positive")
	ErrDrainTimeout  = errors.New("subscription did not drain in time")
)

// JobHandler processes one decoded job.
type JobHandler interface {
	HandleInput(ctx context.Context, job map[string]any) core.Envelope
}

// JobMessage is the request payload. Bare jobs without the wrapper are accepted too.
type JobMessage struct {
	Header *events.EventHeader `json:"header,omitempty"`
	Input  map[string]any      `json:"input"`
}

// JobReply is the response payload.
type JobReply struct {
	Header events.EventHeader `json:"header"`
	Output core.Envelope      `json:"output"`
}

// Options configures a NatsWorker.
type Options struct {
	Subject           string
	QueueGroup        string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	// AudioCreatedSubject, when set, receives an AudioChunkCreatedEvent per stored clip.
	AudioCreatedSubject string
}

// NatsWorker listens for jobs on a queue subscription and runs them on a bounded pool.
type NatsWorker struct {
	natsConnection *nats.Conn
	opts           Options
	handler        JobHandler
	store          core.ObjectStore
	pool           *ants.Pool
	log            *logger.Logger
}

// NewNatsWorker creates a worker. store may be nil, in which case audio is
// only returned inline and text_key jobs are rejected.
func NewNatsWorker(
	natsConnection *nats.Conn,
	opts Options,
	jobHandler JobHandler,
	store core.ObjectStore,
	log *logger.Logger,
) (*NatsWorker, error) {
	if opts.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if jobHandler == nil {
		return nil, ErrNilHandler
	}

	if opts.JobTimeout <= 0 {
		return nil, ErrTimeoutNotSet
	}

	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 1
	}

	pool, err := ants.NewPool(opts.MaxConcurrentJobs)
	if err != nil {
		return nil, fmt.Errorf("failed to create job pool: %w", err)
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		opts:           opts,
		handler:        jobHandler,
		store:          store,
		pool:           pool,
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx is done. Shutdown first lets the
// subscription hand every pending message to the pool, then waits for the
// pool to finish running jobs.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.opts.Subject, w.opts.QueueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.opts.Subject, err)
	}

	w.log.Info("Listening for jobs on %s (queue %s, %d concurrent)",
		w.opts.Subject, w.opts.QueueGroup, w.opts.MaxConcurrentJobs)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr == nil {
		drainErr = waitForDrain(sub, w.opts.JobTimeout)
	}

	releaseErr := w.pool.ReleaseTimeout(w.opts.JobTimeout)
	if releaseErr != nil {
		w.log.Warn("Jobs still running at shutdown: %v", releaseErr)
	}

	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// waitForDrain blocks until a draining subscription has been removed, which
// happens after its last pending message was handled.
func waitForDrain(sub *nats.Subscription, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for sub.IsValid() {
		if time.Now().After(deadline) {
			return ErrDrainTimeout
		}

		time.Sleep(drainPollInterval)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	if msg.Reply == "" {
		w.log.Warn("Dropping job on %s without a reply subject", msg.Subject)

		return
	}

	err := w.pool.Submit(func() { w.processMessage(msg) })
	if err != nil {
		w.log.Error("Failed to schedule job: %v", err)
		w.respond(msg, newHeader(nil), core.Envelope{
			Result:  nil,
			Failure: core.Internal(handler.INTERNAL_ERROR_MESSAGE, err).ToResult(),
		})
	}
}

func (w *NatsWorker) processMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.JobTimeout)
	defer cancel()

	header, job, err := w.decodeMessage(msg.Data)
	if err != nil {
		w.respond(msg, header, failureEnvelope(err))

		return
	}

	w.log.Info("Processing job %s of workflow %s", header.EventID, header.WorkflowID)

	textErr := w.resolveText(ctx, job)
	if textErr != nil {
		w.respond(msg, header, failureEnvelope(textErr))

		return
	}

	envelope := w.handler.HandleInput(ctx, job)
	if envelope.OK() {
		w.storeAudio(ctx, header, job, envelope.Result)
	}

	w.respond(msg, header, envelope)
}

// resolveText fills in the text of a job that references it by object key.
func (w *NatsWorker) resolveText(ctx context.Context, job map[string]any) error {
	if text, ok := job[fieldText].(string); ok && text != "" {
		return nil
	}

	textKey, ok := job[fieldTextKey].(string)
	if !ok || textKey == "" {
		return nil
	}

	if w.store == nil {
		return core.InvalidParameter(fieldTextKey, "no object store is configured")
	}

	data, err := w.store.Download(ctx, textKey)
	if err != nil {
		w.log.Error("Failed to download text for key '%s': %v", textKey, err)

		return core.InvalidParameter(fieldTextKey, fmt.Sprintf("could not download '%s'", textKey))
	}

	job[fieldText] = string(data)

	return nil
}

// storeAudio uploads successful audio and records its key on the result.
// Storage failures are logged; the audio is still returned inline.
func (w *NatsWorker) storeAudio(
	ctx context.Context,
	header events.EventHeader,
	job map[string]any,
	result *core.SynthesisResult,
) {
	if w.store == nil {
		return
	}

	if len(result.RawAudio) == 0 {
		w.log.Warn("Result of workflow %s carries no raw audio, skipping storage", header.WorkflowID)

		return
	}

	audioKey := uuid.NewString() + audioKeyExtension

	uploadErr := w.store.Upload(ctx, audioKey, result.RawAudio)
	if uploadErr != nil {
		w.log.Error("Failed to upload audio for key '%s': %v", audioKey, uploadErr)

		return
	}

	result.AudioKey = audioKey

	if w.opts.AudioCreatedSubject == "" {
		return
	}

	event := &events.AudioChunkCreatedEvent{
		Header:     newHeader(&header),
		AudioKey:   audioKey,
		PageNumber: intField(job, fieldPageNumber),
		TotalPages: intField(job, fieldTotalPages),
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		w.log.Error("Failed to marshal audio created event: %v", err)

		return
	}

	publishErr := w.natsConnection.Publish(w.opts.AudioCreatedSubject, eventData)
	if publishErr != nil {
		w.log.Error("Failed to publish audio created event: %v", publishErr)
	}
}

func (w *NatsWorker) respond(msg *nats.Msg, header events.EventHeader, envelope core.Envelope) {
	replyData, err := json.Marshal(JobReply{Header: header, Output: envelope})
	if err != nil {
		w.log.Error("Failed to marshal reply for workflow %s: %v", header.WorkflowID, err)

		return
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		w.log.Error("Failed to publish reply for workflow %s: %v", header.WorkflowID, respondErr)
	}
}

// decodeMessage splits a payload into its event header and job. A payload
// without a readable header gets a fresh one.
func (w *NatsWorker) decodeMessage(data []byte) (events.EventHeader, map[string]any, error) {
	var envelope struct {
		Header *events.EventHeader `json:"header"`
	}

	headerErr := json.Unmarshal(data, &envelope)
	if headerErr != nil {
		w.log.Warn("Could not read event header, starting a new workflow: %v", headerErr)
	}

	header := newHeader(envelope.Header)

	job, err := handler.DecodeJob(data)
	if err != nil {
		return header, nil, err
	}

	delete(job, "header")

	return header, job, nil
}

// newHeader returns a header for a new event, keeping the workflow identity
// of the event it answers.
func newHeader(source *events.EventHeader) events.EventHeader {
	header := events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}

	if source != nil {
		if source.WorkflowID != "" {
			header.WorkflowID = source.WorkflowID
		}

		header.UserID = source.UserID
		header.TenantID = source.TenantID
	}

	return header
}

func failureEnvelope(err error) core.Envelope {
	jobErr, ok := core.AsJobError(err)
	if !ok {
		jobErr = core.Internal(handler.INTERNAL_ERROR_MESSAGE, err)
	}

	return core.Envelope{Result: nil, Failure: jobErr.ToResult()}
}

func intField(job map[string]any, key string) int {
	switch value := job[key].(type) {
	case json.Number:
		parsed, err := strconv.Atoi(value.String())
		if err == nil {
			return parsed
		}
	case float64:
		return int(value)
	}

	return 0
}
