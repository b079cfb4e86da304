// voice-client submits synthesis jobs to a running voice-service over NATS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/config"
	"github.com/book-expert/voice-service/internal/worker"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// Flag names.
const (
	flagNATSURL = "nats-url"
	flagSubject = "subject"
	flagTimeout = "timeout"
)

// Flag descriptions.
const (
	flagNATSURLDesc = "NATS server URL"
	flagSubjectDesc = "Subject the voice-service listens on"
	flagTimeoutDesc = "How long to wait for each reply"
)

const (
	logFileName    = "voice-client.log"
	defaultTimeout = 5 * time.Minute
)

var ErrNoConnection = errors.New("not connected to NATS")

// clientOptions holds the persistent flags shared by every subcommand.
type clientOptions struct {
	natsURL string
	subject string
	timeout time.Duration
}

// session is an open connection to the service.
type session struct {
	opts clientOptions
	conn *nats.Conn
	log  *logger.Logger
}

// request sends one job and decodes the reply.
func (s *session) request(ctx context.Context, input map[string]any) (*worker.JobReply, error) {
	if s.conn == nil {
		return nil, ErrNoConnection
	}

	header := events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}

	data, err := json.Marshal(worker.JobMessage{Header: &header, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.timeout)
	defer cancel()

	replyMsg, err := s.conn.RequestWithContext(ctx, s.opts.subject, data)
	if err != nil {
		return nil, fmt.Errorf("no reply on %s: %w", s.opts.subject, err)
	}

	var reply worker.JobReply

	decodeErr := json.Unmarshal(replyMsg.Data, &reply)
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", decodeErr)
	}

	s.log.Info("Workflow %s answered (ok=%t)", reply.Header.WorkflowID, reply.Output.OK())

	return &reply, nil
}

func (s *session) close() {
	if s.conn != nil {
		s.conn.Close()
	}

	if s.log != nil {
		_ = s.log.Close()
	}
}

func openSession(opts clientOptions) (*session, error) {
	log, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	conn, err := nats.Connect(opts.natsURL)
	if err != nil {
		_ = log.Close()

		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", opts.natsURL, err)
	}

	return &session{opts: opts, conn: conn, log: log}, nil
}

func newRootCommand() *cobra.Command {
	opts := clientOptions{
		natsURL: nats.DefaultURL,
		subject: config.DefaultJobsSubject,
		timeout: defaultTimeout,
	}

	cmd := &cobra.Command{
		Use:           "voice-client",
		Short:         "Submit speech synthesis jobs to the voice-service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.natsURL, flagNATSURL, opts.natsURL, flagNATSURLDesc)
	cmd.PersistentFlags().StringVar(&opts.subject, flagSubject, opts.subject, flagSubjectDesc)
	cmd.PersistentFlags().DurationVar(&opts.timeout, flagTimeout, opts.timeout, flagTimeoutDesc)

	connect := func() (*session, error) {
		return openSession(opts)
	}

	cmd.AddCommand(
		newSubmitCommand(connect),
		newCheckCommand(connect),
	)

	return cmd
}

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
