package diawi

import (
	"errors"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/log"
)

const (
	// MaxAttempts is the number of status queries made for a job.
	MaxAttempts = 150
	// PollInterval is the wait after every pending status.
	PollInterval = 5 * time.Second

	statusReady   = 2000
	statusPending = 2001

	unexpectedError = "un-expected error"
)

var (
	// ErrMissingJob is returned when an upload response carries no job ID.
	ErrMissingJob = errors.New("job identifier not received in diawi upload response")
	// ErrIncompleteStatus is returned when a ready job has no link or QR code.
	ErrIncompleteStatus = errors.New("diawi reported a finished job without link or QR code")
	// ErrTimeout is returned when a job is still pending after every attempt.
	ErrTimeout = errors.New("diawi upload timed out")
)

// Job identifies an upload being processed by Diawi.
type Job string

// State ...
type State int

const (
	// Pending jobs are still processed.
	Pending State = iota
	// Ready jobs have an install link.
	Ready
	// Failed jobs will not produce a link.
	Failed
)

// State classifies the response's status code.
func (r StatusResponse) State() State {
	switch r.Status {
	case statusPending:
		return Pending
	case statusReady:
		return Ready
	default:
		return Failed
	}
}

// Result is the install page of a processed upload.
type Result struct {
	Link   string
	QRCode string
}

// API ...
type API interface {
	Submit(token, pth, comment string) (Job, error)
	Status(token string, job Job) (StatusResponse, error)
}

// Relay uploads artifacts to Diawi and waits for the install link.
type Relay struct {
	api         API
	logger      log.Logger
	maxAttempts int
	interval    time.Duration
	sleep       func(time.Duration)
}

// NewRelay ...
func NewRelay(api API, logger log.Logger) *Relay {
	return &Relay{
		api:         api,
		logger:      logger,
		maxAttempts: MaxAttempts,
		interval:    PollInterval,
		sleep:       time.Sleep,
	}
}

// Upload submits the artifact at pth and polls its job until Diawi finishes it.
func (r *Relay) Upload(token, pth, comment string) (Result, error) {
	job, err := r.api.Submit(token, pth, comment)
	if err != nil {
		return Result{}, err
	}
	r.logger.Printf("created upload job: %s", job)

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		status, err := r.api.Status(token, job)
		if err != nil {
			return Result{}, err
		}

		switch status.State() {
		case Pending:
			r.logger.Printf("diawi upload not complete, trying again after %s (%d/%d)", r.interval, attempt, r.maxAttempts)
			r.sleep(r.interval)
		case Ready:
			if status.Link == "" || status.QRCode == "" {
				return Result{}, ErrIncompleteStatus
			}
			return Result{Link: status.Link, QRCode: status.QRCode}, nil
		default:
			msg := status.Message
			if msg == "" {
				msg = unexpectedError
			}
			return Result{}, fmt.Errorf("error while uploading to diawi: %s", msg)
		}
	}

	return Result{}, ErrTimeout
}
