package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/scripttrimmer/api/internal/client"
	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/progress"
)

const TaskTypeProcess = "process:video"

var (
	ErrInvalidReference = errors.New("invalid job reference")
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotCompleted  = errors.New("job not completed")
	ErrJobFailed        = errors.New("job failed")
)

// ProcessService manages trim jobs: it creates the job record, publishes the
// initial pending update, and hands the pipeline to the worker queue. The
// caller gets an immediate ack; everything else arrives over the progress
// stream.
type ProcessService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	store       progress.Store
}

func NewProcessService(redisClient *redis.Client, asynqClient *asynq.Client, store progress.Store) *ProcessService {
	return &ProcessService{
		redis:       redisClient,
		asynqClient: asynqClient,
		store:       store,
	}
}

// Start validates the reference, enqueues the pipeline, and returns the
// pending ack without waiting for any stage to run.
func (s *ProcessService) Start(ctx context.Context, req *model.ProcessStartRequest) (*model.ProcessStartResponse, error) {
	if client.ClassifyReference(req.JobReference) == client.ReferenceInvalid {
		return nil, ErrInvalidReference
	}

	key := progress.DeriveKey(req.JobReference)
	now := time.Now()

	job := &model.Job{
		Key:          key,
		JobReference: req.JobReference,
		Status:       model.JobStatusPending,
		Progress:     0,
		CurrentStep:  "Job queued",
		CreatedAt:    now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	s.publish(ctx, key, model.ProgressUpdate{
		JobReference: req.JobReference,
		Status:       model.JobStatusPending,
		Message:      "Job queued",
		Progress:     0,
		Timestamp:    now,
	})

	payload, err := json.Marshal(model.ProcessJobPayload{
		Key:            key,
		JobReference:   req.JobReference,
		CookiesContent: req.CookiesContent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}

	// MaxRetry 0: stage failures are terminal, the runner never retries.
	_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeProcess, payload),
		asynq.Queue("process"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ProcessStartResponse{
		JobReference: req.JobReference,
		Key:          key,
		Status:       model.JobStatusPending,
		Message:      "Job queued",
		Progress:     0,
	}, nil
}

// GetStatus returns the latest known state of a job.
func (s *ProcessService) GetStatus(ctx context.Context, key string) (*model.ProcessStatusResponse, error) {
	job, err := s.getJob(ctx, key)
	if err != nil {
		return nil, err
	}

	return &model.ProcessStatusResponse{
		JobReference: job.JobReference,
		Key:          job.Key,
		Status:       job.Status,
		Message:      job.CurrentStep,
		Progress:     job.Progress,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
	}, nil
}

// GetResult returns the result of a completed job.
func (s *ProcessService) GetResult(ctx context.Context, key string) (*model.ProcessResult, error) {
	job, err := s.getJob(ctx, key)
	if err != nil {
		return nil, err
	}

	if job.Status == model.JobStatusFailed {
		if job.Error != nil {
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, *job.Error)
		}
		return nil, ErrJobFailed
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrJobNotCompleted
	}

	var result model.ProcessResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// UpdateStageProgress records a stage boundary (called by worker).
func (s *ProcessService) UpdateStageProgress(ctx context.Context, key, jobReference string, stage model.Stage) error {
	job, err := s.getJob(ctx, key)
	if err != nil {
		return err
	}

	pct := model.StageProgress[stage]
	msg := model.StageMessages[stage]

	job.Progress = pct
	job.CurrentStep = msg
	if job.Status == model.JobStatusPending {
		job.Status = model.JobStatusRunning
		now := time.Now()
		job.StartedAt = &now
	}

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	s.publish(ctx, key, model.ProgressUpdate{
		JobReference: jobReference,
		Status:       model.JobStatusRunning,
		Message:      msg,
		Progress:     pct,
		Timestamp:    time.Now(),
	})
	return nil
}

// CompleteJob marks the job completed and publishes the terminal update
// carrying the result (called by worker).
func (s *ProcessService) CompleteJob(ctx context.Context, key, jobReference string, result *model.ProcessResult) error {
	job, err := s.getJob(ctx, key)
	if err != nil {
		return err
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.CurrentStep = "Processing completed"
	job.Result = resultBytes
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	s.publish(ctx, key, model.ProgressUpdate{
		JobReference: jobReference,
		Status:       model.JobStatusCompleted,
		Message:      "Processing completed",
		Progress:     100,
		Result:       resultBytes,
		Timestamp:    now,
	})
	return nil
}

// FailJob marks the job failed and publishes the terminal update (called by
// worker). Exactly one terminal update is published per job.
func (s *ProcessService) FailJob(ctx context.Context, key, jobReference, errMsg string) error {
	job, err := s.getJob(ctx, key)
	if err != nil {
		return err
	}

	job.Status = model.JobStatusFailed
	job.Error = &errMsg
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return err
	}

	s.publish(ctx, key, model.ProgressUpdate{
		JobReference: jobReference,
		Status:       model.JobStatusFailed,
		Message:      "Processing failed",
		Progress:     job.Progress,
		Error:        errMsg,
		Timestamp:    now,
	})
	return nil
}

// publish pushes an update to the progress store. Delivery is best-effort:
// a failed publish is logged and the pipeline carries on.
func (s *ProcessService) publish(ctx context.Context, key string, update model.ProgressUpdate) {
	if err := s.store.Publish(ctx, key, update); err != nil {
		log.Printf("Warning: failed to publish progress for %s: %v", key, err)
	}
}

// Helper methods

func (s *ProcessService) saveJob(ctx context.Context, job *model.Job) error {
	record := struct {
		*model.Job
		Result json.RawMessage `json:"result,omitempty"`
	}{Job: job, Result: job.Result}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("job:%s", job.Key), data, 24*time.Hour).Err()
}

func (s *ProcessService) getJob(ctx context.Context, key string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("job:%s", key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var record struct {
		model.Job
		Result json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}

	job := record.Job
	job.Result = record.Result
	return &job, nil
}
