package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/batch"
	"github.com/canbulut/fxbatch/internal/contentstore"
	"github.com/canbulut/fxbatch/internal/core/ports"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/canbulut/fxbatch/internal/parser"
	"github.com/google/uuid"
)

// BulkConversionJobName is the logical name of the bulk file-conversion job. Every
// execution launched by this service runs under it.
const BulkConversionJobName = "bulkConversionJob"

// Task states reported by PollTask.
const (
	TaskRunning = "RUNNING"
	TaskDone    = "DONE"
)

type asyncTask struct {
	jobID string
	done  atomic.Bool
}

// BatchJobService orchestrates bulk conversion jobs: it stages uploaded payloads in the
// content store, launches executions synchronously or on a bounded worker pool, and
// tracks per-submission async tasks until their result is collected.
type BatchJobService struct {
	store    *contentstore.Store
	engine   *batch.Engine
	execRepo ports.JobExecutionRepository
	logger   *slog.Logger

	queue   chan string // job ids awaiting a worker
	workers int
	wg      sync.WaitGroup

	mu        sync.Mutex
	tasks     map[string]*asyncTask
	stopFlags map[string]*atomic.Bool
	taskSeq   atomic.Int64
}

func NewBatchJobService(store *contentstore.Store, engine *batch.Engine, execRepo ports.JobExecutionRepository, workers, queueSize int, logger *slog.Logger) *BatchJobService {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchJobService{
		store:     store,
		engine:    engine,
		execRepo:  execRepo,
		logger:    logger,
		queue:     make(chan string, queueSize),
		workers:   workers,
		tasks:     make(map[string]*asyncTask),
		stopFlags: make(map[string]*atomic.Bool),
	}
}

// Start launches the worker pool. Workers drain the queue until ctx is cancelled; Wait
// blocks until they exit.
func (s *BatchJobService) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func(worker int) {
			defer s.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-s.queue:
					s.runJob(ctx, jobID)
				}
			}
		}(i)
	}
	s.logger.Info("batch worker pool started",
		slog.Int("workers", s.workers),
		slog.Int("queue_capacity", cap(s.queue)),
	)
}

// Wait blocks until all workers have exited.
func (s *BatchJobService) Wait() {
	s.wg.Wait()
}

// ProcessFile runs a bulk conversion synchronously and returns the terminal execution.
func (s *BatchJobService) ProcessFile(ctx context.Context, filename, content string) (*models.JobExecution, error) {
	exec, err := s.prepare(ctx, filename, content)
	if err != nil {
		return nil, err
	}
	s.runJob(ctx, exec.JobID)
	return s.execRepo.FindByID(ctx, exec.JobID)
}

// ProcessFileAsync stages the upload, registers an async task and enqueues the job.
// A full queue is rejected with a capacity error and the staged content is discarded.
func (s *BatchJobService) ProcessFileAsync(ctx context.Context, filename, content string) (string, error) {
	exec, err := s.prepare(ctx, filename, content)
	if err != nil {
		return "", err
	}

	taskID := "task-" + strconv.FormatInt(s.taskSeq.Add(1), 10)
	task := &asyncTask{jobID: exec.JobID}
	s.mu.Lock()
	s.tasks[taskID] = task
	s.mu.Unlock()

	select {
	case s.queue <- exec.JobID:
	default:
		s.mu.Lock()
		delete(s.tasks, taskID)
		s.mu.Unlock()
		s.discardFailedLaunch(ctx, exec, "worker queue full")
		return "", apperrors.NewCapacityError("job queue is full, retry later")
	}

	s.logger.Info("job enqueued",
		slog.String("task_id", taskID),
		slog.String("job_id", exec.JobID),
		slog.String("filename", filename),
	)
	return taskID, nil
}

// PollTask reports the state of an async task. Once the job has reached a terminal
// state the task is collected: the execution is returned and the registry entry
// removed, so a second poll for the same id is a not-found.
func (s *BatchJobService) PollTask(ctx context.Context, taskID string) (string, *models.JobExecution, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	s.mu.Unlock()
	if !ok {
		return "", nil, apperrors.NewNotFoundError("no task with id " + taskID)
	}

	exec, err := s.execRepo.FindByID(ctx, task.jobID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load execution for task %s: %w", taskID, err)
	}
	if !exec.Status.IsTerminal() {
		return TaskRunning, exec, nil
	}

	// re-check under the lock: only the poll that removes the entry reports DONE
	s.mu.Lock()
	_, ok = s.tasks[taskID]
	delete(s.tasks, taskID)
	s.mu.Unlock()
	if !ok {
		return "", nil, apperrors.NewNotFoundError("no task with id " + taskID)
	}
	return TaskDone, exec, nil
}

// StopJob requests a stop for a running job. The signal is honored at the next chunk
// boundary; the in-flight chunk still commits.
func (s *BatchJobService) StopJob(ctx context.Context, jobID string) error {
	exec, err := s.execRepo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return apperrors.NewConflictError("job " + jobID + " already finished with status " + string(exec.Status))
	}

	s.mu.Lock()
	flag, ok := s.stopFlags[jobID]
	if !ok {
		flag = &atomic.Bool{}
		s.stopFlags[jobID] = flag
	}
	s.mu.Unlock()
	flag.Store(true)
	s.logger.Info("stop requested", slog.String("job_id", jobID))
	return nil
}

// RestartJob re-enqueues a FAILED or STOPPED execution. The engine resumes from the
// persisted checkpoint, so already-committed chunks are not reprocessed. The staged
// content must still be present in the content store.
func (s *BatchJobService) RestartJob(ctx context.Context, jobID string) (string, error) {
	exec, err := s.execRepo.FindByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if exec.Status != models.JobFailed && exec.Status != models.JobStopped {
		return "", apperrors.NewConflictError("job " + jobID + " is " + string(exec.Status) + ", only FAILED or STOPPED jobs can be restarted")
	}
	if _, ok := s.store.Get(exec.Parameters.ContentKey); !ok {
		return "", apperrors.NewValidationError("staged content for job " + jobID + " has expired, re-upload the file")
	}

	exec.Status = models.JobStarting
	exec.ExitMessage = ""
	exec.EndTime = time.Time{}
	if err := s.execRepo.UpdateExecution(ctx, *exec); err != nil {
		return "", fmt.Errorf("failed to reset execution %s: %w", jobID, err)
	}

	taskID := "task-" + strconv.FormatInt(s.taskSeq.Add(1), 10)
	s.mu.Lock()
	s.tasks[taskID] = &asyncTask{jobID: jobID}
	if flag, ok := s.stopFlags[jobID]; ok {
		flag.Store(false)
	}
	s.mu.Unlock()

	select {
	case s.queue <- jobID:
	default:
		s.mu.Lock()
		delete(s.tasks, taskID)
		s.mu.Unlock()
		return "", apperrors.NewCapacityError("job queue is full, retry later")
	}

	s.logger.Info("job restart enqueued",
		slog.String("task_id", taskID),
		slog.String("job_id", jobID),
		slog.Int("checkpoint", exec.CheckpointPos),
	)
	return taskID, nil
}

// ContentStats reports the content store occupancy.
func (s *BatchJobService) ContentStats() contentstore.Stats {
	return s.store.Stats()
}

// CleanupContent removes expired entries, or everything when all is set.
func (s *BatchJobService) CleanupContent(all bool) int {
	if all {
		return s.store.ClearAll()
	}
	return s.store.SweepExpired()
}

// prepare stages the payload and persists a STARTING execution. A non-terminal
// execution for the same logical identity (job name, filename, size) is rejected as a
// conflict before anything is staged.
func (s *BatchJobService) prepare(ctx context.Context, filename, content string) (*models.JobExecution, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewValidationError("file content is empty")
	}

	size := int64(len(content))
	instanceID := jobInstanceID(filename, size)
	active, err := s.execRepo.FindActiveByInstanceID(ctx, instanceID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check active executions: %w", err)
	}
	if active != nil {
		return nil, apperrors.NewConflictError("a job for " + filename + " is already running: " + active.JobID)
	}

	key := contentstore.GenerateKey(filename)
	s.store.Put(key, content)

	now := time.Now()
	exec := models.JobExecution{
		JobID:         uuid.NewString(),
		JobInstanceID: instanceID,
		JobName:       BulkConversionJobName,
		Status:        models.JobStarting,
		Parameters: models.JobParameters{
			ContentKey:        key,
			OriginalFilename:  filename,
			FileSizeBytes:     size,
			SubmittedAtMillis: now.UnixMilli(),
		},
		CreateTime: now,
	}
	if err := s.execRepo.SaveExecution(ctx, exec); err != nil {
		s.store.Remove(key)
		return nil, fmt.Errorf("failed to persist execution: %w", err)
	}
	return &exec, nil
}

// runJob drives one execution to a terminal state. Content that cannot be loaded or
// parsed fails the job; a completed job releases its staged content.
func (s *BatchJobService) runJob(ctx context.Context, jobID string) {
	exec, err := s.execRepo.FindByID(ctx, jobID)
	if err != nil {
		s.logger.Error("failed to load queued execution",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
		return
	}
	logger := s.logger.With(slog.String("job_id", jobID))

	content, ok := s.store.Get(exec.Parameters.ContentKey)
	if !ok {
		s.markFailed(ctx, exec, "staged content expired before the job ran")
		return
	}

	reader, err := parser.NewReader(content, logger)
	if err != nil {
		s.markFailed(ctx, exec, "unable to parse file: "+err.Error())
		return
	}
	if exec.CheckpointPos > 0 {
		if err := reader.Skip(exec.CheckpointPos); err != nil {
			s.markFailed(ctx, exec, "unable to seek to checkpoint: "+err.Error())
			return
		}
		logger.Info("resuming from checkpoint", slog.Int("position", exec.CheckpointPos))
	}

	s.mu.Lock()
	flag, ok := s.stopFlags[jobID]
	if !ok {
		flag = &atomic.Bool{}
		s.stopFlags[jobID] = flag
	}
	s.mu.Unlock()

	runErr := s.engine.Run(ctx, exec, reader, flag.Load)

	s.mu.Lock()
	delete(s.stopFlags, jobID)
	s.mu.Unlock()

	if runErr == nil && exec.Status == models.JobCompleted {
		s.store.Remove(exec.Parameters.ContentKey)
	}
}

func (s *BatchJobService) markFailed(ctx context.Context, exec *models.JobExecution, reason string) {
	exec.Status = models.JobFailed
	exec.ExitMessage = reason
	exec.EndTime = time.Now()
	if err := s.execRepo.UpdateExecution(ctx, *exec); err != nil {
		s.logger.Error("failed to persist job failure",
			slog.String("job_id", exec.JobID), slog.String("error", err.Error()))
	}
	s.logger.Error("job failed before processing",
		slog.String("job_id", exec.JobID), slog.String("reason", reason))
}

func (s *BatchJobService) discardFailedLaunch(ctx context.Context, exec *models.JobExecution, reason string) {
	s.store.Remove(exec.Parameters.ContentKey)
	s.markFailed(ctx, exec, reason)
}

func jobInstanceID(filename string, size int64) string {
	return BulkConversionJobName + ":" + filename + ":" + strconv.FormatInt(size, 10)
}
