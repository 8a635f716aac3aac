package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/batch"
	"github.com/canbulut/fxbatch/internal/contentstore"
	"github.com/canbulut/fxbatch/internal/core/services"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Test Suite ---
type BatchJobServiceTestSuite struct {
	suite.Suite
	provider  *MockRateProvider
	writeRepo *MockWriteRepo
	execRepo  *MockExecRepo
	store     *contentstore.Store
	service   *services.BatchJobService
}

func (s *BatchJobServiceTestSuite) SetupTest() {
	s.provider = new(MockRateProvider)
	s.writeRepo = new(MockWriteRepo)
	s.execRepo = new(MockExecRepo)
	s.store = contentstore.New(10, time.Hour, 0, nil)

	writer := batch.NewDualWriter(s.writeRepo, nil, nil)
	engine := batch.NewEngine(batch.Config{
		ChunkSize:    2,
		SkipLimit:    10,
		RetryLimit:   2,
		RetryBackoff: time.Millisecond,
	}, s.provider, s.writeRepo, writer, s.execRepo, nil)

	// queue of one and no running workers, so enqueued jobs stay queued
	s.service = services.NewBatchJobService(s.store, engine, s.execRepo, 1, 1, nil)
}

// expectLaunch wires the execution lifecycle mocks: no active instance, save captures
// the execution, and FindByID serves the captured copy back.
func (s *BatchJobServiceTestSuite) expectLaunch(saved *models.JobExecution) {
	s.execRepo.On("FindActiveByInstanceID", mock.Anything, mock.Anything).
		Return(nil, apperrors.NewNotFoundError("none active"))
	s.execRepo.On("SaveExecution", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			*saved = args.Get(1).(models.JobExecution)
		}).Return(nil)
	s.execRepo.On("FindByID", mock.Anything, mock.Anything).Return(saved, nil)
}

func (s *BatchJobServiceTestSuite) TestProcessFileCompletes() {
	var saved models.JobExecution
	s.expectLaunch(&saved)
	s.execRepo.On("UpdateExecution", mock.Anything, mock.Anything).Return(nil)
	s.writeRepo.On("ExistsByTransactionID", mock.Anything, mock.Anything).Return(false, nil)
	s.provider.On("GetRate", mock.Anything, "USD", "EUR").Return(models.ExchangeRate{
		SourceCurrency: "USD", TargetCurrency: "EUR",
		Rate: decimal.RequireFromString("0.85"), AsOf: time.Now(),
	}, nil)
	s.writeRepo.On("SaveBatch", mock.Anything, mock.Anything).Return(2, nil)

	exec, err := s.service.ProcessFile(context.Background(), "rates.csv", "amount,from,to\n100,USD,EUR\n200,USD,EUR\n")

	s.Require().NoError(err)
	s.Equal(models.JobCompleted, exec.Status)
	s.Equal(2, exec.Counts.WriteCount)
	s.Equal("rates.csv", exec.Parameters.OriginalFilename)

	_, ok := s.store.Get(exec.Parameters.ContentKey)
	s.False(ok, "staged content is released after completion")
}

func (s *BatchJobServiceTestSuite) TestProcessFileRejectsEmptyContent() {
	_, err := s.service.ProcessFile(context.Background(), "empty.csv", "   ")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrValidation)
	s.execRepo.AssertNotCalled(s.T(), "SaveExecution", mock.Anything, mock.Anything)
}

func (s *BatchJobServiceTestSuite) TestProcessFileRejectsDuplicateLaunch() {
	active := &models.JobExecution{JobID: "job-0", Status: models.JobStarted}
	s.execRepo.On("FindActiveByInstanceID", mock.Anything, mock.Anything).Return(active, nil)

	_, err := s.service.ProcessFile(context.Background(), "rates.csv", "amount,from,to\n100,USD,EUR\n")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrConflict)
	s.Equal(0, s.store.Stats().EntryCount, "nothing is staged for a rejected launch")
}

func (s *BatchJobServiceTestSuite) TestProcessFileAsyncReturnsTask() {
	var saved models.JobExecution
	s.expectLaunch(&saved)

	taskID, err := s.service.ProcessFileAsync(context.Background(), "rates.csv", "amount,from,to\n100,USD,EUR\n")

	s.Require().NoError(err)
	s.NotEmpty(taskID)
}

func (s *BatchJobServiceTestSuite) TestProcessFileAsyncQueueFull() {
	var saved models.JobExecution
	s.expectLaunch(&saved)
	s.execRepo.On("UpdateExecution", mock.Anything, mock.Anything).Return(nil)

	_, err := s.service.ProcessFileAsync(context.Background(), "a.csv", "amount,from,to\n100,USD,EUR\n")
	s.Require().NoError(err)

	_, err = s.service.ProcessFileAsync(context.Background(), "b.csv", "amount,from,to\n200,USD,EUR\n")
	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrCapacity)
}

func (s *BatchJobServiceTestSuite) TestPollTaskUnknown() {
	_, _, err := s.service.PollTask(context.Background(), "task-999")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *BatchJobServiceTestSuite) TestPollTaskRunningThenCollected() {
	var saved models.JobExecution
	s.expectLaunch(&saved)

	taskID, err := s.service.ProcessFileAsync(context.Background(), "rates.csv", "amount,from,to\n100,USD,EUR\n")
	s.Require().NoError(err)

	saved.Status = models.JobStarted
	state, _, err := s.service.PollTask(context.Background(), taskID)
	s.Require().NoError(err)
	s.Equal(services.TaskRunning, state)

	// still pollable while running
	state, _, err = s.service.PollTask(context.Background(), taskID)
	s.Require().NoError(err)
	s.Equal(services.TaskRunning, state)

	saved.Status = models.JobCompleted
	state, exec, err := s.service.PollTask(context.Background(), taskID)
	s.Require().NoError(err)
	s.Equal(services.TaskDone, state)
	s.Require().NotNil(exec)
	s.Equal(models.JobCompleted, exec.Status)

	// collected: the id is gone
	_, _, err = s.service.PollTask(context.Background(), taskID)
	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrNotFound)
}

func (s *BatchJobServiceTestSuite) TestPollTaskConcurrentCollectOnce() {
	var saved models.JobExecution
	s.expectLaunch(&saved)

	taskID, err := s.service.ProcessFileAsync(context.Background(), "rates.csv", "amount,from,to\n100,USD,EUR\n")
	s.Require().NoError(err)
	saved.Status = models.JobCompleted

	const pollers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	done, notFound := 0, 0
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, _, err := s.service.PollTask(context.Background(), taskID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && state == services.TaskDone:
				done++
			case errors.Is(err, apperrors.ErrNotFound):
				notFound++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, done, "exactly one poll collects the finished task")
	s.Equal(pollers-1, notFound)
}

func (s *BatchJobServiceTestSuite) TestStopJobAlreadyFinished() {
	done := &models.JobExecution{JobID: "job-1", Status: models.JobCompleted}
	s.execRepo.On("FindByID", mock.Anything, "job-1").Return(done, nil)

	err := s.service.StopJob(context.Background(), "job-1")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *BatchJobServiceTestSuite) TestStopJobRunning() {
	running := &models.JobExecution{JobID: "job-2", Status: models.JobStarted}
	s.execRepo.On("FindByID", mock.Anything, "job-2").Return(running, nil)

	err := s.service.StopJob(context.Background(), "job-2")

	s.Require().NoError(err)
}

func (s *BatchJobServiceTestSuite) TestRestartJobWrongState() {
	done := &models.JobExecution{JobID: "job-3", Status: models.JobCompleted}
	s.execRepo.On("FindByID", mock.Anything, "job-3").Return(done, nil)

	_, err := s.service.RestartJob(context.Background(), "job-3")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrConflict)
}

func (s *BatchJobServiceTestSuite) TestRestartJobContentExpired() {
	failed := &models.JobExecution{
		JobID:      "job-4",
		Status:     models.JobFailed,
		Parameters: models.JobParameters{ContentKey: "gone"},
	}
	s.execRepo.On("FindByID", mock.Anything, "job-4").Return(failed, nil)

	_, err := s.service.RestartJob(context.Background(), "job-4")

	s.Require().Error(err)
	s.ErrorIs(err, apperrors.ErrValidation)
}

func (s *BatchJobServiceTestSuite) TestRestartJobEnqueues() {
	s.store.Put("staged", "amount,from,to\n100,USD,EUR\n")
	failed := &models.JobExecution{
		JobID:         "job-5",
		Status:        models.JobFailed,
		CheckpointPos: 1,
		Parameters:    models.JobParameters{ContentKey: "staged"},
	}
	s.execRepo.On("FindByID", mock.Anything, "job-5").Return(failed, nil)
	s.execRepo.On("UpdateExecution", mock.Anything, mock.MatchedBy(func(e models.JobExecution) bool {
		return e.Status == models.JobStarting && e.ExitMessage == ""
	})).Return(nil)

	taskID, err := s.service.RestartJob(context.Background(), "job-5")

	s.Require().NoError(err)
	s.NotEmpty(taskID)
}

func (s *BatchJobServiceTestSuite) TestCleanupContent() {
	s.store.Put("a", "1")
	s.store.Put("b", "2")

	removed := s.service.CleanupContent(true)
	s.Equal(2, removed)
	s.Equal(0, s.service.ContentStats().EntryCount)
}

func TestBatchJobServiceTestSuite(t *testing.T) {
	suite.Run(t, new(BatchJobServiceTestSuite))
}
