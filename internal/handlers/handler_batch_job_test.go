package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/canbulut/fxbatch/internal/apperrors"
	"github.com/canbulut/fxbatch/internal/contentstore"
	portssvc "github.com/canbulut/fxbatch/internal/core/ports/services"
	"github.com/canbulut/fxbatch/internal/dto"
	"github.com/canbulut/fxbatch/internal/handlers"
	"github.com/canbulut/fxbatch/internal/models"
	"github.com/canbulut/fxbatch/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock BatchJobService ---
type MockBatchJobService struct {
	mock.Mock
}

func (m *MockBatchJobService) ProcessFile(ctx context.Context, filename, content string) (*models.JobExecution, error) {
	args := m.Called(ctx, filename, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobExecution), args.Error(1)
}

func (m *MockBatchJobService) ProcessFileAsync(ctx context.Context, filename, content string) (string, error) {
	args := m.Called(ctx, filename, content)
	return args.String(0), args.Error(1)
}

func (m *MockBatchJobService) PollTask(ctx context.Context, taskID string) (string, *models.JobExecution, error) {
	args := m.Called(ctx, taskID)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*models.JobExecution), args.Error(2)
}

func (m *MockBatchJobService) StopJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockBatchJobService) RestartJob(ctx context.Context, jobID string) (string, error) {
	args := m.Called(ctx, jobID)
	return args.String(0), args.Error(1)
}

func (m *MockBatchJobService) ContentStats() contentstore.Stats {
	args := m.Called()
	return args.Get(0).(contentstore.Stats)
}

func (m *MockBatchJobService) CleanupContent(all bool) int {
	args := m.Called(all)
	return args.Int(0)
}

// --- Mock JobStatusService ---
type MockJobStatusService struct {
	mock.Mock
}

func (m *MockJobStatusService) GetJob(ctx context.Context, jobID string) (*models.JobExecution, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobExecution), args.Error(1)
}

func (m *MockJobStatusService) RunningJobs(ctx context.Context) ([]models.JobExecution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobExecution), args.Error(1)
}

func (m *MockJobStatusService) JobsByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error) {
	args := m.Called(ctx, jobName, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.JobExecution), args.Int(1), args.Error(2)
}

func (m *MockJobStatusService) Statistics(ctx context.Context) (map[models.JobStatus]int, int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).(map[models.JobStatus]int), args.Int(1), args.Error(2)
}

// --- Mock ConversionService ---
type MockConversionService struct {
	mock.Mock
}

func (m *MockConversionService) Convert(ctx context.Context, req dto.CreateConversionRequest, correlationID string) (*models.ConversionResult, error) {
	args := m.Called(ctx, req, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversionResult), args.Error(1)
}

func (m *MockConversionService) GetByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversionRecord), args.Error(1)
}

func (m *MockConversionService) ListConversions(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error) {
	args := m.Called(ctx, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.ConversionRecord), args.Int(1), args.Error(2)
}

// --- Test Suite ---
type BatchJobHandlerTestSuite struct {
	suite.Suite
	router     *gin.Engine
	batchSvc   *MockBatchJobService
	statusSvc  *MockJobStatusService
	convertSvc *MockConversionService
}

func (s *BatchJobHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.batchSvc = new(MockBatchJobService)
	s.statusSvc = new(MockJobStatusService)
	s.convertSvc = new(MockConversionService)

	s.router = gin.New()
	handlers.RegisterRoutes(s.router, &config.Config{}, &portssvc.ServiceContainer{
		Conversion: s.convertSvc,
		BatchJob:   s.batchSvc,
		JobStatus:  s.statusSvc,
	}, nil)
}

func (s *BatchJobHandlerTestSuite) multipartUpload(path, filename, content string) *httptest.ResponseRecorder {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("file", filename)
	s.Require().NoError(err)
	_, err = fw.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *BatchJobHandlerTestSuite) TestUploadAsyncAccepted() {
	s.batchSvc.On("ProcessFileAsync", mock.Anything, "rates.csv", "amount,from,to\n100,USD,EUR\n").
		Return("task-1", nil)

	w := s.multipartUpload("/api/v1/batch/upload/async", "rates.csv", "amount,from,to\n100,USD,EUR\n")

	s.Equal(http.StatusAccepted, w.Code)
	var resp dto.AsyncTaskResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("task-1", resp.TaskID)
	s.Equal("SUBMITTED", resp.Status)
}

func (s *BatchJobHandlerTestSuite) TestUploadSyncConflict() {
	s.batchSvc.On("ProcessFile", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.NewConflictError("a job for rates.csv is already running"))

	w := s.multipartUpload("/api/v1/batch/upload", "rates.csv", "amount,from,to\n100,USD,EUR\n")

	s.Equal(http.StatusConflict, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestUploadAsyncQueueFull() {
	s.batchSvc.On("ProcessFileAsync", mock.Anything, mock.Anything, mock.Anything).
		Return("", apperrors.NewCapacityError("job queue is full"))

	w := s.multipartUpload("/api/v1/batch/upload/async", "rates.csv", "amount,from,to\n100,USD,EUR\n")

	s.Equal(http.StatusTooManyRequests, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestUploadMissingFile() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch/upload", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestUploadRawBody() {
	s.batchSvc.On("ProcessFile", mock.Anything, "upload.csv", "amount,from,to\n100,USD,EUR\n").
		Return(&models.JobExecution{JobID: "job-1", Status: models.JobCompleted}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch/upload",
		strings.NewReader("amount,from,to\n100,USD,EUR\n"))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestPollTaskNotFound() {
	s.batchSvc.On("PollTask", mock.Anything, "task-9").
		Return("", nil, apperrors.NewNotFoundError("no task"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/tasks/task-9", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusNotFound, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestPollTaskDone() {
	exec := &models.JobExecution{JobID: "job-1", Status: models.JobCompleted}
	s.batchSvc.On("PollTask", mock.Anything, "task-1").Return("DONE", exec, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/tasks/task-1", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp dto.TaskPollResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("DONE", resp.State)
	s.Require().NotNil(resp.Job)
	s.Equal("job-1", resp.Job.JobID)
}

func (s *BatchJobHandlerTestSuite) TestStopJobConflict() {
	s.batchSvc.On("StopJob", mock.Anything, "job-1").
		Return(apperrors.NewConflictError("job already finished"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batch/jobs/job-1/stop", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusConflict, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestStatistics() {
	s.statusSvc.On("Statistics", mock.Anything).Return(map[models.JobStatus]int{
		models.JobCompleted: 3,
	}, 3, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/statistics", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var resp dto.JobStatisticsResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(3, resp.TotalJobs)
	s.Equal(3, resp.CountsByStatus["COMPLETED"])
}

func (s *BatchJobHandlerTestSuite) TestContentStats() {
	s.batchSvc.On("ContentStats").Return(contentstore.Stats{EntryCount: 2, MaxEntries: 100, AvailableSlots: 98})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batch/content/stats", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	var stats contentstore.Stats
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &stats))
	s.Equal(2, stats.EntryCount)
}

func (s *BatchJobHandlerTestSuite) TestCreateConversion() {
	s.convertSvc.On("Convert", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.ConversionResult{TransactionID: "tx-1"}, nil)

	body := `{"sourceAmount":"100","sourceCurrency":"USD","targetCurrency":"EUR"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusCreated, w.Code)
}

func (s *BatchJobHandlerTestSuite) TestCreateConversionBadBody() {
	body := `{"sourceAmount":"100","sourceCurrency":"usd","targetCurrency":"EUR"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusBadRequest, w.Code)
	s.convertSvc.AssertNotCalled(s.T(), "Convert", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BatchJobHandlerTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Equal(http.StatusOK, w.Code)
	s.Equal("OK", w.Body.String())
}

func TestBatchJobHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(BatchJobHandlerTestSuite))
}
