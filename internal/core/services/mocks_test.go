package services_test

import (
	"context"

	"github.com/canbulut/fxbatch/internal/models"
	"github.com/stretchr/testify/mock"
)

// --- Mock rate provider ---
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) GetRate(ctx context.Context, sourceCurrency, targetCurrency string) (models.ExchangeRate, error) {
	args := m.Called(ctx, sourceCurrency, targetCurrency)
	return args.Get(0).(models.ExchangeRate), args.Error(1)
}

// --- Mock write repository ---
type MockWriteRepo struct {
	mock.Mock
}

func (m *MockWriteRepo) SaveRecord(ctx context.Context, record models.ConversionRecord) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockWriteRepo) SaveBatch(ctx context.Context, records []models.ConversionRecord) (int, error) {
	args := m.Called(ctx, records)
	return args.Int(0), args.Error(1)
}

func (m *MockWriteRepo) ExistsByTransactionID(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockWriteRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversionRecord), args.Error(1)
}

// --- Mock read repository ---
type MockReadRepo struct {
	mock.Mock
}

func (m *MockReadRepo) UpsertRecord(ctx context.Context, record models.ConversionRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockReadRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.ConversionRecord, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConversionRecord), args.Error(1)
}

func (m *MockReadRepo) ListRecords(ctx context.Context, page, size int) ([]models.ConversionRecord, int, error) {
	args := m.Called(ctx, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.ConversionRecord), args.Int(1), args.Error(2)
}

// --- Mock execution repository ---
type MockExecRepo struct {
	mock.Mock
}

func (m *MockExecRepo) SaveExecution(ctx context.Context, exec models.JobExecution) error {
	args := m.Called(ctx, exec)
	return args.Error(0)
}

func (m *MockExecRepo) UpdateExecution(ctx context.Context, exec models.JobExecution) error {
	args := m.Called(ctx, exec)
	return args.Error(0)
}

func (m *MockExecRepo) FindByID(ctx context.Context, jobID string) (*models.JobExecution, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobExecution), args.Error(1)
}

func (m *MockExecRepo) FindRunning(ctx context.Context) ([]models.JobExecution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.JobExecution), args.Error(1)
}

func (m *MockExecRepo) FindByName(ctx context.Context, jobName string, page, size int) ([]models.JobExecution, int, error) {
	args := m.Called(ctx, jobName, page, size)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]models.JobExecution), args.Int(1), args.Error(2)
}

func (m *MockExecRepo) FindActiveByInstanceID(ctx context.Context, jobInstanceID string) (*models.JobExecution, error) {
	args := m.Called(ctx, jobInstanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JobExecution), args.Error(1)
}

func (m *MockExecRepo) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[models.JobStatus]int), args.Error(1)
}

// --- Mock event publisher ---
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishConversionEvent(ctx context.Context, event models.ConversionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
