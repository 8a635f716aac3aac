package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	kgo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// fakeSource scripts FetchMessage results; once the script is exhausted it reports
// context.Canceled so Run returns.
type fakeSource struct {
	mu      sync.Mutex
	fetches []fetchResult
	pos     int
	calls   int
	commits []kgo.Message
}

type fetchResult struct {
	msg kgo.Message
	err error
}

func (f *fakeSource) FetchMessage(ctx context.Context) (kgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.pos >= len(f.fetches) {
		return kgo.Message{}, context.Canceled
	}
	r := f.fetches[f.pos]
	f.pos++
	return r.msg, r.err
}

func (f *fakeSource) CommitMessages(ctx context.Context, msgs ...kgo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, msgs...)
	return nil
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) committed() []kgo.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kgo.Message(nil), f.commits...)
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// --- Mock ConversionReadRepository ---
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

// --- Test Suite ---
type ProjectorTestSuite struct {
	suite.Suite
	readRepo *MockReadRepo
}

func (s *ProjectorTestSuite) SetupTest() {
	s.readRepo = new(MockReadRepo)
}

func (s *ProjectorTestSuite) newProjector(src *fakeSource) *Projector {
	return &Projector{
		reader:     src,
		readRepo:   s.readRepo,
		logger:     slog.Default(),
		retryDelay: 5 * time.Millisecond,
	}
}

func (s *ProjectorTestSuite) eventMessage(event models.ConversionEvent) kgo.Message {
	payload, err := json.Marshal(event)
	s.Require().NoError(err)
	return kgo.Message{Key: []byte(event.TransactionID), Value: payload}
}

func (s *ProjectorTestSuite) TestRunProjectsCreatedEvent() {
	event := models.NewCreatedEvent(models.ConversionResult{
		TransactionID:  "tx-1",
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		SourceAmount:   decimal.RequireFromString("100"),
		TargetAmount:   decimal.RequireFromString("85"),
		ExchangeRate:   decimal.RequireFromString("0.85"),
		Timestamp:      time.Now(),
	}, "corr-1")
	src := &fakeSource{fetches: []fetchResult{{msg: s.eventMessage(event)}}}

	s.readRepo.On("UpsertRecord", mock.Anything, mock.MatchedBy(func(rec models.ConversionRecord) bool {
		return rec.TransactionID == "tx-1" &&
			rec.Status == models.ConversionCompleted &&
			rec.CorrelationID == "corr-1" &&
			rec.TargetAmount.Equal(decimal.RequireFromString("85"))
	})).Return(nil)

	s.newProjector(src).Run(context.Background())

	s.readRepo.AssertExpectations(s.T())
	s.Len(src.committed(), 1)
}

func (s *ProjectorTestSuite) TestRunIgnoresNonCreatedEvents() {
	event := models.NewFailedEvent(models.ConversionRequest{
		SourceCurrency: "USD",
		TargetCurrency: "XXX",
		SourceAmount:   decimal.RequireFromString("50"),
	}, "corr-2", "no rate for USD/XXX")
	src := &fakeSource{fetches: []fetchResult{{msg: s.eventMessage(event)}}}

	s.newProjector(src).Run(context.Background())

	s.readRepo.AssertNotCalled(s.T(), "UpsertRecord", mock.Anything, mock.Anything)
	s.Len(src.committed(), 1, "skipped event types still advance the offset")
}

func (s *ProjectorTestSuite) TestRunDropsMalformedMessage() {
	src := &fakeSource{fetches: []fetchResult{
		{msg: kgo.Message{Value: []byte("{not json")}},
	}}

	s.newProjector(src).Run(context.Background())

	s.readRepo.AssertNotCalled(s.T(), "UpsertRecord", mock.Anything, mock.Anything)
	s.Len(src.committed(), 1, "malformed messages are dropped, not redelivered")
}

func (s *ProjectorTestSuite) TestRunLeavesFailedUpsertUncommitted() {
	event := models.NewCreatedEvent(models.ConversionResult{
		TransactionID:  "tx-2",
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		SourceAmount:   decimal.RequireFromString("10"),
		TargetAmount:   decimal.RequireFromString("8.50"),
		ExchangeRate:   decimal.RequireFromString("0.85"),
		Timestamp:      time.Now(),
	}, "")
	src := &fakeSource{fetches: []fetchResult{{msg: s.eventMessage(event)}}}

	s.readRepo.On("UpsertRecord", mock.Anything, mock.Anything).
		Return(errors.New("read model unavailable"))

	s.newProjector(src).Run(context.Background())

	s.Empty(src.committed(), "a failed upsert leaves the offset for redelivery")
}

func (s *ProjectorTestSuite) TestRunBacksOffAfterFetchError() {
	src := &fakeSource{fetches: []fetchResult{
		{err: errors.New("SASL authentication failed")},
	}}
	p := s.newProjector(src)

	start := time.Now()
	p.Run(context.Background())

	s.Equal(2, src.fetchCount(), "the loop retries after a fetch error")
	s.GreaterOrEqual(time.Since(start), p.retryDelay)
}

func TestProjectorTestSuite(t *testing.T) {
	suite.Run(t, new(ProjectorTestSuite))
}
