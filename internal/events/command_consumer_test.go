package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/canbulut/fxbatch/internal/models"
	kgo "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock CommandHandler ---
type MockCommandHandler struct {
	mock.Mock
}

func (m *MockCommandHandler) HandleCommand(ctx context.Context, cmd models.ConversionCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

// --- Test Suite ---
type CommandConsumerTestSuite struct {
	suite.Suite
	handler *MockCommandHandler
}

func (s *CommandConsumerTestSuite) SetupTest() {
	s.handler = new(MockCommandHandler)
}

func (s *CommandConsumerTestSuite) newConsumer(src *fakeSource) *CommandConsumer {
	return &CommandConsumer{
		reader:     src,
		handler:    s.handler,
		logger:     slog.Default(),
		retryDelay: 5 * time.Millisecond,
	}
}

func (s *CommandConsumerTestSuite) commandMessage(cmd models.ConversionCommand) kgo.Message {
	payload, err := json.Marshal(cmd)
	s.Require().NoError(err)
	return kgo.Message{Key: []byte(cmd.CommandID), Value: payload}
}

func (s *CommandConsumerTestSuite) TestRunHandlesAndCommits() {
	cmd := models.ConversionCommand{
		CommandID:      "cmd-1",
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		SourceAmount:   decimal.RequireFromString("25"),
	}
	src := &fakeSource{fetches: []fetchResult{{msg: s.commandMessage(cmd)}}}

	s.handler.On("HandleCommand", mock.Anything, mock.MatchedBy(func(got models.ConversionCommand) bool {
		return got.CommandID == "cmd-1" && got.SourceAmount.Equal(decimal.RequireFromString("25"))
	})).Return(nil)

	s.newConsumer(src).Run(context.Background())

	s.handler.AssertExpectations(s.T())
	s.Len(src.committed(), 1)
}

func (s *CommandConsumerTestSuite) TestRunCommitsHandlerFailure() {
	cmd := models.ConversionCommand{CommandID: "cmd-2", SourceCurrency: "USD", TargetCurrency: "XXX"}
	src := &fakeSource{fetches: []fetchResult{{msg: s.commandMessage(cmd)}}}

	s.handler.On("HandleCommand", mock.Anything, mock.Anything).
		Return(errors.New("no rate for USD/XXX"))

	s.newConsumer(src).Run(context.Background())

	s.Len(src.committed(), 1, "a failed command is committed, the handler records the outcome")
}

func (s *CommandConsumerTestSuite) TestRunDropsMalformedCommand() {
	src := &fakeSource{fetches: []fetchResult{
		{msg: kgo.Message{Value: []byte("not a command")}},
	}}

	s.newConsumer(src).Run(context.Background())

	s.handler.AssertNotCalled(s.T(), "HandleCommand", mock.Anything, mock.Anything)
	s.Len(src.committed(), 1)
}

func (s *CommandConsumerTestSuite) TestRunBacksOffAfterFetchError() {
	src := &fakeSource{fetches: []fetchResult{
		{err: errors.New("broker unreachable")},
	}}
	c := s.newConsumer(src)

	start := time.Now()
	c.Run(context.Background())

	s.Equal(2, src.fetchCount())
	s.GreaterOrEqual(time.Since(start), c.retryDelay)
}

func TestCommandConsumerTestSuite(t *testing.T) {
	suite.Run(t, new(CommandConsumerTestSuite))
}
