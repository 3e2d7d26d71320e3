package workers

import (
	"chat-relay/contract"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPresenceReporter_ReportsUntilCancelled(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	presence := mocks.NewMockIPresenceRegistry(ctrl)
	membership := mocks.NewMockIRoomMembership(ctrl)
	conn := mocks.NewMockConnection(ctrl)

	presence.EXPECT().Count().Return(1).MinTimes(2)
	membership.EXPECT().All().Return([]contract.Connection{conn}).MinTimes(2)
	membership.EXPECT().Rooms().Return(1).MinTimes(2)

	reporter := NewPresenceReporter(slog.Default(), presence, membership, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req.NoError(reporter.Run(ctx))
}

func TestPresenceReporter_NonPositiveIntervalFallsBackToDefault(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	presence := mocks.NewMockIPresenceRegistry(ctrl)
	membership := mocks.NewMockIRoomMembership(ctrl)
	// Only the final report on cancellation
	presence.EXPECT().Count().Return(0).Times(1)
	membership.EXPECT().All().Return(nil).Times(1)
	membership.EXPECT().Rooms().Return(0).Times(1)

	reporter := NewPresenceReporter(slog.Default(), presence, membership, 0)
	req.Equal(defaultReportInterval, reporter.interval)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req.NotPanics(func() { req.NoError(reporter.Run(ctx)) })
}
