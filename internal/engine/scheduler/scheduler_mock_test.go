package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.trai.ch/cellar/internal/core/future"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/cellar/internal/core/ports/mocks"
	"go.trai.ch/cellar/internal/core/session"
	"go.uber.org/mock/gomock"
)

// TestScheduler_Run_LogsFailureAndRecordsTelemetry exercises the two
// ports Run talks to through gomock expectations rather than hand-rolled
// doubles, matching the teacher's scheduler test style.
func TestScheduler_Run_LogsFailureAndRecordsTelemetry(t *testing.T) {
	ctrl := gomock.NewController(t)

	sess, err := session.Open()
	require.NoError(t, err)
	defer sess.Close()

	wantErr := errors.New("boom")
	rule := future.NewRule("fail", func([]any) (any, error) { return nil, wantErr })
	task, err := sess.CreateTask(rule)
	require.NoError(t, err)

	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Error(gomock.Any()).Times(1)

	vtx := mocks.NewMockVertex(ctrl)
	vtx.EXPECT().Complete(gomock.Any()).Times(1)

	tel := mocks.NewMockTelemetry(ctrl)
	tel.EXPECT().
		Record(gomock.Any(), "fail").
		Return(context.Background(), ports.Vertex(vtx))

	s := New(sess, logger, tel, Options{Parallelism: 1})
	_, err = s.Run(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, wantErr)
}
