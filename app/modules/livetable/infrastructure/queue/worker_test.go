package livetablequeue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
)

type FakePersister struct {
	calls int

	PersistFunc func(ctx context.Context) error
}

func (f *FakePersister) Persist(ctx context.Context) error {
	f.calls++
	if f.PersistFunc != nil {
		return f.PersistFunc(ctx)
	}
	return nil
}

func snapshotJob() *river.Job[NonceSnapshotJob] {
	return &river.Job[NonceSnapshotJob]{JobRow: &rivertype.JobRow{ID: 7, Attempt: 1}}
}

func TestNonceSnapshotWorker_Work(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "persists"},
		{name: "propagates failure", err: errors.New("disk full"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &FakePersister{PersistFunc: func(context.Context) error { return tt.err }}
			w := NewNonceSnapshotWorker(p, logger)

			err := w.Work(context.Background(), snapshotJob())

			assert.Equal(t, 1, p.calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNonceSnapshotJob(t *testing.T) {
	assert.Equal(t, "livetable_nonce_snapshot", NonceSnapshotJob{}.Kind())
	w := NewNonceSnapshotWorker(&FakePersister{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 30*time.Second, w.Timeout(snapshotJob()))
}
