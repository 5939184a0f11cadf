package writer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raillake/internal/writer"
)

func TestTableLockSerializesHolders(t *testing.T) {
	lock := writer.NewTableLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "stations_bronze")
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		r, err := lock.Acquire(ctx, "stations_bronze")
		if err != nil {
			return
		}
		acquired <- r
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while the lease was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case r := <-acquired:
		r()
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired after release")
	}
}

func TestTableLockTablesAreIndependent(t *testing.T) {
	lock := writer.NewTableLock()
	ctx := context.Background()

	releaseA, err := lock.Acquire(ctx, "stations_bronze")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := lock.Acquire(ctx, "disruptions_bronze")
	require.NoError(t, err)
	releaseB()
}

func TestTableLockAcquireHonorsContext(t *testing.T) {
	lock := writer.NewTableLock()

	release, err := lock.Acquire(context.Background(), "stations_bronze")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(ctx, "stations_bronze")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTableLockReleaseIsIdempotent(t *testing.T) {
	lock := writer.NewTableLock()
	ctx := context.Background()

	release, err := lock.Acquire(ctx, "stations_bronze")
	require.NoError(t, err)
	release()
	release()

	// A double release must not mint an extra permit.
	release2, err := lock.Acquire(ctx, "stations_bronze")
	require.NoError(t, err)
	defer release2()

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = lock.Acquire(blocked, "stations_bronze")
	assert.Error(t, err)
}
