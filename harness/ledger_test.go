package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackRecordingResource(l *ResourceLedger, id string, order *[]string, err error) {
	l.Track(id, "thing", func(ctx context.Context) error {
		*order = append(*order, id)
		return err
	})
}

func TestLedgerReleasesInReverseCreationOrder(t *testing.T) {
	l := NewResourceLedger(nil)
	var order []string
	trackRecordingResource(l, "first", &order, nil)
	trackRecordingResource(l, "second", &order, nil)
	trackRecordingResource(l, "third", &order, nil)
	require.Equal(t, 3, l.Count())

	require.NoError(t, l.ReleaseAll(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestLedgerFailureDoesNotStopRemainingReleases(t *testing.T) {
	l := NewResourceLedger(nil)
	var order []string
	trackRecordingResource(l, "a", &order, nil)
	trackRecordingResource(l, "b", &order, errors.New("still referenced"))
	trackRecordingResource(l, "c", &order, nil)

	err := l.ReleaseAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, order, "every resource should see a release attempt")

	var cleanupErr *CleanupError
	require.True(t, errors.As(err, &cleanupErr))
	require.Len(t, cleanupErr.Failures, 1)
	assert.Equal(t, "b", cleanupErr.Failures[0].ID)
	assert.Contains(t, cleanupErr.Error(), "still referenced")
}

func TestLedgerAggregatesEveryFailure(t *testing.T) {
	l := NewResourceLedger(nil)
	var order []string
	for i := 0; i < 3; i++ {
		trackRecordingResource(l, fmt.Sprintf("r%d", i), &order, errors.New("nope"))
	}

	err := l.ReleaseAll(context.Background())
	var cleanupErr *CleanupError
	require.True(t, errors.As(err, &cleanupErr))
	assert.Len(t, cleanupErr.Failures, 3)
}

func TestLedgerReleasesExactlyOnce(t *testing.T) {
	l := NewResourceLedger(nil)
	var order []string
	trackRecordingResource(l, "once", &order, nil)

	require.NoError(t, l.ReleaseAll(context.Background()))
	require.NoError(t, l.ReleaseAll(context.Background()))
	assert.Equal(t, []string{"once"}, order)
}

func TestLedgerIgnoresTrackingAfterRelease(t *testing.T) {
	l := NewResourceLedger(nil)
	require.NoError(t, l.ReleaseAll(context.Background()))

	var order []string
	trackRecordingResource(l, "late", &order, nil)
	assert.Equal(t, 0, l.Count())

	require.NoError(t, l.ReleaseAll(context.Background()))
	assert.Empty(t, order, "a resource tracked after release must never run")
}
