package pipeline

import (
	"context"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pwkasay/gridcarbon/pkg/gcerrors"
)

func testLogger() log.Logger { return log.NewLogfmtLogger(io.Discard) }

type testItem struct {
	ID    int
	Valid bool
}

// Scenario 3 — validation routing: 5 items (valid, invalid, valid, invalid,
// valid), 2 dead letters, 3 stored, one logged event per failure.
func TestPipeline_Scenario3_ValidationRouting(t *testing.T) {
	items := []testItem{
		{ID: 1, Valid: true},
		{ID: 2, Valid: false},
		{ID: 3, Valid: true},
		{ID: 4, Valid: false},
		{ID: 5, Valid: true},
	}

	var (
		storedMu sync.Mutex
		stored   []testItem

		eventsMu sync.Mutex
		events   []string
	)

	p := New[testItem]("ingest-test", testLogger(), DefaultSeedConfig()).
		WithSource(func(_ context.Context, out chan<- testItem) error {
			for _, it := range items {
				out <- it
			}

			return nil
		}).
		Then(StageDef[testItem]{
			Name: "validate",
			Fn: func(_ context.Context, it testItem) (testItem, error) {
				if !it.Valid {
					return it, &gcerrors.ValidationError{Reason: "zero/negative generation"}
				}

				return it, nil
			},
		}).
		Then(StageDef[testItem]{
			Name: "persist",
			Fn: func(_ context.Context, it testItem) (testItem, error) {
				storedMu.Lock()
				stored = append(stored, it)
				storedMu.Unlock()

				return it, nil
			},
		}).
		OnError(func(err error) bool {
			_, ok := err.(*gcerrors.ValidationError)
			return ok
		}, func(_ context.Context, failed FailedItem[testItem]) {
			eventsMu.Lock()
			events = append(events, "validate_failure")
			eventsMu.Unlock()
		})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.EqualValues(t, 2, result.DeadLetterCount)
	assert.Len(t, stored, 3)
	assert.Len(t, events, 2)

	re := regexp.MustCompile(`(?i)zero/negative`)

	for _, raw := range result.DeadLetterItems {
		failed, ok := raw.(FailedItem[testItem])
		require.True(t, ok)
		assert.True(t, re.MatchString(failed.Err.Error()))
	}
}

// Scenario 6 — backpressure under a slow writer, with 200 items: channel
// capacity 16, queue_utilization > 0.8 at steady state, items_in ==
// items_out at termination, completed=true. Throughput is not asserted.
func TestPipeline_Scenario6_BackpressureUnderSlowWriter(t *testing.T) {
	if testing.Short() {
		t.Skip("slow writer simulation takes real wall-clock time")
	}

	const n = 200

	var snapshots []StageSnapshot

	var mu sync.Mutex

	p := New[testItem]("backpressure-test", testLogger(), Config{
		ChannelCapacity: 16,
		DrainTimeout:    30 * time.Second,
		MetricsInterval: 50 * time.Millisecond,
	}).
		WithSource(func(_ context.Context, out chan<- testItem) error {
			for i := 0; i < n; i++ {
				out <- testItem{ID: i, Valid: true}
			}

			return nil
		}).
		Then(StageDef[testItem]{
			Name: "validate",
			Fn: func(_ context.Context, it testItem) (testItem, error) {
				return it, nil
			},
		}).
		Then(StageDef[testItem]{
			Name: "persist",
			Fn: func(_ context.Context, it testItem) (testItem, error) {
				time.Sleep(10 * time.Millisecond)
				return it, nil
			},
		}).
		WithMetrics(50*time.Millisecond, func(snaps []StageSnapshot) {
			mu.Lock()
			snapshots = append(snapshots, snaps...)
			mu.Unlock()
		})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Completed)

	var validateIn, persistOut int64

	for _, s := range result.StageMetrics {
		switch s.Stage {
		case "validate":
			validateIn = s.ItemsIn
		case "persist":
			persistOut = s.ItemsOut
		}
	}

	assert.EqualValues(t, n, validateIn)
	assert.EqualValues(t, n, persistOut)

	mu.Lock()
	defer mu.Unlock()

	var sawHighUtilization bool

	for _, snap := range snapshots {
		// persist's input channel is the validate->persist link the
		// scenario describes; persist is the slow consumer so that
		// channel is the one that backs up.
		if snap.Stage == "persist" && snap.QueueUtilization > 0.8 {
			sawHighUtilization = true
		}
	}

	assert.True(t, sawHighUtilization, "expected validate->persist channel to run near-full under the slow writer")
}

// Invariant 8 — pipeline accounting identity: items_out + items_errored +
// items_in_flight == items_in, and dead-letter count equals the number of
// items whose final disposition was a registered error kind.
func TestPipeline_Invariant_Accounting(t *testing.T) {
	items := []testItem{
		{ID: 1, Valid: true},
		{ID: 2, Valid: false},
		{ID: 3, Valid: true},
		{ID: 4, Valid: false},
	}

	p := New[testItem]("accounting-test", testLogger(), DefaultSeedConfig()).
		WithSource(func(_ context.Context, out chan<- testItem) error {
			for _, it := range items {
				out <- it
			}

			return nil
		}).
		Then(StageDef[testItem]{
			Name: "validate",
			Fn: func(_ context.Context, it testItem) (testItem, error) {
				if !it.Valid {
					return it, &gcerrors.ValidationError{Reason: "zero/negative generation"}
				}

				return it, nil
			},
		}).
		OnError(func(err error) bool {
			_, ok := err.(*gcerrors.ValidationError)
			return ok
		}, nil)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.Len(t, result.StageMetrics, 1)

	validate := result.StageMetrics[0]

	// No retries and the run has fully drained, so in-flight is always 0
	// once Run returns.
	const itemsInFlight = 0
	assert.Equal(t, validate.ItemsIn, validate.ItemsOut+validate.ItemsErrored+itemsInFlight)
	assert.EqualValues(t, 2, result.DeadLetterCount)
	assert.EqualValues(t, validate.ItemsErrored, result.DeadLetterCount)
}
