package usage_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shareport/shareport/pkg/shareport/usage"
)

func TestRecordDownload(t *testing.T) {
	tracker := usage.New()

	tracker.RecordDownload(1000)
	tracker.RecordDownload(500)

	stats := tracker.Current()
	assert.Equal(t, int64(2), stats.Downloads)
	assert.Equal(t, int64(1500), stats.BytesServed)
}

func TestMonthRollover(t *testing.T) {
	now := time.Date(2026, time.March, 31, 23, 0, 0, 0, time.UTC)
	tracker := usage.NewWithClock(func() time.Time { return now })

	tracker.RecordDownload(100)
	tracker.RecordDownload(100)

	// Clock crosses into April; the counters start fresh
	now = time.Date(2026, time.April, 1, 1, 0, 0, 0, time.UTC)
	tracker.RecordDownload(50)

	current := tracker.Current()
	assert.Equal(t, int64(1), current.Downloads)
	assert.Equal(t, int64(50), current.BytesServed)

	// March stays queryable
	march := tracker.For(usage.Month{Year: 2026, Month: time.March})
	assert.Equal(t, int64(2), march.Downloads)
	assert.Equal(t, int64(200), march.BytesServed)
}

func TestForUnknownMonth(t *testing.T) {
	tracker := usage.New()
	stats := tracker.For(usage.Month{Year: 1999, Month: time.January})
	assert.Zero(t, stats.Downloads)
	assert.Zero(t, stats.BytesServed)
}

func TestConcurrentRecording(t *testing.T) {
	tracker := usage.New()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.RecordDownload(10)
		}()
	}
	wg.Wait()

	stats := tracker.Current()
	assert.Equal(t, int64(workers), stats.Downloads)
	assert.Equal(t, int64(workers*10), stats.BytesServed)
}
