package dispatcher

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"roadsense-edge/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []pipeline.DetectionRecord
	fail      bool
	block     chan struct{}
}

func (f *fakeDeliverer) PostDetection(record pipeline.DetectionRecord) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("backend down")
	}
	f.delivered = append(f.delivered, record)
	return nil
}

func (f *fakeDeliverer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func record(name string) pipeline.DetectionRecord {
	return pipeline.DetectionRecord{DeviceID: "EDGE-T", Type: name}
}

func TestEnqueueOnFullQueueDropsWithoutBlocking(t *testing.T) {
	q := NewQueue(3, &fakeDeliverer{}, discardLogger())
	// sin worker: la cola se llena y el resto se descarta

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			q.Enqueue(record("Severe Pothole"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	assert.Equal(t, 3, q.Len())
}

func TestWorkerDeliversEachEntryOnce(t *testing.T) {
	del := &fakeDeliverer{}
	q := NewQueue(10, del, discardLogger())
	q.Start()
	defer q.Stop()

	for i := 0; i < 5; i++ {
		q.Enqueue(record(fmt.Sprintf("det-%d", i)))
	}

	assert.Eventually(t, func() bool { return del.count() == 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, q.Len())
}

func TestDeliveryFailureDiscardsEntry(t *testing.T) {
	del := &fakeDeliverer{fail: true}
	q := NewQueue(10, del, discardLogger())
	q.Start()
	defer q.Stop()

	q.Enqueue(record("Asphalt Crack"))

	assert.Eventually(t, func() bool { return q.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, del.count())
}

func TestQueueNeverExceedsCapacityUnderConcurrency(t *testing.T) {
	block := make(chan struct{})
	del := &fakeDeliverer{block: block}
	q := NewQueue(5, del, discardLogger())
	q.Start()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(record("Minor Pothole"))
				assert.LessOrEqual(t, q.Len(), 5)
			}
		}()
	}
	wg.Wait()

	close(block)
	q.Stop()
}

func TestStopIsCooperative(t *testing.T) {
	q := NewQueue(1, &fakeDeliverer{}, discardLogger())
	q.Start()

	done := make(chan struct{})
	go func() {
		q.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	// Stop repetido es no-op
	q.Stop()
}
