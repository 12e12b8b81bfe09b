package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/models"
)

func event(jobID string, eventType models.ProgressEventType, progress int) models.ProgressEvent {
	return models.ProgressEvent{
		Type:      eventType,
		JobID:     jobID,
		Progress:  progress,
		Timestamp: time.Now(),
	}
}

func TestSubscribeJob_ReceivesEventsInOrder(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	svc.Publish(context.Background(), event("job_1", models.EventStarted, 0))
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 30))
	svc.Publish(context.Background(), event("job_1", models.EventFieldFilled, 45))

	assert.Equal(t, models.EventStarted, (<-ch).Type)
	assert.Equal(t, models.EventProgress, (<-ch).Type)
	assert.Equal(t, models.EventFieldFilled, (<-ch).Type)
}

func TestSubscribeJob_IgnoresOtherJobs(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	svc.Publish(context.Background(), event("job_2", models.EventStarted, 0))

	select {
	case e := <-ch:
		t.Fatalf("unexpected event for other job: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeJob_ClosesAfterTerminalEvent(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	svc.Publish(context.Background(), event("job_1", models.EventCompleted, 100))

	e, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, models.EventCompleted, e.Type)

	_, ok = <-ch
	assert.False(t, ok, "channel should close after terminal event")
}

func TestSubscribeJob_FullBufferCoalescesProgress(t *testing.T) {
	svc := NewService(2, arbor.GetLogger())
	defer svc.Close()

	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	// Fill the buffer, then publish more progress without a reader
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 10))
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 20))
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 30))
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 40))

	first := <-ch
	second := <-ch
	assert.Equal(t, 10, first.Progress)
	assert.Equal(t, 20, second.Progress)

	// The coalesced slot holds only the latest overflow event
	svc.Publish(context.Background(), event("job_1", models.EventProgress, 50))
	third := <-ch
	assert.Equal(t, models.EventCoalesced, third.Type)
	assert.Equal(t, 40, third.Progress)
	fourth := <-ch
	assert.Equal(t, 50, fourth.Progress)
}

func TestSubscribeJob_FieldFilledNeverCoalesced(t *testing.T) {
	svc := NewService(1, arbor.GetLogger())
	defer svc.Close()

	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	svc.Publish(context.Background(), event("job_1", models.EventProgress, 10))
	svc.Publish(context.Background(), event("job_1", models.EventFieldFilled, 20))

	// The progress event is evicted to make room for the field fill
	e := <-ch
	assert.Equal(t, models.EventFieldFilled, e.Type)
}

func TestSubscribe_HandlerReceivesAllJobs(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	unsub := svc.Subscribe(func(_ context.Context, e models.ProgressEvent) {
		mu.Lock()
		seen = append(seen, e.JobID)
		mu.Unlock()
		done <- struct{}{}
	})
	defer unsub()

	svc.Publish(context.Background(), event("job_1", models.EventStarted, 0))
	svc.Publish(context.Background(), event("job_2", models.EventStarted, 0))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler never invoked")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"job_1", "job_2"}, seen)
}

func TestSubscribe_HandlerSeesPublishOrder(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	const n = 20
	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	unsub := svc.Subscribe(func(_ context.Context, e models.ProgressEvent) {
		mu.Lock()
		got = append(got, e.Progress)
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	for i := 0; i < n; i++ {
		svc.Publish(context.Background(), event("job_1", models.EventProgress, i))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never drained the queue")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < n; i++ {
		assert.Equal(t, i, got[i], "events must arrive in publish order")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	defer svc.Close()

	called := make(chan struct{}, 1)
	unsub := svc.Subscribe(func(_ context.Context, _ models.ProgressEvent) {
		called <- struct{}{}
	})
	unsub()

	svc.Publish(context.Background(), event("job_1", models.EventStarted, 0))

	select {
	case <-called:
		t.Fatal("handler invoked after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	svc := NewService(8, arbor.GetLogger())
	ch, cancel := svc.SubscribeJob("job_1")
	defer cancel()

	require.NoError(t, svc.Close())
	svc.Publish(context.Background(), event("job_1", models.EventStarted, 0))

	_, ok := <-ch
	assert.False(t, ok)
}
