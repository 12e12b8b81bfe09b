package events

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compleo/internal/interfaces"
	"github.com/ternarybob/compleo/internal/models"
)

// Service implements EventService with a pub/sub pattern. Each handler
// subscriber drains its own ordered queue on a dedicated goroutine, so a slow
// handler never blocks the publisher and events arrive in publish order.
// Per-job channel subscribers get bounded buffers where coalescable events
// are replaced instead of blocking the publisher.
type Service struct {
	mu          sync.RWMutex
	handlers    map[int]*handlerSubscriber
	jobSubs     map[string][]*jobSubscriber
	nextID      int
	bufferSize  int
	closed      bool
	logger      arbor.ILogger
}

// handlerSubscriber serializes deliveries to one handler.
type handlerSubscriber struct {
	handler interfaces.ProgressHandler
	queue   chan models.ProgressEvent
	done    chan struct{}
}

func (h *handlerSubscriber) run() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.queue:
			h.handler(context.Background(), event)
		}
	}
}

type jobSubscriber struct {
	ch        chan models.ProgressEvent
	mu        sync.Mutex
	pending   *models.ProgressEvent // coalesced event waiting for buffer space
	cancelled bool
}

// NewService creates the progress event bus. bufferSize bounds each per-job
// subscriber channel.
func NewService(bufferSize int, logger arbor.ILogger) *Service {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Service{
		handlers:   make(map[int]*handlerSubscriber),
		jobSubs:    make(map[string][]*jobSubscriber),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Publish delivers an event to all subscribers. Never blocks: handler queues
// drop on overflow, and full job channels coalesce.
func (s *Service) Publish(ctx context.Context, event models.ProgressEvent) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	handlers := make([]*handlerSubscriber, 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	subs := s.jobSubs[event.JobID]
	s.mu.RUnlock()

	for _, handler := range handlers {
		select {
		case handler.queue <- event:
		default:
			s.logger.Warn().
				Str("job_id", event.JobID).
				Str("type", string(event.Type)).
				Msg("Handler queue full, event dropped")
		}
	}

	terminal := event.Type == models.EventCompleted || event.Type == models.EventError
	for _, sub := range subs {
		sub.deliver(event)
		if terminal {
			s.removeJobSubscriber(event.JobID, sub)
			sub.close()
		}
	}
}

// Subscribe registers a handler for all events. Events reach the handler in
// publish order. The returned func removes it.
func (s *Service) Subscribe(handler interfaces.ProgressHandler) func() {
	sub := &handlerSubscriber{
		handler: handler,
		queue:   make(chan models.ProgressEvent, s.bufferSize*4),
		done:    make(chan struct{}),
	}
	go sub.run()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.handlers[id] = sub
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if _, ok := s.handlers[id]; ok {
			delete(s.handlers, id)
			close(sub.done)
		}
		s.mu.Unlock()
	}
}

// SubscribeJob returns a bounded channel of events for one job. The channel
// closes after the job's terminal event or when the cancel func is called.
func (s *Service) SubscribeJob(jobID string) (<-chan models.ProgressEvent, func()) {
	sub := &jobSubscriber{ch: make(chan models.ProgressEvent, s.bufferSize)}

	s.mu.Lock()
	s.jobSubs[jobID] = append(s.jobSubs[jobID], sub)
	s.mu.Unlock()

	cancel := func() {
		s.removeJobSubscriber(jobID, sub)
		sub.close()
	}
	return sub.ch, cancel
}

// Close shuts down the bus and closes all job channels.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for _, subs := range s.jobSubs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range s.handlers {
		close(sub.done)
	}
	s.jobSubs = make(map[string][]*jobSubscriber)
	s.handlers = make(map[int]*handlerSubscriber)
	s.logger.Debug().Msg("Event service closed")
	return nil
}

func (s *Service) removeJobSubscriber(jobID string, target *jobSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.jobSubs[jobID]
	for i, sub := range subs {
		if sub == target {
			s.jobSubs[jobID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(s.jobSubs[jobID]) == 0 {
		delete(s.jobSubs, jobID)
	}
}

// deliver enqueues the event, flushing any previously coalesced event first.
// When the buffer is full, coalescable events replace the held pending event;
// non-coalescable events block briefly by draining one coalescable slot.
func (j *jobSubscriber) deliver(event models.ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancelled {
		return
	}

	if j.pending != nil {
		select {
		case j.ch <- *j.pending:
			j.pending = nil
		default:
		}
	}

	select {
	case j.ch <- event:
		return
	default:
	}

	if event.Coalescable() {
		replaced := event
		replaced.Type = models.EventCoalesced
		j.pending = &replaced
		return
	}

	// Make room for a must-deliver event by dropping the oldest coalescable
	// one; if the head is not coalescable the event is dropped, which only
	// happens when a consumer stopped reading entirely.
	select {
	case head := <-j.ch:
		if !head.Coalescable() {
			select {
			case j.ch <- head:
			default:
			}
		}
	default:
	}
	select {
	case j.ch <- event:
	default:
	}
}

func (j *jobSubscriber) close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled {
		return
	}
	j.cancelled = true
	close(j.ch)
}
