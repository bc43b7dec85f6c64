// Package events provides a typed publish/subscribe bus for upload session events.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/alchemab/aab/internal/constants"
)

// EventType identifies the kind of event
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventPart        EventType = "part"
	EventProgress    EventType = "progress"
	EventError       EventType = "error"
	EventComplete    EventType = "complete"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// StateChangeEvent is published on every session state transition.
type StateChangeEvent struct {
	BaseEvent
	File     string
	UploadID string
	From     string
	To       string
}

// PartEvent is published after a part has been stored.
type PartEvent struct {
	BaseEvent
	File       string
	UploadID   string
	PartNumber int32
	Bytes      int64
	ETag       string
}

// ProgressEvent reports upload progress for one file.
type ProgressEvent struct {
	BaseEvent
	File          string
	Percentage    float64 // 0 to 100
	BytesUploaded int64
	BytesTotal    int64
}

// ErrorEvent reports the failure that ended a session.
type ErrorEvent struct {
	BaseEvent
	File       string
	UploadID   string
	PartNumber int32 // 0 when the failure is not tied to a part
	Error      error
}

// CompleteEvent reports a committed upload.
type CompleteEvent struct {
	BaseEvent
	File       string
	HashedName string
	Location   string
	Bytes      int64
	Parts      int
	Duration   time.Duration
}

// EventBus manages event distribution
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a channel for a specific event type.
// Subscribing to a closed bus returns a closed channel.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a channel for all events
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking.
// Events are dropped for subscribers whose buffer is full. A nil bus discards everything.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// DroppedEvents returns the number of events dropped due to full buffers.
func (eb *EventBus) DroppedEvents() int64 {
	return eb.droppedEvents.Load()
}

// Close closes all subscriber channels. Safe to call more than once.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishStateChange is a helper for state transitions
func (eb *EventBus) PublishStateChange(file, uploadID, from, to string) {
	eb.Publish(&StateChangeEvent{
		BaseEvent: base(EventStateChange),
		File:      file,
		UploadID:  uploadID,
		From:      from,
		To:        to,
	})
}

// PublishPart is a helper for stored parts
func (eb *EventBus) PublishPart(file, uploadID string, partNumber int32, bytes int64, etag string) {
	eb.Publish(&PartEvent{
		BaseEvent:  base(EventPart),
		File:       file,
		UploadID:   uploadID,
		PartNumber: partNumber,
		Bytes:      bytes,
		ETag:       etag,
	})
}

// PublishProgress is a helper for progress updates
func (eb *EventBus) PublishProgress(file string, percentage float64, uploaded, total int64) {
	eb.Publish(&ProgressEvent{
		BaseEvent:     base(EventProgress),
		File:          file,
		Percentage:    percentage,
		BytesUploaded: uploaded,
		BytesTotal:    total,
	})
}

// PublishError is a helper for failures
func (eb *EventBus) PublishError(file, uploadID string, partNumber int32, err error) {
	eb.Publish(&ErrorEvent{
		BaseEvent:  base(EventError),
		File:       file,
		UploadID:   uploadID,
		PartNumber: partNumber,
		Error:      err,
	})
}

// PublishComplete is a helper for committed uploads
func (eb *EventBus) PublishComplete(file, hashedName, location string, bytes int64, parts int, d time.Duration) {
	eb.Publish(&CompleteEvent{
		BaseEvent:  base(EventComplete),
		File:       file,
		HashedName: hashedName,
		Location:   location,
		Bytes:      bytes,
		Parts:      parts,
		Duration:   d,
	})
}
