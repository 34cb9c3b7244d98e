package stream

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamerClosed is returned when attempting to stream to a closed streamer.
var ErrStreamerClosed = errors.New("streamer is closed")

// StreamCallback is called for each event published to a topic.
type StreamCallback func(topic string, event ClassificationEvent)

// LocalStreamer routes events in-process and hands each (topic, event) pair
// to the registered callbacks. It serves embedded use and the CLI, where no
// broker is available.
type LocalStreamer struct {
	router    *TopicRouter
	config    *StreamerConfig
	callbacks []StreamCallback
	mu        sync.RWMutex
	closed    bool
}

// Ensure LocalStreamer implements the Streamer interface.
var _ Streamer = (*LocalStreamer)(nil)

// NewLocalStreamer creates a new local streamer with the given configuration.
// If config is nil, DefaultStreamerConfig() is used.
func NewLocalStreamer(config *StreamerConfig) *LocalStreamer {
	if config == nil {
		config = DefaultStreamerConfig()
	}
	return &LocalStreamer{
		router:    NewTopicRouter(config.Topics, config.HighConfidenceThreshold),
		config:    config,
		callbacks: make([]StreamCallback, 0),
	}
}

// OnPublish registers a callback. Callbacks run in registration order.
func (s *LocalStreamer) OnPublish(cb StreamCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// Stream invokes every callback for each routed (topic, event) pair
func (s *LocalStreamer) Stream(ctx context.Context, events []ClassificationEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStreamerClosed
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, topic := range s.router.Route(event) {
			for _, cb := range s.callbacks {
				cb(topic, event)
			}
		}
	}

	return nil
}

// Close marks the streamer as closed. Later calls to Stream return ErrStreamerClosed.
func (s *LocalStreamer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
