/*
Package event provides a type-safe pub/sub event system for deskpilot.

The orchestrator forwards its UI events (tool start/complete, widget renders,
stream deltas, screenshots, model usage) and its session lifecycle events
through a Bus. The HTTP server streams them to the UI over SSE and the
metrics package counts them.

# Event Types

Session lifecycle:
  - session.created: a backend session was created for a session key
  - session.removed: a session left the map (error, send failure, model change, compaction, cleanup)
  - session.compacted: a session was replaced by a summary-primed one
  - model.changed: the configured model changed and all sessions were dropped

UI:
  - tool.start / tool.complete
  - widget.render
  - stream.delta
  - screenshot.captured
  - model.usage

Process:
  - config.updated
  - attachment.set

# Basic Usage

	event.PublishSync(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{SessionKey: 1, SessionID: id, Model: model},
	})

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		logging.Debug().Str("type", string(e.Type)).Msg("event")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

PublishSync calls subscribers in the publisher's goroutine. Subscribers MUST
complete quickly, use non-blocking channel sends and never publish
re-entrantly.

# Watermill

Every event is also published as JSON on Topic through watermill's
gochannel. Bus.Messages subscribes to that stream; messages must be acked.
Ordering across messages is not guaranteed on this path, so consumers that
need emission order use Subscribe or SubscribeAll with PublishSync.
*/
package event
