package core

import (
	"github.com/ainautilus/trademem-go/pkg/storage"
)

// The storage package keeps its own entry and event types so that backends
// do not import core. These helpers convert between the two shapes.

// toStorageEntry converts an entry to its storage representation.
//
// The write policy is a routing concern of the facade and is not persisted;
// the TTL is stored for inspection but only the cache enforces it.
func toStorageEntry(entry *Entry) *storage.Entry {
	return &storage.Entry{
		Category:   entry.Category,
		Key:        entry.Key,
		Payload:    entry.Payload,
		Source:     entry.Source,
		CreatedAt:  entry.CreatedAt,
		TTL:        entry.TTL,
		Confidence: entry.Confidence,
	}
}

// fromStorageEntry converts a stored entry back to the core shape.
//
// Entries read from the durable store report MemoryTypePersistent; the
// original write policy is not recorded durably.
func fromStorageEntry(entry *storage.Entry) *Entry {
	return &Entry{
		Category:   entry.Category,
		Key:        entry.Key,
		Payload:    entry.Payload,
		Source:     entry.Source,
		MemoryType: MemoryTypePersistent,
		CreatedAt:  entry.CreatedAt,
		TTL:        entry.TTL,
		Confidence: entry.Confidence,
	}
}

// toStorageEvent converts an event to its storage representation.
func toStorageEvent(event *Event) *storage.Event {
	return &storage.Event{
		ID:        event.ID,
		Type:      event.Type,
		Data:      event.Data,
		Source:    event.Source,
		Target:    event.Target,
		CreatedAt: event.CreatedAt,
		Processed: event.Processed,
	}
}

// fromStorageEvent converts a stored event back to the core shape.
func fromStorageEvent(event *storage.Event) *Event {
	return &Event{
		ID:        event.ID,
		Type:      event.Type,
		Data:      event.Data,
		Source:    event.Source,
		Target:    event.Target,
		CreatedAt: event.CreatedAt,
		Processed: event.Processed,
	}
}

// fromStorageEntries converts a stored entry slice.
func fromStorageEntries(entries []*storage.Entry) []*Entry {
	result := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, fromStorageEntry(entry))
	}
	return result
}

// fromStorageEvents converts a stored event slice.
func fromStorageEvents(events []*storage.Event) []*Event {
	result := make([]*Event, 0, len(events))
	for _, event := range events {
		result = append(result, fromStorageEvent(event))
	}
	return result
}
