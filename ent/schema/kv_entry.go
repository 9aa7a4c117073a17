package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// KVEntry is one key of the shared persistent state. It is the durable
// stand-in for browser.storage.local: every execution context (background,
// tabs, popup) reads and writes the same rows, and treats any in-memory
// copy as a cache invalidated by change notifications.
type KVEntry struct {
	ent.Schema
}

func (KVEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("key").
			Unique().
			NotEmpty().
			Comment("Store key, e.g. nextFlashcardTime"),
		field.Bytes("value").
			Comment("JSON-encoded value"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now).
			Comment("Last write time"),
	}
}

func (KVEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("key"),
	}
}
