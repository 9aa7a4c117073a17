package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ReviewEvent records one completed card review: which card, the grade
// given, and how much browsing time the review earned. The authoritative
// review history lives in the remote API; this local log only powers the
// status command and is never consulted for scheduling.
type ReviewEvent struct {
	ent.Schema
}

func (ReviewEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{EventMixin{}}
}

func (ReviewEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("card_id").
			NotEmpty().
			Comment("Remote card identifier"),
		field.Int("grade").
			Comment("Numeric grade 1-4 (Again..Easy)"),
		field.Int64("granted_ms").
			Default(0).
			Comment("Milliseconds of browsing time granted by this review"),
		field.String("session_id").
			Comment("UUID of the review session this belongs to"),
	}
}

func (ReviewEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("card_id"),
		index.Fields("session_id"),
	}
}
