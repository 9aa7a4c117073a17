// Code generated by ent, DO NOT EDIT.

package ent

import (
	"time"

	"github.com/blobsey/flashtoll/ent/kventry"
	"github.com/blobsey/flashtoll/ent/reviewevent"
	"github.com/blobsey/flashtoll/ent/schema"
)

// The init function reads all schema descriptors with runtime code
// (default values, validators, hooks and policies) and stitches it
// to their package variables.
func init() {
	kventryFields := schema.KVEntry{}.Fields()
	_ = kventryFields
	// kventryDescKey is the schema descriptor for key field.
	kventryDescKey := kventryFields[0].Descriptor()
	// kventry.KeyValidator is a validator for the "key" field. It is called by the builders before save.
	kventry.KeyValidator = kventryDescKey.Validators[0].(func(string) error)
	// kventryDescUpdatedAt is the schema descriptor for updated_at field.
	kventryDescUpdatedAt := kventryFields[2].Descriptor()
	// kventry.DefaultUpdatedAt holds the default value on creation for the updated_at field.
	kventry.DefaultUpdatedAt = kventryDescUpdatedAt.Default.(func() time.Time)
	// kventry.UpdateDefaultUpdatedAt holds the default value on update for the updated_at field.
	kventry.UpdateDefaultUpdatedAt = kventryDescUpdatedAt.UpdateDefault.(func() time.Time)
	revieweventMixin := schema.ReviewEvent{}.Mixin()
	revieweventMixinFields0 := revieweventMixin[0].Fields()
	_ = revieweventMixinFields0
	revieweventFields := schema.ReviewEvent{}.Fields()
	_ = revieweventFields
	// revieweventDescTimestamp is the schema descriptor for timestamp field.
	revieweventDescTimestamp := revieweventMixinFields0[1].Descriptor()
	// reviewevent.DefaultTimestamp holds the default value on creation for the timestamp field.
	reviewevent.DefaultTimestamp = revieweventDescTimestamp.Default.(func() time.Time)
	// revieweventDescCardID is the schema descriptor for card_id field.
	revieweventDescCardID := revieweventFields[0].Descriptor()
	// reviewevent.CardIDValidator is a validator for the "card_id" field. It is called by the builders before save.
	reviewevent.CardIDValidator = revieweventDescCardID.Validators[0].(func(string) error)
	// revieweventDescGrantedMs is the schema descriptor for granted_ms field.
	revieweventDescGrantedMs := revieweventFields[2].Descriptor()
	// reviewevent.DefaultGrantedMs holds the default value on creation for the granted_ms field.
	reviewevent.DefaultGrantedMs = revieweventDescGrantedMs.Default.(int64)
}
