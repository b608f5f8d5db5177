package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"github.com/google/uuid"
	"github.com/kairohq/backend/pkg/gen"
)

type Meeting struct {
	ent.Schema
}

func (Meeting) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default((func() uuid.UUID)(gen.UUID())),
		field.String("external_event_id").Unique().Optional().Nillable(),
		field.String("title"),
		field.String("meeting_url"),
		field.String("platform"),
		field.Time("scheduled_start"),
		field.Time("scheduled_end").Optional().Nillable(),
		field.Enum("status").
			Values("SCHEDULED", "JOINING", "IN_PROGRESS", "PROCESSING",
				"COMPLETED", "FAILED", "CANCELLED").
			Default("SCHEDULED"),
		field.Bool("bot_excluded").Default(false),
		field.String("bot_id").Optional().Nillable(),
		field.String("bot_error").Optional().Nillable(),
		field.Time("created_at").Default(time.Now),
		field.Time("updated_at").Default(time.Now),
	}
}
