package domain

import (
	"database/sql"
	"time"
)

// ServiceWebUI identifies changes made through the web interface.
const ServiceWebUI = "WEBUI"

// Activity actions.
const (
	ActionAdded   = "Added"
	ActionRemoved = "Removed"
)

// ActivityType tells which log an activity record belongs to.
type ActivityType string

const (
	ActivityPlain  ActivityType = "activity"
	ActivityGroup  ActivityType = "group_activity"
	ActivitySystem ActivityType = "system_activity"
)

// Activity is an immutable audit record. Group activity carries GroupID,
// system activity carries SystemID, plain activity carries neither.
type Activity struct {
	ID        int64         `json:"id" db:"id"`
	Type      ActivityType  `json:"type" db:"type"`
	UserID    int64         `json:"user_id" db:"user_id"`
	Service   string        `json:"service" db:"service"`
	Action    string        `json:"action" db:"action"`
	FieldName string        `json:"field_name" db:"field_name"`
	OldValue  string        `json:"old_value" db:"old_value"`
	NewValue  string        `json:"new_value" db:"new_value"`
	GroupID   sql.NullInt64 `json:"-" db:"group_id"`
	SystemID  sql.NullInt64 `json:"-" db:"system_id"`
	Created   time.Time     `json:"created" db:"created"`
}

func newActivity(t ActivityType, actor *User, action, field, oldValue, newValue string) *Activity {
	return &Activity{
		Type:      t,
		UserID:    actor.ID,
		Service:   ServiceWebUI,
		Action:    action,
		FieldName: field,
		OldValue:  oldValue,
		NewValue:  newValue,
		Created:   time.Now().UTC(),
	}
}

// NewActivity records a change not tied to a group or system log.
func NewActivity(actor *User, action, field, oldValue, newValue string) *Activity {
	return newActivity(ActivityPlain, actor, action, field, oldValue, newValue)
}

// NewGroupActivity records a change in a group's log.
func NewGroupActivity(actor *User, groupID int64, action, field, oldValue, newValue string) *Activity {
	a := newActivity(ActivityGroup, actor, action, field, oldValue, newValue)
	a.GroupID = sql.NullInt64{Int64: groupID, Valid: true}
	return a
}

// NewSystemActivity records a change in a system's log.
func NewSystemActivity(actor *User, systemID int64, action, field, oldValue, newValue string) *Activity {
	a := newActivity(ActivitySystem, actor, action, field, oldValue, newValue)
	a.SystemID = sql.NullInt64{Int64: systemID, Valid: true}
	return a
}
