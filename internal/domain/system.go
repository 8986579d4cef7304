package domain

import "database/sql"

// System is a lab machine identified by its fully-qualified domain name.
type System struct {
	ID      int64         `json:"id" db:"id"`
	FQDN    string        `json:"fqdn" db:"fqdn"`
	OwnerID sql.NullInt64 `json:"-" db:"owner_id"`
	Private bool          `json:"private" db:"private"`
}

// VisibleTo reports whether actor may look the system up. Private systems are
// only visible to their owner.
func (s *System) VisibleTo(actor *User) bool {
	if !s.Private {
		return true
	}
	return actor != nil && s.OwnerID.Valid && s.OwnerID.Int64 == actor.ID
}
