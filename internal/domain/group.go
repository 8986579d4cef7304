package domain

import "time"

// Group is a named collection of users and systems used for access and
// assignment grouping.
type Group struct {
	ID          int64     `json:"group_id" db:"group_id"`
	GroupName   string    `json:"group_name" db:"group_name"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Created     time.Time `json:"created" db:"created"`
}

// GroupForm is the submitted create/edit form. ID is zero for a new group.
type GroupForm struct {
	ID          int64  `form:"group_id"`
	DisplayName string `form:"display_name" validate:"required,max=256"`
	GroupName   string `form:"group_name" validate:"required,max=256"`
}

// IsNew reports whether the form creates a group rather than editing one.
func (f GroupForm) IsNew() bool {
	return f.ID == 0
}

// GroupOrder is a whitelisted sort key for group listings.
type GroupOrder string

const (
	OrderGroupName       GroupOrder = "group_name"
	OrderGroupNameDesc   GroupOrder = "-group_name"
	OrderDisplayName     GroupOrder = "display_name"
	OrderDisplayNameDesc GroupOrder = "-display_name"
)

// ParseGroupOrder returns the order for s, falling back to group_name.
func ParseGroupOrder(s string) GroupOrder {
	switch o := GroupOrder(s); o {
	case OrderGroupName, OrderGroupNameDesc, OrderDisplayName, OrderDisplayNameDesc:
		return o
	}
	return OrderGroupName
}

// Column returns the column name and whether the order is descending.
func (o GroupOrder) Column() (string, bool) {
	if len(o) > 0 && o[0] == '-' {
		return string(o[1:]), true
	}
	return string(o), false
}

// ListOptions controls pagination of group listings. Page is 1-based.
type ListOptions struct {
	Page    int
	PerPage int
	Order   GroupOrder
}

// Offset returns the number of rows to skip.
func (o ListOptions) Offset() int {
	if o.Page < 1 {
		return 0
	}
	return (o.Page - 1) * o.PerPage
}

// GroupPage is one page of a group listing.
type GroupPage struct {
	Groups  []*Group
	Total   int
	Page    int
	PerPage int
	Order   GroupOrder
}

// Pages returns the number of pages needed to show Total groups.
func (p *GroupPage) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// HasPrev reports whether a previous page exists.
func (p *GroupPage) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p *GroupPage) HasNext() bool { return p.Page < p.Pages() }
