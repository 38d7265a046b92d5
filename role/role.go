// Package role defines the closed set of platform roles and the single
// permission-resolution function consulted by all callers.
package role

import (
	"errors"
	"strings"
)

// Role is a closed enumeration of platform roles. Unknown strings do not
// parse; callers never compare raw role names.
type Role string

const (
	Student         Role = "student"
	Coordinator     Role = "coordinator"
	CoCoordinator   Role = "co_coordinator"
	Secretary       Role = "secretary"
	Media           Role = "media"
	President       Role = "president"
	VicePresident   Role = "vice_president"
	InnovationHead  Role = "innovation_head"
	Treasurer       Role = "treasurer"
	Outreach        Role = "outreach"
	CommitteeMember Role = "committee_member"
	Admin           Role = "admin"
)

// ErrUnknownRole is returned by Parse for strings outside the enumeration.
var ErrUnknownRole = errors.New("unknown role")

var all = map[Role]struct{}{
	Student: {}, Coordinator: {}, CoCoordinator: {}, Secretary: {},
	Media: {}, President: {}, VicePresident: {}, InnovationHead: {},
	Treasurer: {}, Outreach: {}, CommitteeMember: {}, Admin: {},
}

var management = map[Role]struct{}{
	Coordinator: {}, CoCoordinator: {}, Secretary: {}, Media: {},
	President: {}, VicePresident: {}, InnovationHead: {}, Treasurer: {},
	Outreach: {},
}

// Parse validates a stored role string against the enumeration.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := all[r]; !ok {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Valid reports whether r belongs to the enumeration.
func (r Role) Valid() bool {
	_, ok := all[r]
	return ok
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }

// IsManagement reports whether r belongs to the club-management set.
func (r Role) IsManagement() bool {
	_, ok := management[r]
	return ok
}

// IsAdministrative reports whether r may access admin surfaces.
func (r Role) IsAdministrative() bool {
	return r == Admin || r == Coordinator || r == CommitteeMember
}

// Permission is an action class checked against a role.
type Permission string

const (
	Read   Permission = "read"
	Write  Permission = "write"
	Delete Permission = "delete"
	Manage Permission = "manage"
)

// Can is the single permission resolver. resource may be empty for
// resource-independent checks.
func Can(r Role, p Permission, resource string) bool {
	if !r.Valid() {
		return false
	}
	if r == Admin || r == CommitteeMember || r.IsManagement() {
		return true
	}
	// Students get read everywhere and write outside curated surfaces.
	switch p {
	case Read:
		return true
	case Write:
		return resource != "announcements" && resource != "events"
	default:
		return false
	}
}
