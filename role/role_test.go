package role

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	r, err := Parse(" Admin ")
	require.NoError(t, err)
	assert.Equal(t, Admin, r)

	_, err = Parse("superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestValid(t *testing.T) {
	for _, r := range []Role{Student, Coordinator, CoCoordinator, Secretary,
		Media, President, VicePresident, InnovationHead, Treasurer,
		Outreach, CommitteeMember, Admin} {
		assert.True(t, r.Valid(), "role %s", r)
	}
	assert.False(t, Role("ghost").Valid())
}

func TestManagementSet(t *testing.T) {
	for _, r := range []Role{Coordinator, CoCoordinator, Secretary, Media,
		President, VicePresident, InnovationHead, Treasurer, Outreach} {
		assert.True(t, r.IsManagement(), "role %s", r)
	}
	assert.False(t, Student.IsManagement())
	assert.False(t, Admin.IsManagement(), "admin is administrative, not management")
	assert.False(t, CommitteeMember.IsManagement())
}

func TestAdministrativeSet(t *testing.T) {
	assert.True(t, Admin.IsAdministrative())
	assert.True(t, Coordinator.IsAdministrative())
	assert.True(t, CommitteeMember.IsAdministrative())
	assert.False(t, Student.IsAdministrative())
	assert.False(t, Media.IsAdministrative())
}

func TestCanStudentMatrix(t *testing.T) {
	assert.True(t, Can(Student, Read, "posts"))
	assert.True(t, Can(Student, Write, "posts"))

	// Curated surfaces are write-protected from ordinary members.
	assert.False(t, Can(Student, Write, "announcements"))
	assert.False(t, Can(Student, Write, "events"))

	assert.False(t, Can(Student, Delete, "posts"))
	assert.False(t, Can(Student, Manage, "clubs"))
}

func TestCanPrivilegedRoles(t *testing.T) {
	for _, r := range []Role{Admin, CommitteeMember, Coordinator, Media, President} {
		assert.True(t, Can(r, Manage, "clubs"), "role %s", r)
		assert.True(t, Can(r, Delete, "posts"), "role %s", r)
	}
}

func TestCanRejectsUnknownRole(t *testing.T) {
	assert.False(t, Can(Role("ghost"), Read, ""))
	assert.False(t, Can(Role(""), Read, "posts"))
}
