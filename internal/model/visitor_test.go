package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want VisitorStatus
		ok   bool
	}{
		{"APPROVED", StatusApproved, true},
		{" checked_in ", StatusCheckedIn, true},
		{"ALL", "", false},
		{"arrived", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusDenied.Terminal())
	assert.True(t, StatusCheckedOut.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.False(t, StatusCheckedIn.Terminal())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleResident.Valid())
	assert.True(t, RoleGuard.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("OWNER").Valid())
}
