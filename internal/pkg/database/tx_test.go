package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: CodeUniqueViolation, Constraint: "ux_mission_submissions_pending"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "ux_mission_submissions_pending"))
	assert.False(t, IsUniqueViolation(err, "benefit_redemptions_qr_code_key"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
}

func TestIsCheckViolation(t *testing.T) {
	assert.True(t, IsCheckViolation(&pq.Error{Code: CodeCheckViolation}))
	assert.False(t, IsCheckViolation(&pq.Error{Code: CodeUniqueViolation}))
}
