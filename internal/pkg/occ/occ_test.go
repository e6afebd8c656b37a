package occ

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(sql.ErrNoRows), ErrConflict)

	driverErr := errors.New("connection reset")
	err := classify(driverErr)
	assert.ErrorIs(t, err, driverErr)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestResolve(t *testing.T) {
	errInsufficient := errors.New("insufficient stock")

	err := Resolve(context.Background(), func(context.Context) error { return errInsufficient })
	assert.ErrorIs(t, err, errInsufficient)

	err = Resolve(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrConflict)
}
