package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "identifiers_type_value_key"})

	constraint, ok := UniqueViolation(err)
	assert.True(t, ok)
	assert.Equal(t, "identifiers_type_value_key", constraint)

	_, ok = UniqueViolation(errors.New("boom"))
	assert.False(t, ok)

	_, ok = UniqueViolation(&pq.Error{Code: "23503"})
	assert.False(t, ok)
}

func TestInvalidInput(t *testing.T) {
	assert.True(t, InvalidInput(&pq.Error{Code: "22P02"}))
	assert.False(t, InvalidInput(&pq.Error{Code: "23505"}))
	assert.False(t, InvalidInput(nil))
}

func TestJSONBScan(t *testing.T) {
	var v JSONB[map[string]string]
	assert.NoError(t, v.Scan([]byte(`{"email":"a@b.com"}`)))
	assert.Equal(t, "a@b.com", v.Data["email"])

	assert.Error(t, v.Scan(42))
}
