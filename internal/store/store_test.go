package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidID(t *testing.T) {
	assert.True(t, validID("6f1f66a2-7a85-4a44-9c6c-7a2f22f1a111"))
	assert.False(t, validID(""))
	assert.False(t, validID("not-a-uuid"))
	assert.False(t, validID("out-1"))
}

func TestNullable(t *testing.T) {
	assert.Nil(t, nullable(""))
	assert.Nil(t, nullable("   "))
	assert.Equal(t, "x", nullable("x"))
}
