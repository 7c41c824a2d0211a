package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDOrdering(t *testing.T) {
	first := NewID()
	second := NewID()
	assert.True(t, CompareIDs(first, second) < 0)
	assert.True(t, CompareIDs(second, first) > 0)
	assert.Zero(t, CompareIDs(first, first))
}

func TestNilID(t *testing.T) {
	assert.True(t, IsNilID(NilID))
	assert.False(t, IsNilID(NewID()))
}

func TestBaseEntityLifecycle(t *testing.T) {
	e := NewBaseEntity(NewID())
	assert.True(t, e.IsEphemeral())
	assert.True(t, e.IsMutable())
	e.MarkPersisted()
	assert.False(t, e.IsEphemeral())

	im := NewImmutableBaseEntity(NewID())
	assert.False(t, im.IsMutable())
}
