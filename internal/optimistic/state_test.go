package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueFollowsLifecycle(t *testing.T) {
	f := NewField("saved")
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, "saved", f.Value())

	f.Begin("draft")
	assert.Equal(t, Pending, f.State())
	assert.Equal(t, "draft", f.Value())

	f.Commit()
	assert.Equal(t, Committed, f.State())
	assert.Equal(t, "draft", f.Value())
}

func TestRollbackRestoresConfirmedValue(t *testing.T) {
	f := NewField("saved")
	f.Begin("draft")
	f.Rollback()

	assert.Equal(t, RolledBack, f.State())
	assert.Equal(t, "saved", f.Value())
}

func TestCommitWithoutPendingIsNoOp(t *testing.T) {
	f := NewField("saved")
	f.Commit()
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, "saved", f.Value())

	f.Begin("draft")
	f.Rollback()
	f.Commit()
	assert.Equal(t, RolledBack, f.State())
	assert.Equal(t, "saved", f.Value())
}

func TestRollbackWithoutPendingIsNoOp(t *testing.T) {
	f := NewField("saved")
	f.Rollback()
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, "saved", f.Value())
}

func TestBeginWhilePendingReplacesStagedValue(t *testing.T) {
	f := NewField("saved")
	f.Begin("first")
	f.Begin("second")
	assert.Equal(t, "second", f.Value())

	f.Rollback()
	assert.Equal(t, "saved", f.Value())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "committed", Committed.String())
	assert.Equal(t, "rolled-back", RolledBack.String())
	assert.Equal(t, "unknown", State(99).String())
}
