package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/cautela-backend/pkg/db/dbtest"
)

func TestBaseDBBindsContext(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), struct{}{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	assert.Same(t, db, base.DB(nil))
}

func TestBaseBindFollowsTransaction(t *testing.T) {
	db := dbtest.Open(t)
	base := NewBase(db)
	assert.False(t, base.InTx())
	assert.Equal(t, base, base.Bind(nil))

	err := db.Transaction(func(tx *gorm.DB) error {
		bound := base.Bind(tx)
		assert.True(t, bound.InTx())
		assert.Same(t, tx, bound.DB(nil))
		return nil
	})
	require.NoError(t, err)
}
