package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/open-edge-platform/geti-persistence/internal/errorx"
)

func TestSessionDerivationCopies(t *testing.T) {
	base := Session{
		OrganizationID: primitive.NewObjectID(),
		WorkspaceID:    primitive.NewObjectID(),
	}

	projectID := primitive.NewObjectID()
	scoped := base.WithProject(projectID)
	assert.Equal(t, projectID, scoped.ProjectID)
	assert.True(t, base.ProjectID.IsZero(), "base session must not be mutated")
	assert.Equal(t, base.OrganizationID, scoped.OrganizationID)

	storageID := primitive.NewObjectID()
	withDS := scoped.WithDatasetStorage(storageID)
	assert.Equal(t, storageID, withDS.DatasetStorageID)
	assert.True(t, scoped.DatasetStorageID.IsZero())

	withMS := scoped.WithModelStorage(storageID)
	assert.Equal(t, storageID, withMS.ModelStorageID)
	assert.True(t, withMS.DatasetStorageID.IsZero())
}

func TestContextRoundTrip(t *testing.T) {
	s := Session{OrganizationID: primitive.NewObjectID()}
	ctx := NewContext(context.Background(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestSourcePolicies(t *testing.T) {
	def := Session{OrganizationID: primitive.NewObjectID(), WorkspaceID: primitive.NewObjectID()}
	src := NewSource(def)

	t.Run("explicit session wins", func(t *testing.T) {
		explicit := Session{OrganizationID: primitive.NewObjectID()}
		ctx := NewContext(context.Background(), explicit)
		got, err := src.Get(ctx, RequireExplicit)
		require.NoError(t, err)
		assert.Equal(t, explicit, got)
	})

	t.Run("require explicit fails without session", func(t *testing.T) {
		_, err := src.Get(context.Background(), RequireExplicit)
		assert.ErrorIs(t, err, errorx.ErrMissingSession)
	})

	t.Run("use default falls back", func(t *testing.T) {
		got, err := src.Get(context.Background(), UseDefault)
		require.NoError(t, err)
		assert.Equal(t, def, got)
	})

	t.Run("try get applies no fallback", func(t *testing.T) {
		_, ok := src.TryGet(context.Background())
		assert.False(t, ok)
	})
}
