package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/open-edge-platform/geti-persistence/binaryrepo"
	"github.com/open-edge-platform/geti-persistence/identity"
	"github.com/open-edge-platform/geti-persistence/internal/errorx"
)

// media is the blob-backed fixture: the document references a payload in
// the binary object store by filename.
type media struct {
	BaseEntity
	Filename string
	isNull   bool
}

func (m *media) BlobFilename() string { return m.Filename }

type mediaSerializer struct{}

func (mediaSerializer) Forward(m *media) (bson.M, error) {
	return bson.M{"filename": m.Filename}, nil
}

func (mediaSerializer) Backward(doc bson.M, _ struct{}) (*media, error) {
	m := &media{Filename: doc["filename"].(string)}
	m.SetID(doc["_id"].(primitive.ObjectID))
	m.MarkPersisted()
	return m, nil
}

func (mediaSerializer) Null() *media {
	return &media{isNull: true}
}

func mediaDoc(id ID, session identity.Session, filename string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "organization_id", Value: session.OrganizationID},
		{Key: "workspace_id", Value: session.WorkspaceID},
		{Key: "filename", Value: filename},
	}
}

func newMediaRepo(t *testing.T, mt *mtest.T, session identity.Session) (*BlobBackedRepository[*media, struct{}], binaryrepo.Store) {
	t.Helper()
	blobs := binaryrepo.NewFSStore(t.TempDir(), binaryrepo.Owner{Session: session})
	mt.AddMockResponses(mtest.CreateSuccessResponse())
	base := New[*media, struct{}](
		mt.DB, "media", session, WorkspaceScope(), mediaSerializer{}, nil)
	return NewBlobBacked(base, blobs), blobs
}

func TestBlobBackedDeleteByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("removes the document and then the blob", func(mt *mtest.T) {
		resetIndexProvisioning()
		session := testSession()
		repo, blobs := newMediaRepo(t, mt, session)
		ctx := context.Background()

		_, err := blobs.Save(ctx, "frame.png", binaryrepo.FromBytes([]byte("pixels")))
		require.NoError(mt, err)

		id := NewID()
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.media", mtest.FirstBatch,
				mediaDoc(id, session, "frame.png")),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		deleted, err := repo.DeleteByID(ctx, id)
		require.NoError(mt, err)
		assert.True(mt, deleted)

		exists, err := blobs.Exists(ctx, "frame.png")
		require.NoError(mt, err)
		assert.False(mt, exists)
	})

	mt.Run("missing document leaves blobs untouched", func(mt *mtest.T) {
		resetIndexProvisioning()
		session := testSession()
		repo, blobs := newMediaRepo(t, mt, session)
		ctx := context.Background()

		_, err := blobs.Save(ctx, "frame.png", binaryrepo.FromBytes([]byte("pixels")))
		require.NoError(mt, err)

		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, "test.media", mtest.FirstBatch),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}),
		)

		deleted, err := repo.DeleteByID(ctx, NewID())
		require.NoError(mt, err)
		assert.False(mt, deleted)

		exists, err := blobs.Exists(ctx, "frame.png")
		require.NoError(mt, err)
		assert.True(mt, exists)
	})
}

func TestBlobBackedDeleteAll(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("filtered bulk delete is not supported", func(mt *mtest.T) {
		resetIndexProvisioning()
		repo, _ := newMediaRepo(t, mt, testSession())

		_, err := repo.DeleteAll(context.Background(),
			WithFilter(bson.M{"filename": "frame.png"}))
		assert.ErrorIs(mt, err, errorx.ErrNotImplemented)
	})

	mt.Run("unfiltered delete clears documents and blobs", func(mt *mtest.T) {
		resetIndexProvisioning()
		session := testSession()
		repo, blobs := newMediaRepo(t, mt, session)
		ctx := context.Background()

		_, err := blobs.Save(ctx, "frame.png", binaryrepo.FromBytes([]byte("pixels")))
		require.NoError(mt, err)

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 2}))

		deleted, err := repo.DeleteAll(ctx)
		require.NoError(mt, err)
		assert.True(mt, deleted)

		size, err := blobs.StorageSize(ctx)
		require.NoError(mt, err)
		assert.Zero(mt, size)
	})
}
