package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"

	"github.com/igreja/tesouraria/internal/repository"
)

func TestByIDAcceptsObjectIDsAndStrings(t *testing.T) {
	oid := primitive.NewObjectID()

	filter := byID(oid.Hex(), repository.OwnedBy("ana"))
	assert.Equal(t, "ana", filter[repository.FieldOwnerID])
	assert.Equal(t, bson.M{"$in": bson.A{oid, oid.Hex()}}, filter[repository.FieldID])

	filter = byID("ana", nil)
	assert.Equal(t, "ana", filter[repository.FieldID])
}

// TestRepositoryAgainstServer needs a reachable MongoDB, e.g.
// MONGODB_TEST_URI=mongodb://localhost:27017.
func TestRepositoryAgainstServer(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := NewMongoDBRepository(ctx, uri, fmt.Sprintf("tesouraria_test_%d", time.Now().UnixNano()), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() {
		_ = repo.db.Drop(context.Background())
		_ = repo.Close(context.Background())
	}()

	require.NoError(t, repo.EnsureIndexes(ctx, map[string]repository.Sort{
		repository.CollectionExpenses: {Field: repository.FieldCreatedAt, Descending: true},
	}))

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, owner := range []string{"ana", "bia", "ana"} {
		id, err := repo.Insert(ctx, repository.CollectionExpenses, bson.M{
			repository.FieldOwnerID:   owner,
			repository.FieldCreatedAt: base.Add(time.Duration(i) * time.Minute),
			"description":             fmt.Sprintf("item %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	docs, err := repo.Find(ctx, repository.CollectionExpenses, repository.OwnedBy("ana"),
		&repository.Sort{Field: repository.FieldCreatedAt, Descending: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "item 2", docs[0].Lookup("description").StringValue())

	err = repo.UpdateFields(ctx, repository.CollectionExpenses, ids[0], repository.OwnedBy("bia"), map[string]any{"description": "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, repo.UpdateFields(ctx, repository.CollectionExpenses, ids[0], repository.OwnedBy("ana"), map[string]any{"description": "edited"}))
	require.NoError(t, repo.Delete(ctx, repository.CollectionExpenses, ids[2], repository.OwnedBy("ana")))

	require.NoError(t, repo.Put(ctx, repository.CollectionChurchProfile, "ana", bson.M{"name": "Igreja"}))
	doc, err := repo.Get(ctx, repository.CollectionChurchProfile, "ana")
	require.NoError(t, err)
	assert.Equal(t, "Igreja", doc.Lookup("name").StringValue())

	_, err = repo.Get(ctx, repository.CollectionChurchProfile, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
