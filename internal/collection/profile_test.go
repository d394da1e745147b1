package collection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igreja/tesouraria/internal/apperror"
	"github.com/igreja/tesouraria/internal/auth"
	"github.com/igreja/tesouraria/internal/domain/models"
	"github.com/igreja/tesouraria/internal/repository"
	"github.com/igreja/tesouraria/internal/repository/memory"
)

func TestProfileSaveKeepsCreationTime(t *testing.T) {
	store := memory.NewStore()
	session := signedIn("ana")
	p := NewProfile(store, session, nil, nil)
	t.Cleanup(p.Close)
	p.now = tick()

	loaded, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, loaded, "no profile configured yet")

	first, err := p.Save(context.Background(), models.ChurchProfile{Name: "Igreja Batista Central", PastorName: "Pr. Marcos"})
	require.NoError(t, err)
	assert.Equal(t, "ana", first.OwnerID)
	assert.Equal(t, first.CreatedAt, first.UpdatedAt)

	second, err := p.Save(context.Background(), models.ChurchProfile{Name: "Igreja Batista Central", TaxID: "12.345.678/0001-90"})
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, 1, store.Len(repository.CollectionChurchProfile), "one document per owner")

	// A fresh instance reads what the first one stored.
	other := NewProfile(store, session, nil, nil)
	t.Cleanup(other.Close)
	reloaded, err := other.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12.345.678/0001-90", reloaded.TaxID)
	assert.True(t, reloaded.CreatedAt.Equal(first.CreatedAt))
}

func TestProfileRequiresAuthentication(t *testing.T) {
	p := NewProfile(memory.NewStore(), auth.NewSession(nil, nil), nil, nil)
	t.Cleanup(p.Close)

	_, err := p.Save(context.Background(), models.ChurchProfile{Name: "Igreja"})
	assert.ErrorIs(t, err, apperror.ErrAuthRequired)
}

func TestProfileLoadFailureKeepsCached(t *testing.T) {
	store := memory.NewStore()
	p := NewProfile(store, signedIn("ana"), nil, nil)
	t.Cleanup(p.Close)

	_, err := p.Save(context.Background(), models.ChurchProfile{Name: "Igreja"})
	require.NoError(t, err)

	store.FailQueries(repository.CollectionChurchProfile, errors.New("offline"))
	_, err = p.Load(context.Background())

	assert.ErrorIs(t, err, apperror.ErrQuery)
	require.NotNil(t, p.Current())
	assert.Equal(t, "Igreja", p.Current().Name)
}

func TestProfileFollowsAuthState(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Put(context.Background(), repository.CollectionChurchProfile, "bia",
		&models.ChurchProfile{Name: "Comunidade Esperança", OwnerID: "bia", CreatedAt: time.Now().UTC()}))

	session := auth.NewSession(nil, nil)
	p := NewProfile(store, session, nil, nil)
	t.Cleanup(p.Close)

	session.Restore(&auth.User{ID: "bia"})
	require.NotNil(t, p.Current())
	assert.Equal(t, "Comunidade Esperança", p.Current().Name)

	session.SignOut()
	assert.Nil(t, p.Current())
}
