package repository

import (
	"testing"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestStoreRepository_CreateGeneratesSlug(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	defer db.CleanupTestDB(testDB)

	repo := NewStoreRepository(testDB)
	store := &model.Store{Name: "ACME Jewelry & Co."}
	require.NoError(t, repo.Create(store))

	assert.Equal(t, "acme-jewelry-co", store.Slug)
	assert.Equal(t, model.StoreTypeOnline, store.Type)

	found, err := repo.FindBySlug("acme-jewelry-co")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, store.ID, found.ID)

	missing, err := repo.FindBySlug("nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreRepository_DeleteAndRestore(t *testing.T) {
	testDB, productRepo, store := setupProductTest(t)
	defer db.CleanupTestDB(testDB)

	repo := NewStoreRepository(testDB)
	require.NoError(t, productRepo.Create(newProduct(store.ID, "Ring", "")))

	err := repo.Delete(store.ID)
	assert.ErrorIs(t, err, ErrStoreHasProducts)

	empty := &model.Store{Name: "Empty Shop"}
	require.NoError(t, repo.Create(empty))
	require.NoError(t, repo.Delete(empty.ID))

	_, err = repo.FindByID(empty.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// slug lookup still sees the soft-deleted row
	found, err := repo.FindBySlug(empty.Slug)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.DeletedAt.Valid)

	require.NoError(t, repo.Restore(empty.ID))
	_, err = repo.FindByID(empty.ID)
	assert.NoError(t, err)
}

func TestStoreRepository_FindAll(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	defer db.CleanupTestDB(testDB)

	repo := NewStoreRepository(testDB)
	for _, s := range []*model.Store{
		{Name: "Alpha", Type: model.StoreTypePhysical, Address: "Main St 1"},
		{Name: "Beta", Type: model.StoreTypeOnline},
		{Name: "Gamma", Type: model.StoreTypeChain},
	} {
		require.NoError(t, repo.Create(s))
	}

	stores, total, err := repo.FindAll(StoreFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, stores, 3)

	stores, total, err = repo.FindAll(StoreFilter{Type: model.StoreTypePhysical})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Alpha", stores[0].Name)

	stores, total, err = repo.FindAll(StoreFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, stores, 2)
}
