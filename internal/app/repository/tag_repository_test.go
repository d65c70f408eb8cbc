package repository

import (
	"testing"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/db"
	apperrors "github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRepository_LinkIsIdempotent(t *testing.T) {
	testDB, productRepo, store := setupProductTest(t)
	defer db.CleanupTestDB(testDB)

	product := newProduct(store.ID, "Ring", "")
	require.NoError(t, productRepo.Create(product))

	repo := NewTagRepository(testDB)
	tag := &model.Tag{Name: "in-store", Category: model.TagCategoryProvenance}
	require.NoError(t, testDB.Create(tag).Error)

	created, err := repo.Link(product.ID, tag.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Link(product.ID, tag.ID)
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, testDB.Model(&model.ProductTag{}).Where("product_id = ?", product.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	exists, err := repo.LinkExists(product.ID, tag.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	tags, err := repo.FindByProduct(product.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "in-store", tags[0].Name)
}

func TestTagRepository_CreateGuarded(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	defer db.CleanupTestDB(testDB)

	tx := testDB.Begin()
	repo := NewTagRepository(tx)

	require.NoError(t, repo.CreateGuarded(&model.Tag{Name: "gold", Category: model.TagCategoryCategory}))

	dup := &model.Tag{Name: "gold", Category: model.TagCategoryCategory}
	err = repo.CreateGuarded(dup)
	assert.True(t, apperrors.IsUniqueViolation(err))

	found, err := repo.FindByName("gold")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NoError(t, tx.Commit().Error)

	missing, err := NewTagRepository(testDB).FindByName("silver")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTagRepository_FindAll(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	defer db.CleanupTestDB(testDB)

	require.NoError(t, testDB.Create(&[]model.Tag{
		{Name: "ring", Category: model.TagCategoryCategory},
		{Name: "source:goldshop", Category: model.TagCategoryProvenance},
		{Name: "in-store", Category: model.TagCategoryProvenance},
	}).Error)

	repo := NewTagRepository(testDB)

	all, err := repo.FindAll("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	provenance, err := repo.FindAll(model.TagCategoryProvenance)
	require.NoError(t, err)
	require.Len(t, provenance, 2)
	assert.Equal(t, "in-store", provenance[0].Name)
}
