package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Nil", nil, false},
		{"Translated", gorm.ErrDuplicatedKey, true},
		{"Wrapped translated", fmt.Errorf("insert product: %w", gorm.ErrDuplicatedKey), true},
		{"Postgres unique", &pgconn.PgError{Code: "23505", ConstraintName: "idx_products_store_sku"}, true},
		{"Postgres foreign key", &pgconn.PgError{Code: "23503"}, false},
		{"SQLite message", errors.New("UNIQUE constraint failed: tags.name"), true},
		{"Not found", gorm.ErrRecordNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		context  string
		wantCode string
	}{
		{"Not found store", gorm.ErrRecordNotFound, "get store", ResourceNotFound},
		{"Duplicate sku", &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"idx_products_store_sku\""}, "create product", ProductSKUExists},
		{"Duplicate slug", errors.New("UNIQUE constraint failed: stores.slug"), "create store", StoreSlugExists},
		{"Duplicate tag", errors.New("UNIQUE constraint failed: tags.name"), "create tag", TagAlreadyExists},
		{"Store still referenced", &pgconn.PgError{Code: "23503", Detail: "Key (id)=(1) is still referenced from table \"products\"."}, "delete store", ResourceConflict},
		{"Unknown", errors.New("boom"), "scrape run", InternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseError(tt.err, tt.context)
			assert.Equal(t, tt.wantCode, info.Code)
			assert.NotEmpty(t, info.Message)
		})
	}
}
