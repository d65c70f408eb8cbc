package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductFromRow(t *testing.T) {
	item, warnings, ok := productFromRow([]string{" 18K  Gold Ring ", "1,250,000", "", "R-1", "수제", "rings, 18k ,"}, "KRW")
	require.True(t, ok)
	assert.Empty(t, warnings)
	assert.Equal(t, "18K Gold Ring", item.Record.Name)
	assert.Equal(t, "KRW", item.Record.Currency)
	assert.Equal(t, "R-1", item.Record.SKU)
	require.NotNil(t, item.Record.Price)
	assert.True(t, decimal.RequireFromString("1250000").Equal(*item.Record.Price))
	assert.Equal(t, []string{"rings", "18k"}, item.Tags)

	// 가격 범위는 저장하지 않고 경고만 남김
	item, warnings, ok = productFromRow([]string{"Chain", "₩10,000 - ₩20,000", "usd"}, "KRW")
	require.True(t, ok)
	assert.Len(t, warnings, 1)
	assert.Nil(t, item.Record.Price)
	assert.Equal(t, "USD", item.Record.Currency)
	assert.Empty(t, item.Tags)

	_, _, ok = productFromRow([]string{"12345", "1000"}, "KRW")
	assert.False(t, ok)
}

func TestStoreFromRow(t *testing.T) {
	spec, ok := storeFromRow([]string{"Gold Shop", "", "서울 종로구 1", "", "37.57", "126.98"})
	require.True(t, ok)
	assert.Equal(t, "physical", spec.Type)
	require.NotNil(t, spec.Latitude)
	assert.Equal(t, 37.57, *spec.Latitude)

	spec, ok = storeFromRow([]string{"Web Shop", "Online", "", "https://web.test"})
	require.True(t, ok)
	assert.Equal(t, "online", spec.Type)
	assert.Nil(t, spec.Latitude)

	_, ok = storeFromRow([]string{"!!"})
	assert.False(t, ok)
}
