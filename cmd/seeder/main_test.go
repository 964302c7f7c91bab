package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/offerledger/internal/domain"
	"github.com/punchamoorthee/offerledger/internal/store"
)

const sample = `
offers:
  - name: Slot1
    text: "<b>Spin</b>"
  - name: Dice
    text: Roll
    photo_id: p1
    button_text: Play
    button_url: https://example.com
`

func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	seed, err := readSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Offers, 2)

	backend, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	catalog, err := store.NewCatalogStore(ctx, backend)
	require.NoError(t, err)

	created, replaced, skipped, err := apply(ctx, catalog, seed, false)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 0}, []int{created, replaced, skipped})
	assert.Equal(t, []string{"Slot1", "Dice"}, catalog.List())

	dice, _ := catalog.Get("Dice")
	assert.Equal(t, "p1", dice.ImageRef)
	assert.True(t, dice.HasButton())

	_, err = catalog.IncrementView(ctx, "Dice")
	require.NoError(t, err)
	seed.Offers[1].Text = "Roll again"

	created, replaced, skipped, err = apply(ctx, catalog, seed, false)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2}, []int{created, replaced, skipped})

	created, replaced, skipped, err = apply(ctx, catalog, seed, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 0}, []int{created, replaced, skipped})
	dice, _ = catalog.Get("Dice")
	assert.Equal(t, "Roll again", dice.Body)
	assert.Equal(t, int64(1), dice.Views)
}

func TestReadSeedRejectsNamelessOffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("offers:\n  - text: x\n"), 0o600))
	_, err := readSeed(path)
	assert.ErrorContains(t, err, "no name")
}

func TestReadSeedRejectsLongName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.yaml")
	name := strings.Repeat("x", domain.MaxNameBytes+1)
	require.NoError(t, os.WriteFile(path, []byte("offers:\n  - name: "+name+"\n"), 0o600))
	_, err := readSeed(path)
	assert.ErrorContains(t, err, "longer than")
}
