package mapsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-assets/internal/logger"
	"github.com/joeblew999/plat-assets/internal/service"
)

func newTestSelection(t *testing.T) (*Store, *recordingAdapter, *Selection) {
	t.Helper()
	store, ad, _ := newTestReconciler()
	_, err := store.Upsert(pump("a1", 28.69))
	require.NoError(t, err)
	ad.reset()
	return store, ad, NewSelection(store, logger.Discard())
}

func TestSelectUnknownIDResetsToIdle(t *testing.T) {
	_, _, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))
	require.Equal(t, Editing, sel.State())

	err := sel.SelectFromMap("unknown-id")
	var stale *StaleSelectionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "unknown-id", stale.ID)
	assert.Equal(t, Idle, sel.State())
	_, ok := sel.Draft()
	assert.False(t, ok)
}

func TestSelectCopiesStoredAsset(t *testing.T) {
	_, _, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))

	d, ok := sel.Draft()
	require.True(t, ok)
	assert.Equal(t, DraftFromAsset(pump("a1", 28.69)), d)
	id, editing := sel.Selected()
	assert.True(t, editing)
	assert.Equal(t, "a1", id)
}

func TestEditNeverTouchesStore(t *testing.T) {
	store, ad, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))
	require.NoError(t, sel.Edit(FieldLatitude, "10"))

	got, _ := store.Get("a1")
	assert.Equal(t, 28.69, got.Latitude)
	assert.Empty(t, ad.calls)
	assert.Equal(t, Editing, sel.State())

	assert.Error(t, sel.Edit("bogus", "x"))
}

func TestCancelLeavesStoreAndMarker(t *testing.T) {
	store, ad, sel := newTestSelection(t)
	before := store.List()

	require.NoError(t, sel.SelectFromMap("a1"))
	require.NoError(t, sel.Edit(FieldManufacturer, "KSB"))
	sel.Cancel()

	assert.Equal(t, Idle, sel.State())
	assert.Equal(t, before, store.List())
	assert.Empty(t, ad.calls)
}

func TestCommitInvalidLatitudeKeepsDraft(t *testing.T) {
	store, ad, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))
	require.NoError(t, sel.Edit(FieldLatitude, "not-a-number"))

	_, err := sel.Commit()
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a number", verr.ByField()[FieldLatitude])

	assert.Equal(t, Editing, sel.State())
	d, ok := sel.Draft()
	require.True(t, ok)
	assert.Equal(t, "not-a-number", d.Latitude)

	got, _ := store.Get("a1")
	assert.Equal(t, pump("a1", 28.69), got)
	assert.Empty(t, ad.calls)
}

func TestCommitUpdateExisting(t *testing.T) {
	store, ad, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))
	require.NoError(t, sel.Edit(FieldLatitude, "28.70"))

	res, err := sel.Commit()
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, Idle, sel.State())
	_, ok := sel.Draft()
	assert.False(t, ok)

	got, _ := store.Get("a1")
	assert.Equal(t, 28.70, got.Latitude)
	assert.Equal(t, []string{"update:a1"}, ad.calls)
}

func TestCommitUnchangedDraftStillUpdates(t *testing.T) {
	_, ad, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))

	res, err := sel.Commit()
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, []string{"update:a1"}, ad.calls)
}

func TestCommitNewIDCreates(t *testing.T) {
	store, ad, sel := newTestSelection(t)

	// A brand-new id typed into an existing asset's form creates a new asset
	// and leaves the original alone.
	require.NoError(t, sel.SelectFromMap("a1"))
	require.NoError(t, sel.Edit(FieldID, "a2"))
	res, err := sel.Commit()
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, []string{"add:a2"}, ad.calls)

	// From Idle a filled-in blank form creates too.
	ad.reset()
	for k, v := range DraftFromAsset(pump("a3", 5)).Values() {
		require.NoError(t, sel.Edit(k, v))
	}
	assert.Equal(t, Idle, sel.State())
	res, err = sel.Commit()
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []string{"add:a3"}, ad.calls)
}

func TestForget(t *testing.T) {
	_, _, sel := newTestSelection(t)
	require.NoError(t, sel.SelectFromMap("a1"))
	assert.False(t, sel.Forget("other"))
	assert.True(t, sel.Forget("a1"))
	assert.Equal(t, Idle, sel.State())
}
