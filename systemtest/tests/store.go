package tests

import (
	"context"
	"testing"

	"github.com/EternisAI/vconnector/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore runs the credential lifecycle against the store directly.
func TestStore(t *testing.T, s *store.Store) {
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, store.ConnectionRecord{Host: "vc01", Username: "root", Password: "p4ssw0rd", Enabled: true}))
	assert.ErrorIs(t, s.Add(ctx, store.ConnectionRecord{Host: "vc01", Username: "x", Enabled: true}), store.ErrDuplicateKey)

	pass := "n3w"
	require.NoError(t, s.Update(ctx, "vc01", store.RecordUpdate{Password: &pass}))
	require.NoError(t, s.SetEnabled(ctx, "vc01", false))

	got, err := s.Get(ctx, "vc01")
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionRecord{Host: "vc01", Username: "root", Password: "n3w", Enabled: false}, got)

	require.NoError(t, s.Add(ctx, store.ConnectionRecord{Host: "vc00", Username: "admin", Enabled: true}))
	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "vc01", records[0].Host)
	assert.Equal(t, "vc00", records[1].Host)

	require.NoError(t, s.Remove(ctx, "vc01"))
	require.NoError(t, s.Remove(ctx, "vc00"))
	_, err = s.Get(ctx, "vc01")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "vc01"), store.ErrNotFound)
}
