package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	found bool
	err   error

	gotTenant string
	gotKey    string
	gotWindow time.Duration
}

func (f *fakeStore) HasRecentLead(_ context.Context, tenantID, senderKey string, window time.Duration) (bool, error) {
	f.gotTenant = tenantID
	f.gotKey = senderKey
	f.gotWindow = window

	return f.found, f.err
}

func newDeduper(store *fakeStore) *Deduper {
	logger := zerolog.Nop()

	return New(store, 7*24*time.Hour, &logger)
}

func TestIsDuplicate(t *testing.T) {
	store := &fakeStore{found: true}
	d := newDeduper(store)

	assert.True(t, d.IsDuplicate(context.Background(), "t1", "@sender"))
	assert.Equal(t, "t1", store.gotTenant)
	assert.Equal(t, "@sender", store.gotKey)
	assert.Equal(t, 7*24*time.Hour, store.gotWindow)
}

func TestIsDuplicateNotFound(t *testing.T) {
	d := newDeduper(&fakeStore{found: false})

	assert.False(t, d.IsDuplicate(context.Background(), "t1", "@sender"))
}

func TestIsDuplicateFailsOpen(t *testing.T) {
	d := newDeduper(&fakeStore{err: errors.New("timeout")})

	assert.False(t, d.IsDuplicate(context.Background(), "t1", "@sender"))
}

func TestIsDuplicateEmptyKey(t *testing.T) {
	store := &fakeStore{found: true}
	d := newDeduper(store)

	assert.False(t, d.IsDuplicate(context.Background(), "t1", ""))
	assert.Empty(t, store.gotKey)
}
