package pagecache_test

import (
	"testing"

	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/gft"
	"github.com/kernelkit/fat32fs/pagecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, numBuffers uint32) (*pagecache.Cache, *gft.Table, gft.GFD) {
	t.Helper()
	table := gft.New()
	cache := pagecache.New(numBuffers, table)
	gfd := table.Insert("test-file")
	return cache, table, gfd
}

func TestReserveAndGetBuffer(t *testing.T) {
	cache, _, gfd := newCache(t, 4)

	buf, err := cache.ReserveBuffer(gfd, 7)
	require.Nil(t, err)
	require.Len(t, buf, pagecache.BufferSize)

	got := cache.GetBuffer(gfd, 7)
	assert.Equal(t, &buf[0], &got[0])
}

func TestGetBufferMissReturnsNilWithoutError(t *testing.T) {
	cache, _, gfd := newCache(t, 4)
	assert.Nil(t, cache.GetBuffer(gfd, 99))
}

func TestReleaseUnknownPageFails(t *testing.T) {
	cache, _, gfd := newCache(t, 4)
	err := cache.ReleaseBuffer(gfd, 42)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errs.ErrPageNotFound)
}

func TestReleaseBufferFreesSlotForReuse(t *testing.T) {
	cache, _, gfd := newCache(t, 1)

	_, err := cache.ReserveBuffer(gfd, 0)
	require.Nil(t, err)

	_, err = cache.ReserveBuffer(gfd, 1)
	assert.ErrorIs(t, err, errs.ErrDeplete, "pool of 1 should be depleted")

	require.Nil(t, cache.ReleaseBuffer(gfd, 0))

	_, err = cache.ReserveBuffer(gfd, 1)
	assert.Nil(t, err, "slot should be reusable after release")
}

func TestPoolDepletes(t *testing.T) {
	cache, _, gfd := newCache(t, 2)

	_, err := cache.ReserveBuffer(gfd, 0)
	require.Nil(t, err)
	_, err = cache.ReserveBuffer(gfd, 1)
	require.Nil(t, err)

	_, err = cache.ReserveBuffer(gfd, 2)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errs.ErrDeplete)
}

func TestAnonymousReserveReleaseRoundTrip(t *testing.T) {
	cache, _, _ := newCache(t, 1)

	buf, err := cache.ReserveAnonymous()
	require.Nil(t, err)
	require.Len(t, buf, pagecache.BufferSize)

	_, err = cache.ReserveAnonymous()
	assert.ErrorIs(t, err, errs.ErrDeplete)

	cache.ReleaseAnonymous(buf)

	_, err = cache.ReserveAnonymous()
	assert.Nil(t, err)
}

func TestReleaseAnonymousOutOfRangeIsNoop(t *testing.T) {
	cache, _, _ := newCache(t, 1)
	assert.NotPanics(t, func() {
		cache.ReleaseAnonymous(make([]byte, pagecache.BufferSize))
	})
}

func TestDirtyTracking(t *testing.T) {
	cache, _, gfd := newCache(t, 2)

	_, err := cache.ReserveBuffer(gfd, 3)
	require.Nil(t, err)

	assert.False(t, cache.IsPageDirty(gfd, 3), "freshly reserved page must start clean")

	require.Nil(t, cache.MakeDirty(gfd, 3, true))
	assert.True(t, cache.IsPageDirty(gfd, 3))

	require.Nil(t, cache.MakeDirty(gfd, 3, false))
	assert.False(t, cache.IsPageDirty(gfd, 3))
}

func TestIsPageDirtyMissReturnsFalse(t *testing.T) {
	cache, _, gfd := newCache(t, 2)
	assert.False(t, cache.IsPageDirty(gfd, 123))
}

func TestMakeDirtyOnMissingPageFails(t *testing.T) {
	cache, _, gfd := newCache(t, 2)
	err := cache.MakeDirty(gfd, 123, true)
	assert.ErrorIs(t, err, errs.ErrPageNotFound)
}

func TestOperationsOnClosedHandleFail(t *testing.T) {
	cache, table, gfd := newCache(t, 2)
	require.Nil(t, table.Close(gfd))

	_, err := cache.ReserveBuffer(gfd, 0)
	assert.ErrorIs(t, err, errs.ErrInvalid)
}
