package fat_test

import (
	"sync"
	"testing"

	"github.com/kernelkit/fat32fs/blockio"
	"github.com/kernelkit/fat32fs/errs"
	"github.com/kernelkit/fat32fs/fat"
	"github.com/kernelkit/fat32fs/gft"
	"github.com/kernelkit/fat32fs/pagecache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// newFixture builds a tiny synthetic volume: FAT starts at LBA 0 and every
// entry starts free (entries 0 and 1 are not pre-reserved, so the scenarios
// below can use them), with totalClusters bounding ReserveFirstCluster.
func newFixture(t *testing.T, totalClusters uint32) (*fat.Cursor, *pagecache.Cache, gft.GFD) {
	t.Helper()

	image := make([]byte, 64*blockio.SectorSize)
	device := blockio.NewDevice(bytesextra.NewReadWriteSeeker(image))

	table := gft.New()
	cache := pagecache.New(4, table)
	rootGFD := table.Insert("root")

	cursor := fat.NewCursor(cache, rootGFD, device, 0, totalClusters)
	return cursor, cache, rootGFD
}

func TestMarkAndReadRoundTrip(t *testing.T) {
	cursor, _, _ := newFixture(t, 16)

	previous, err := cursor.MarkCluster(5, fat.EOF)
	require.Nil(t, err)
	assert.EqualValues(t, 0, previous, "cluster 5 should have started free")

	next, err := cursor.NextCluster(5)
	require.Nil(t, err)
	assert.EqualValues(t, fat.EOF, next)
}

func TestMarkClusterReturnsPreviousValue(t *testing.T) {
	cursor, _, _ := newFixture(t, 16)

	_, err := cursor.MarkCluster(9, 14)
	require.Nil(t, err)

	previous, err := cursor.MarkCluster(9, fat.EOF)
	require.Nil(t, err)
	assert.EqualValues(t, 14, previous)
}

func TestReserveFirstClusterScenario(t *testing.T) {
	// FAT block with entries[0]=3 (reserved/occupied), entries[1]=0,
	// entries[2]=0 => reserve_first_cluster(EOF) returns 1.
	cursor, _, _ := newFixture(t, 16)

	_, err := cursor.MarkCluster(0, 3)
	require.Nil(t, err)

	reserved, err := cursor.ReserveFirstCluster(fat.EOF)
	require.Nil(t, err)
	assert.EqualValues(t, 1, reserved)

	value, err := cursor.NextCluster(1)
	require.Nil(t, err)
	assert.EqualValues(t, fat.EOF, value)
}

func TestReserveFirstClusterExhausted(t *testing.T) {
	cursor, _, _ := newFixture(t, 4)

	for i := uint32(0); i < 4; i++ {
		_, err := cursor.MarkCluster(i, fat.EOF)
		require.Nil(t, err)
	}

	_, err := cursor.ReserveFirstCluster(fat.EOF)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, errs.ErrNoSpace)
}

func TestClusterChainFollowing(t *testing.T) {
	cursor, _, _ := newFixture(t, 32)

	// chain: 5 -> 9 -> 14 -> EOF
	_, err := cursor.MarkCluster(5, 9)
	require.Nil(t, err)
	_, err = cursor.MarkCluster(9, 14)
	require.Nil(t, err)
	_, err = cursor.MarkCluster(14, fat.EOF)
	require.Nil(t, err)

	chain := []uint32{5}
	cur := uint32(5)
	for {
		next, err := cursor.NextCluster(cur)
		require.Nil(t, err)
		if next >= fat.EOF {
			break
		}
		chain = append(chain, next)
		cur = next
	}

	assert.Equal(t, []uint32{5, 9, 14}, chain)
}

func TestDeleteChainZeroesEveryCluster(t *testing.T) {
	cursor, _, _ := newFixture(t, 32)

	_, err := cursor.MarkCluster(5, 9)
	require.Nil(t, err)
	_, err = cursor.MarkCluster(9, 14)
	require.Nil(t, err)
	_, err = cursor.MarkCluster(14, fat.EOF)
	require.Nil(t, err)

	next := uint32(5)
	for next < fat.EOF {
		prev, err := cursor.MarkCluster(next, 0)
		require.Nil(t, err)
		next = prev
		if next == 0 {
			break
		}
	}

	for _, cluster := range []uint32{5, 9, 14} {
		value, err := cursor.NextCluster(cluster)
		require.Nil(t, err)
		assert.EqualValues(t, 0, value)
	}
}

// TestConcurrentMarkClusterSerializes exercises the cursor's single-buffer
// guard under real concurrency: every goroutine's read-modify-write must be
// indivisible, or the shared scratch buffer would let one goroutine's write
// land in the slot another goroutine is still reading.
func TestConcurrentMarkClusterSerializes(t *testing.T) {
	cursor, _, _ := newFixture(t, 128)

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := uint32(0); i < workers; i++ {
		go func(cluster uint32) {
			defer wg.Done()
			_, err := cursor.MarkCluster(cluster, fat.EOF)
			assert.Nil(t, err)
		}(i + 2)
	}
	wg.Wait()

	for i := uint32(2); i < workers+2; i++ {
		value, err := cursor.NextCluster(i)
		require.Nil(t, err)
		assert.EqualValues(t, fat.EOF, value)
	}
}
