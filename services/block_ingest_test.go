package services

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func operatorBlock(height int64, hash string, ts time.Time) *fakeExplorer {
	return &fakeExplorer{
		header: BlockHeader{Hash: hash, Height: height, Time: ts},
		detail: BlockDetail{
			Hash:           hash,
			Height:         height,
			Time:           ts,
			CoinbaseScript: hex.EncodeToString([]byte("/Powered by Luxor/")),
			RewardSats:     625_000_000, // 6.25 BTC
			Size:           1_500_000,
			Difficulty:     88.5e12,
		},
	}
}

func newIngest(db *gorm.DB, explorer BlockSource, pool PoolStatsSource) *BlockIngestService {
	return NewBlockIngestService(db, explorer, pool, events.NopPublisher{}, testTunables())
}

func TestIngestAllocatesProportionally(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	subA := models.Subscription{
		UserID: "11111111-1111-1111-1111-111111111111", Hashrate: 100,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsValid: true,
	}
	subB := models.Subscription{
		UserID: "22222222-2222-2222-2222-222222222222", Hashrate: 50,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsValid: true,
	}
	expired := models.Subscription{
		UserID: "33333333-3333-3333-3333-333333333333", Hashrate: 75,
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour), IsValid: false,
	}
	require.NoError(t, db.Create(&subA).Error)
	require.NoError(t, db.Create(&subB).Error)
	require.NoError(t, db.Create(&expired).Error)

	svc := newIngest(db, operatorBlock(900000, "abc123", now), fakePoolStats{hashrate: 1000})
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var block models.Block
	require.NoError(t, db.First(&block, "block_hash = ?", "abc123").Error)
	assert.Equal(t, int64(900000), block.Height)
	assert.True(t, block.BitcoinMined.Equal(mustDecimal(t, "6.25")))

	var allocations []models.Allocation
	require.NoError(t, db.Order("subscription_id").Find(&allocations).Error)
	require.Len(t, allocations, 2)

	// 100/1000 and 50/1000 of the 6.25 BTC reward.
	assert.True(t, allocations[0].BitcoinAllocated.Equal(mustDecimal(t, "0.625")),
		"got %s", allocations[0].BitcoinAllocated)
	assert.True(t, allocations[1].BitcoinAllocated.Equal(mustDecimal(t, "0.3125")),
		"got %s", allocations[1].BitcoinAllocated)

	// Conservation: the pool never hands out more than the block reward.
	total := allocations[0].BitcoinAllocated.Add(allocations[1].BitcoinAllocated)
	assert.True(t, total.LessThanOrEqual(block.BitcoinMined))

	cursor, err := svc.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "abc123", cursor)

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.Equal(t, int64(2), notifications)
}

func TestIngestNoopWhenCursorCurrent(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	svc := newIngest(db, operatorBlock(900000, "abc123", now), fakePoolStats{hashrate: 1000})
	require.NoError(t, svc.CheckForNewBlock(context.Background()))
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var blocks int64
	require.NoError(t, db.Model(&models.Block{}).Count(&blocks).Error)
	assert.Equal(t, int64(1), blocks)
}

func TestIngestForeignBlockAdvancesCursorOnly(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	explorer := operatorBlock(900001, "def456", now)
	explorer.detail.CoinbaseScript = hex.EncodeToString([]byte("/ViaBTC/Mined by someone else/"))

	svc := newIngest(db, explorer, fakePoolStats{hashrate: 1000})
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var blocks int64
	require.NoError(t, db.Model(&models.Block{}).Count(&blocks).Error)
	assert.Equal(t, int64(0), blocks)

	cursor, err := svc.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "def456", cursor)
}

func TestIngestDuringInterruptionRecordsBlockWithoutAllocation(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	sub := models.Subscription{
		UserID: "11111111-1111-1111-1111-111111111111", Hashrate: 100,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsValid: true,
	}
	require.NoError(t, db.Create(&sub).Error)
	require.NoError(t, db.Create(&models.Interruption{StartTime: now.Add(-10 * time.Minute)}).Error)

	svc := newIngest(db, operatorBlock(900002, "ghi789", now), fakePoolStats{hashrate: 1000})
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var blocks int64
	require.NoError(t, db.Model(&models.Block{}).Count(&blocks).Error)
	assert.Equal(t, int64(1), blocks)

	var allocations int64
	require.NoError(t, db.Model(&models.Allocation{}).Count(&allocations).Error)
	assert.Equal(t, int64(0), allocations)

	cursor, err := svc.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "ghi789", cursor)
}

func TestIngestPoolStatsFailureRollsBackEverything(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	sub := models.Subscription{
		UserID: "11111111-1111-1111-1111-111111111111", Hashrate: 100,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), IsValid: true,
	}
	require.NoError(t, db.Create(&sub).Error)

	svc := newIngest(db, operatorBlock(900003, "jkl012", now),
		fakePoolStats{err: errors.New("pool api down")})
	err := svc.CheckForNewBlock(context.Background())
	require.Error(t, err)

	// Nothing persisted: the block row rolls back with the failed
	// allocation so the next tick reprocesses from scratch.
	var blocks int64
	require.NoError(t, db.Model(&models.Block{}).Count(&blocks).Error)
	assert.Equal(t, int64(0), blocks)

	cursor, err := svc.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "", cursor)

	// Recovery: same block, pool back up.
	svc.PoolStats = fakePoolStats{hashrate: 1000}
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var allocations int64
	require.NoError(t, db.Model(&models.Allocation{}).Count(&allocations).Error)
	assert.Equal(t, int64(1), allocations)
}

func TestIngestDuplicateHeightSkips(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&models.Block{
		Height: 900004, Hash: "previously-seen", Timestamp: now,
		BitcoinMined: mustDecimal(t, "6.25"), Size: 1, Difficulty: 1,
	}).Error)

	svc := newIngest(db, operatorBlock(900004, "mno345", now), fakePoolStats{hashrate: 1000})
	require.NoError(t, svc.CheckForNewBlock(context.Background()))

	var allocations int64
	require.NoError(t, db.Model(&models.Allocation{}).Count(&allocations).Error)
	assert.Equal(t, int64(0), allocations)

	cursor, err := svc.Cursor()
	require.NoError(t, err)
	assert.Equal(t, "mno345", cursor)
}

func TestCoinbaseTagAttribution(t *testing.T) {
	attr := CoinbaseTagAttribution([]string{"luxor", "powered by luxor"})

	assert.True(t, attr(hex.EncodeToString([]byte("/Powered by Luxor/"))))
	assert.True(t, attr(hex.EncodeToString([]byte("some garbage LUXOR tag"))))
	assert.False(t, attr(hex.EncodeToString([]byte("/ViaBTC/"))))
	// Non-hex input falls back to raw matching.
	assert.True(t, attr("not-hex-but-mentions-luxor"))
}
