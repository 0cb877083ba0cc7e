package services

import (
	"errors"
	"testing"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testUser = "11111111-1111-1111-1111-111111111111"

func newSubscriptionService(t *testing.T, db *gorm.DB, totalTH float64, price fixedPrice) *SubscriptionService {
	t.Helper()
	capacity := seedLedger(t, db, totalTH)
	return NewSubscriptionService(db, capacity, price, events.NopPublisher{}, testTunables())
}

func TestCreateSubscriptionReservesCapacity(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{rate: mustDecimal(t, "100000")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	assert.True(t, sub.IsValid)
	assert.Equal(t, 100.0, sub.Hashrate)
	assert.WithinDuration(t, sub.StartDate.AddDate(0, 0, 10), sub.EndDate, time.Second)

	ledger, err := svc.Capacity.Get()
	require.NoError(t, err)
	assert.Equal(t, 100.0, ledger.RentedTH)

	var notifications int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.Equal(t, int64(1), notifications)
}

func TestCreateSubscriptionInsufficientCapacity(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 100, fixedPrice{rate: mustDecimal(t, "100000")})

	_, err := svc.Create(testUser, 150, 10)
	require.ErrorIs(t, err, ErrInsufficientCapacity)

	// Nothing persisted when the reservation fails.
	var subs int64
	require.NoError(t, db.Model(&models.Subscription{}).Count(&subs).Error)
	assert.Equal(t, int64(0), subs)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 100, fixedPrice{rate: mustDecimal(t, "100000")})

	_, err := svc.Create(testUser, 0, 10)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(testUser, 10, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(testUser, -5, 10)
	assert.ErrorIs(t, err, ErrValidation)
}

// expireSubscription rewinds a live subscription so the sweep picks it up.
func expireSubscription(t *testing.T, db *gorm.DB, id uint, days int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("subscription_id = ?", id).
		Updates(map[string]interface{}{
			"start_date": now.Add(-time.Duration(days) * 24 * time.Hour),
			"end_date":   now.Add(-time.Hour),
		}).Error)
}

func TestSettlementSweep(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{rate: mustDecimal(t, "100000")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	expireSubscription(t, db, sub.ID, 10)

	block := models.Block{
		Height: 900000, Hash: "settle-block", Timestamp: time.Now().UTC().Add(-24 * time.Hour),
		BitcoinMined: mustDecimal(t, "6.25"), Size: 1, Difficulty: 1,
	}
	require.NoError(t, db.Create(&block).Error)
	require.NoError(t, db.Create(&models.Allocation{
		SubscriptionID: sub.ID, BlockID: block.ID, Height: block.Height,
		BitcoinAllocated: mustDecimal(t, "0.625"),
	}).Error)

	svc.RunSettlementSweep()

	var settled models.Subscription
	require.NoError(t, db.First(&settled, sub.ID).Error)
	assert.False(t, settled.IsValid)

	// 100 TH/s at 3420 W per 88 TH for 240 h: 932.73 kWh, $0.055/kWh.
	assert.True(t, settled.HostingCostsUSD.Equal(mustDecimal(t, "51.3")),
		"hosting costs = %s", settled.HostingCostsUSD)
	// $51.30 at $100k/BTC.
	assert.True(t, settled.HostingFeesBTC.Equal(mustDecimal(t, "0.000513")),
		"hosting fees = %s", settled.HostingFeesBTC)
	// 2.5% of 0.625 BTC.
	assert.True(t, settled.MiningPoolFeeBTC.Equal(mustDecimal(t, "0.015625")),
		"pool fee = %s", settled.MiningPoolFeeBTC)
	// 0.625 - 0.000513 - 0.015625
	assert.True(t, settled.ProfitBTC.Equal(mustDecimal(t, "0.608862")),
		"profit = %s", settled.ProfitBTC)

	ledger, err := svc.Capacity.Get()
	require.NoError(t, err)
	assert.Equal(t, 0.0, ledger.RentedTH)

	var wallet models.Wallet
	require.NoError(t, db.First(&wallet, "user_id = ?", testUser).Error)
	assert.True(t, wallet.AvailableBTC.Equal(settled.ProfitBTC))

	var mined models.UserMinedTotal
	require.NoError(t, db.First(&mined, "user_id = ?", testUser).Error)
	assert.True(t, mined.TotalMinedBTC.Equal(mustDecimal(t, "0.625")))

	// Second sweep is a no-op.
	svc.RunSettlementSweep()
	require.NoError(t, db.First(&wallet, "user_id = ?", testUser).Error)
	assert.True(t, wallet.AvailableBTC.Equal(settled.ProfitBTC))
}

func TestSettlementLossFloorsWalletCreditAtZero(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{rate: mustDecimal(t, "100000")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	expireSubscription(t, db, sub.ID, 10)

	// No allocations: hosting fees with zero income means negative profit.
	svc.RunSettlementSweep()

	var settled models.Subscription
	require.NoError(t, db.First(&settled, sub.ID).Error)
	assert.False(t, settled.IsValid)
	assert.True(t, settled.ProfitBTC.IsNegative(), "profit = %s", settled.ProfitBTC)

	var wallet models.Wallet
	require.NoError(t, db.First(&wallet, "user_id = ?", testUser).Error)
	assert.True(t, wallet.AvailableBTC.IsZero())
}

func TestSettlementExcludesDowntimeFromEnergyBill(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{rate: mustDecimal(t, "100000")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	expireSubscription(t, db, sub.ID, 10)

	var updated models.Subscription
	require.NoError(t, db.First(&updated, sub.ID).Error)

	// 48 h outage in the middle of the rental.
	outageStart := updated.StartDate.Add(2 * 24 * time.Hour)
	outageEnd := outageStart.Add(48 * time.Hour)
	require.NoError(t, db.Create(&models.Interruption{
		StartTime: outageStart,
		EndTime:   &outageEnd,
	}).Error)

	svc.RunSettlementSweep()

	var settled models.Subscription
	require.NoError(t, db.First(&settled, sub.ID).Error)
	assert.Equal(t, int64(48*60), settled.InterruptionMinutes)

	// 240 h minus 48 h downtime: 192 h of draw, 746.18 kWh, $41.04.
	assert.True(t, settled.HostingCostsUSD.Equal(mustDecimal(t, "41.04")),
		"hosting costs = %s", settled.HostingCostsUSD)
}

func TestSettlementPriceFailureLeavesSubscriptionOpen(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{err: errors.New("ticker down")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	expireSubscription(t, db, sub.ID, 10)

	svc.RunSettlementSweep()

	// Everything rolled back: still valid, capacity still reserved, so the
	// next sweep retries the whole settlement.
	var got models.Subscription
	require.NoError(t, db.First(&got, sub.ID).Error)
	assert.True(t, got.IsValid)

	ledger, err := svc.Capacity.Get()
	require.NoError(t, err)
	assert.Equal(t, 100.0, ledger.RentedTH)
}

func TestDailyCostAccrual(t *testing.T) {
	db := openTestDB(t)
	svc := newSubscriptionService(t, db, 1000, fixedPrice{rate: mustDecimal(t, "100000")})

	sub, err := svc.Create(testUser, 100, 10)
	require.NoError(t, err)
	// Backdate the start so the full 24 h window counts.
	require.NoError(t, db.Model(&models.Subscription{}).
		Where("subscription_id = ?", sub.ID).
		Update("start_date", time.Now().UTC().Add(-48*time.Hour)).Error)

	svc.RunDailyCostAccrual()

	var got models.Subscription
	require.NoError(t, db.First(&got, sub.ID).Error)
	// One day of 100 TH/s draw: 93.27 kWh at $0.055.
	assert.True(t, got.AccruedCostsUSD.Equal(mustDecimal(t, "5.13")),
		"accrued = %s", got.AccruedCostsUSD)

	// Accrual never touches the settled figure.
	assert.True(t, got.HostingCostsUSD.IsZero())

	svc.RunDailyCostAccrual()
	require.NoError(t, db.First(&got, sub.ID).Error)
	assert.True(t, got.AccruedCostsUSD.Equal(mustDecimal(t, "10.26")),
		"accrued = %s", got.AccruedCostsUSD)
}

func TestConsumedEnergyKWH(t *testing.T) {
	// 100 TH/s on 3420 W / 88 TH hardware for 10 days, no downtime.
	got := consumedEnergyKWH(3420, 88, 100, 10, 0)
	assert.InDelta(t, 932.727, got, 0.001)

	// Downtime reduces the billed hours.
	got = consumedEnergyKWH(3420, 88, 100, 10, 48*60)
	assert.InDelta(t, 746.182, got, 0.001)

	// More downtime than window clamps to zero.
	got = consumedEnergyKWH(3420, 88, 100, 1, 100000)
	assert.Equal(t, 0.0, got)
}
