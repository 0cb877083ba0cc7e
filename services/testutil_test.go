package services

import (
	"context"
	"testing"

	"hashrate-rental-system/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.CapacityLedger{},
		&models.Subscription{},
		&models.UserMinedTotal{},
		&models.Block{},
		&models.Allocation{},
		&models.Interruption{},
		&models.Wallet{},
		&models.WithdrawalRequest{},
		&models.Notification{},
		&models.Metadata{},
	))
	return db
}

func seedLedger(t *testing.T, db *gorm.DB, totalTH float64) *CapacityService {
	t.Helper()
	svc := NewCapacityService(db)
	require.NoError(t, svc.EnsureLedger(totalTH))
	return svc
}

func testTunables() Tunables {
	return Tunables{
		PoolFeePercent:   2.5,
		ASICPowerWatts:   3420,
		THPerASIC:        88,
		HostingFeePerKWH: 0.055,
		OperatorTags:     []string{"luxor", "powered by luxor"},
		LocalCurrency:    "NGN",
	}
}

// fixedPrice always quotes the same rate.
type fixedPrice struct {
	rate decimal.Decimal
	err  error
}

func (p fixedPrice) Price(ctx context.Context, base, quote string) (decimal.Decimal, error) {
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.rate, nil
}

// fakeExplorer serves one canned block.
type fakeExplorer struct {
	header BlockHeader
	detail BlockDetail
	err    error
}

func (f *fakeExplorer) LatestBlock(ctx context.Context) (*BlockHeader, error) {
	if f.err != nil {
		return nil, f.err
	}
	h := f.header
	return &h, nil
}

func (f *fakeExplorer) BlockDetail(ctx context.Context, hash string) (*BlockDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := f.detail
	return &d, nil
}

type fakePoolStats struct {
	hashrate float64
	err      error
}

func (f fakePoolStats) PoolHashrate(ctx context.Context) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.hashrate, nil
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}
