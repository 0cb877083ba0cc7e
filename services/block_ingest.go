// services/block_ingest.go
package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PoolAttribution decides whether a block belongs to the operator's pool,
// given the hex-encoded coinbase script. The default implementation is a
// substring heuristic; it is deliberately swappable because coinbase
// tagging conventions vary by pool.
type PoolAttribution func(coinbaseScriptHex string) bool

// CoinbaseTagAttribution matches any of the given lowercase tags against
// the decoded coinbase text.
func CoinbaseTagAttribution(tags []string) PoolAttribution {
	return func(scriptHex string) bool {
		decoded, err := hex.DecodeString(scriptHex)
		if err != nil {
			// Coinbase scripts are free-form; fall back to matching the raw
			// string rather than rejecting the block outright.
			decoded = []byte(scriptHex)
		}
		text := strings.ToLower(string(decoded))
		for _, tag := range tags {
			if tag != "" && strings.Contains(text, tag) {
				return true
			}
		}
		return false
	}
}

// NewBlockEvent is the aggregate push payload emitted once per processed
// block. PoolFees is in satoshis for display.
type NewBlockEvent struct {
	BlockID          uint            `json:"blockId"`
	Height           int64           `json:"height"`
	BlockHash        string          `json:"blockHash"`
	Timestamp        time.Time       `json:"timestamp"`
	BitcoinMined     decimal.Decimal `json:"bitcoinMined"`
	BitcoinAllocated decimal.Decimal `json:"bitcoinAllocated"`
	PoolFees         decimal.Decimal `json:"poolFees"`
	Size             int64           `json:"size"`
	Difficulty       float64         `json:"difficulty"`
}

// BlockIngestService watches the explorer for new blocks and distributes
// each operator block's reward across active subscriptions. One transaction
// per block: any failure rolls back everything, the cursor stays put, and
// the block is reprocessed on the next tick.
type BlockIngestService struct {
	DB          *gorm.DB
	Explorer    BlockSource
	PoolStats   PoolStatsSource
	Pub         events.Publisher
	Attribution PoolAttribution
	Tunables    Tunables
}

func NewBlockIngestService(db *gorm.DB, explorer BlockSource, poolStats PoolStatsSource, pub events.Publisher, cfg Tunables) *BlockIngestService {
	return &BlockIngestService{
		DB:          db,
		Explorer:    explorer,
		PoolStats:   poolStats,
		Pub:         pub,
		Attribution: CoinbaseTagAttribution(cfg.OperatorTags),
		Tunables:    cfg,
	}
}

// Tick runs one ingest cycle. Scheduled single-flight; errors are logged
// and retried on the next tick.
func (s *BlockIngestService) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()
	if err := s.CheckForNewBlock(ctx); err != nil {
		log.Printf("[BlockIngest] tick failed: %v", err)
	}
}

// CheckForNewBlock performs one ingest cycle: compare the latest block hash
// against the cursor, and if it moved, attribute and allocate the block.
func (s *BlockIngestService) CheckForNewBlock(ctx context.Context) error {
	header, err := s.Explorer.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("fetch latest block: %w", err)
	}

	cursor, err := s.Cursor()
	if err != nil {
		return err
	}
	if header.Hash == cursor {
		return nil // no new block
	}

	detail, err := s.Explorer.BlockDetail(ctx, header.Hash)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", header.Hash, err)
	}

	if !s.Attribution(detail.CoinbaseScript) {
		log.Printf("[BlockIngest] block %d not mined by operator pool, skipping", detail.Height)
		return s.advanceCursor(s.DB, detail.Hash)
	}

	bitcoinMined := decimal.New(detail.RewardSats, -8)

	// Push emission is deferred until the transaction commits.
	var emits []func()

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		block := models.Block{
			Height:       detail.Height,
			Hash:         detail.Hash,
			Timestamp:    detail.Time,
			BitcoinMined: bitcoinMined,
			Size:         detail.Size,
			Difficulty:   detail.Difficulty,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "height"}},
			DoNothing: true,
		}).Create(&block)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Printf("[BlockIngest] block %d already recorded, skipping", detail.Height)
			return s.advanceCursor(tx, detail.Hash)
		}

		// Blocks inside a downtime window are recorded but earn nothing.
		var interrupted int64
		if err := tx.Model(&models.Interruption{}).
			Where("start_time <= ? AND (end_time IS NULL OR end_time >= ?)", detail.Time, detail.Time).
			Count(&interrupted).Error; err != nil {
			return err
		}
		if interrupted > 0 {
			log.Printf("[BlockIngest] block %d falls inside an interruption, no allocation", detail.Height)
			if err := s.advanceCursor(tx, detail.Hash); err != nil {
				return err
			}
			emits = append(emits, s.newBlockEmit(block, decimal.Zero, decimal.Zero))
			return nil
		}

		// An unavailable pool API aborts the whole transaction, block row
		// included, so the next tick reprocesses the block from scratch
		// instead of short-circuiting on the duplicate insert above.
		poolHashrate, err := s.PoolStats.PoolHashrate(ctx)
		if err != nil {
			return fmt.Errorf("fetch pool hashrate: %w", err)
		}
		if poolHashrate <= 0 {
			return fmt.Errorf("%w: pool reported non-positive hashrate %f", ErrUpstreamUnavailable, poolHashrate)
		}

		var subs []models.Subscription
		if err := tx.
			Where("is_valid = ? AND start_date <= ? AND end_date >= ?", true, detail.Time, detail.Time).
			Find(&subs).Error; err != nil {
			return err
		}

		totalAllocated := decimal.Zero
		if len(subs) == 0 {
			log.Printf("[BlockIngest] no active subscriptions during block %d, no allocations", detail.Height)
		}
		for _, sub := range subs {
			// Denominator is the pool's total hashrate, not the sum of local
			// subscriptions: the unallocated remainder accrues to the operator.
			share := decimal.NewFromFloat(sub.Hashrate / poolHashrate)
			allocated := bitcoinMined.Mul(share).Round(8)

			alloc := models.Allocation{
				SubscriptionID:   sub.ID,
				BlockID:          block.ID,
				Height:           block.Height,
				BitcoinAllocated: allocated,
			}
			if err := tx.Create(&alloc).Error; err != nil {
				return fmt.Errorf("allocate block %d to subscription %d: %w", block.Height, sub.ID, err)
			}
			totalAllocated = totalAllocated.Add(allocated)

			userID := sub.UserID
			notification, err := createNotification(tx, &userID,
				"New Block Mined!",
				fmt.Sprintf("Your %g TH/s contributed to Block #%d. You earned %s BTC.",
					sub.Hashrate, block.Height, allocated.StringFixed(8)),
				models.ImportanceNormal, "block")
			if err != nil {
				return err
			}
			n := notification
			emits = append(emits, func() {
				s.Pub.EmitToUser(userID, events.EventNewNotification, n)
			})
		}

		poolFees := totalAllocated.
			Mul(decimal.NewFromFloat(s.Tunables.PoolFeePercent)).
			Div(decimal.NewFromInt(100))

		log.Printf("[BlockIngest] block %d: allocated %s BTC across %d subscription(s)",
			block.Height, totalAllocated.StringFixed(8), len(subs))

		emits = append(emits, s.newBlockEmit(block, totalAllocated, poolFees))
		return s.advanceCursor(tx, detail.Hash)
	})
	if err != nil {
		return err
	}

	for _, emit := range emits {
		emit()
	}
	return nil
}

func (s *BlockIngestService) newBlockEmit(block models.Block, totalAllocated, poolFeesBTC decimal.Decimal) func() {
	ev := NewBlockEvent{
		BlockID:          block.ID,
		Height:           block.Height,
		BlockHash:        block.Hash,
		Timestamp:        block.Timestamp,
		BitcoinMined:     block.BitcoinMined,
		BitcoinAllocated: totalAllocated,
		PoolFees:         poolFeesBTC.Shift(8), // satoshis for display
		Size:             block.Size,
		Difficulty:       block.Difficulty,
	}
	return func() { s.Pub.Emit(events.EventNewBlock, ev) }
}

// Cursor returns the hash of the last block examined, or "" before the
// first tick.
func (s *BlockIngestService) Cursor() (string, error) {
	var meta models.Metadata
	err := s.DB.First(&meta, "key = ?", models.MetaLastBlockHash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return meta.Value, nil
}

func (s *BlockIngestService) advanceCursor(tx *gorm.DB, hash string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&models.Metadata{Key: models.MetaLastBlockHash, Value: hash}).Error
}
