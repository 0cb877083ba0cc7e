// services/block_service.go
package services

import (
	"time"

	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BlockService is the read-only HTTP surface over recorded blocks.
type BlockService struct {
	DB *gorm.DB
}

func NewBlockService(db *gorm.DB) *BlockService {
	return &BlockService{DB: db}
}

type blockView struct {
	BlockID      uint            `json:"blockId"`
	Height       int64           `json:"height"`
	BlockHash    string          `json:"blockHash"`
	Timestamp    time.Time       `json:"timestamp"`
	BitcoinMined decimal.Decimal `json:"bitcoinMined"`
}

// GetUserBlocks lists the blocks the caller's active subscriptions earned
// from.
func (s *BlockService) GetUserBlocks(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var rows []blockView
	err := s.DB.Model(&models.Block{}).
		Select("blocks.block_id, blocks.height, blocks.block_hash, blocks.timestamp, blocks.bitcoin_mined").
		Joins("JOIN subscription_blocks ON subscription_blocks.block_id = blocks.block_id").
		Joins("JOIN subscriptions ON subscriptions.subscription_id = subscription_blocks.subscription_id").
		Where("subscriptions.user_id = ? AND subscriptions.is_valid = ?", userID, true).
		Order("blocks.timestamp DESC").
		Scan(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Server Error: Unable to fetch blocks.",
		})
	}
	if rows == nil {
		rows = []blockView{}
	}
	return c.JSON(fiber.Map{"blocks": rows})
}

// GetAllBlocks lists every recorded operator block, newest first.
func (s *BlockService) GetAllBlocks(c *fiber.Ctx) error {
	var rows []blockView
	err := s.DB.Model(&models.Block{}).
		Select("block_id, height, block_hash, timestamp, bitcoin_mined").
		Order("timestamp DESC").
		Scan(&rows).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Server Error: Unable to fetch all blocks.",
		})
	}
	if rows == nil {
		rows = []blockView{}
	}
	return c.JSON(fiber.Map{"blocks": rows})
}
