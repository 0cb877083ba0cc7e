// services/wallet_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WalletService owns the per-user BTC ledger and the withdrawal request
// state machine. Every transition is one transaction with row locks on both
// the wallet and the request, so concurrent admin actions and a settlement
// sweep crediting the same wallet serialize correctly.
type WalletService struct {
	DB       *gorm.DB
	Prices   PriceSource
	Pub      events.Publisher
	Tunables Tunables
}

func NewWalletService(db *gorm.DB, prices PriceSource, pub events.Publisher, cfg Tunables) *WalletService {
	return &WalletService{DB: db, Prices: prices, Pub: pub, Tunables: cfg}
}

// GetOrCreate returns the user's wallet, creating an empty one on first
// touch.
func (s *WalletService) GetOrCreate(userID string) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.DB.Where("user_id = ?", userID).First(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	wallet = models.Wallet{
		UserID:            userID,
		AvailableBTC:      decimal.Zero,
		PendingWithdrawal: decimal.Zero,
	}
	if err := s.DB.Create(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// BankDetails is the payout destination captured with a withdrawal request.
type BankDetails struct {
	BankName          string `json:"bank_name"`
	BankAccountNumber string `json:"bank_account_number"`
	AccountHolderName string `json:"account_holder_name"`
}

// CreateWithdrawal moves amount from available to pending and opens a
// Pending request. The local-currency figure is a snapshot of the spot
// price at request time.
func (s *WalletService) CreateWithdrawal(userID string, amount decimal.Decimal, bank BankDetails) (*models.WithdrawalRequest, error) {
	if amount.IsZero() || amount.IsNegative() {
		return nil, fmt.Errorf("%w: valid withdrawal amount is required", ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	rate, err := s.Prices.Price(ctx, "BTC", s.Tunables.LocalCurrency)
	if err != nil {
		return nil, fmt.Errorf("fetch %s rate: %w", s.Tunables.LocalCurrency, err)
	}
	amountLocal := amount.Mul(rate).Round(2)

	var request *models.WithdrawalRequest
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var wallet models.Wallet
		if err := forUpdate(tx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: wallet", ErrNotFound)
			}
			return err
		}

		if amount.GreaterThan(wallet.AvailableBTC) {
			return fmt.Errorf("%w: requested %s, available %s",
				ErrInsufficientBalance, amount.StringFixed(8), wallet.AvailableBTC.StringFixed(8))
		}

		wallet.AvailableBTC = wallet.AvailableBTC.Sub(amount)
		wallet.PendingWithdrawal = wallet.PendingWithdrawal.Add(amount)
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}

		request = &models.WithdrawalRequest{
			Reference:         uuid.NewString(),
			UserID:            userID,
			AmountBTC:         amount,
			AmountLocal:       amountLocal,
			BankName:          bank.BankName,
			BankAccountNumber: bank.BankAccountNumber,
			AccountHolderName: bank.AccountHolderName,
			Status:            models.WithdrawalPending,
		}
		return tx.Create(request).Error
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// transition applies fn to a locked (request, wallet) pair and inserts the
// admin-facing notification it returns.
func (s *WalletService) transition(id uint, fn func(tx *gorm.DB, req *models.WithdrawalRequest, wallet *models.Wallet) (title, message, icon string, err error)) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&request, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: withdrawal request", ErrNotFound)
			}
			return err
		}
		var wallet models.Wallet
		if err := forUpdate(tx).Where("user_id = ?", request.UserID).First(&wallet).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: wallet", ErrNotFound)
			}
			return err
		}

		title, message, icon, err := fn(tx, &request, &wallet)
		if err != nil {
			return err
		}
		if wallet.AvailableBTC.IsNegative() || wallet.PendingWithdrawal.IsNegative() {
			return fmt.Errorf("wallet balance for user %s would go negative", request.UserID)
		}
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}
		if err := tx.Save(&request).Error; err != nil {
			return err
		}

		userID := request.UserID
		_, err = createNotification(tx, &userID, title, message, models.ImportanceImportant, icon)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Pub.EmitToUser(request.UserID, events.EventNewNotification, fiber.Map{
		"withdrawal": request,
	})
	return &request, nil
}

// Process marks a Pending request paid out: the reserved amount leaves the
// wallet entirely.
func (s *WalletService) Process(id uint) (*models.WithdrawalRequest, error) {
	return s.transition(id, func(tx *gorm.DB, req *models.WithdrawalRequest, wallet *models.Wallet) (string, string, string, error) {
		if req.Status != models.WithdrawalPending {
			return "", "", "", fmt.Errorf("%w: only pending withdrawals can be processed", ErrValidation)
		}
		wallet.PendingWithdrawal = wallet.PendingWithdrawal.Sub(req.AmountBTC)
		req.Status = models.WithdrawalProcessed
		return "Withdrawal Processed",
			fmt.Sprintf("Your withdrawal of %s BTC has been successfully processed.", req.AmountBTC.StringFixed(8)),
			"withdrawal_processed", nil
	})
}

// Reject returns a Pending request's amount to the available balance.
func (s *WalletService) Reject(id uint) (*models.WithdrawalRequest, error) {
	return s.transition(id, func(tx *gorm.DB, req *models.WithdrawalRequest, wallet *models.Wallet) (string, string, string, error) {
		if req.Status != models.WithdrawalPending {
			return "", "", "", fmt.Errorf("%w: only pending withdrawals can be rejected", ErrValidation)
		}
		wallet.AvailableBTC = wallet.AvailableBTC.Add(req.AmountBTC)
		wallet.PendingWithdrawal = wallet.PendingWithdrawal.Sub(req.AmountBTC)
		req.Status = models.WithdrawalRejected
		return "Withdrawal Rejected",
			fmt.Sprintf("Your withdrawal request of %s BTC was rejected by the admin.", req.AmountBTC.StringFixed(8)),
			"withdrawal_rejected", nil
	})
}

// Review moves a Processed or Rejected request back to Pending. Reopening a
// rejected request re-reserves the amount, so it needs sufficient available
// balance; reopening a processed one only restores the pending hold.
func (s *WalletService) Review(id uint) (*models.WithdrawalRequest, error) {
	return s.transition(id, func(tx *gorm.DB, req *models.WithdrawalRequest, wallet *models.Wallet) (string, string, string, error) {
		switch req.Status {
		case models.WithdrawalRejected:
			if wallet.AvailableBTC.LessThan(req.AmountBTC) {
				return "", "", "", fmt.Errorf("%w: cannot reopen withdrawal of %s BTC",
					ErrInsufficientBalance, req.AmountBTC.StringFixed(8))
			}
			wallet.AvailableBTC = wallet.AvailableBTC.Sub(req.AmountBTC)
			wallet.PendingWithdrawal = wallet.PendingWithdrawal.Add(req.AmountBTC)
		case models.WithdrawalProcessed:
			wallet.PendingWithdrawal = wallet.PendingWithdrawal.Add(req.AmountBTC)
		default:
			return "", "", "", fmt.Errorf("%w: withdrawal is already pending", ErrValidation)
		}
		req.Status = models.WithdrawalPending
		return "Withdrawal Reviewed",
			fmt.Sprintf("Your withdrawal request of %s BTC is being reviewed by the admin.", req.AmountBTC.StringFixed(8)),
			"withdrawal_reviewed", nil
	})
}

// Delete lets the owner cancel a still-Pending request; the amount returns
// to the available balance and the row is removed.
func (s *WalletService) Delete(id uint, userID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var request models.WithdrawalRequest
		if err := forUpdate(tx).Where("id = ? AND user_id = ?", id, userID).First(&request).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: withdrawal request", ErrNotFound)
			}
			return err
		}
		if request.Status != models.WithdrawalPending {
			return fmt.Errorf("%w: cannot delete a processed or rejected withdrawal", ErrValidation)
		}

		var wallet models.Wallet
		if err := forUpdate(tx).Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			return err
		}
		wallet.AvailableBTC = wallet.AvailableBTC.Add(request.AmountBTC)
		wallet.PendingWithdrawal = wallet.PendingWithdrawal.Sub(request.AmountBTC)
		if wallet.PendingWithdrawal.IsNegative() {
			return fmt.Errorf("wallet balance for user %s would go negative", userID)
		}
		if err := tx.Save(&wallet).Error; err != nil {
			return err
		}
		return tx.Delete(&request).Error
	})
}

// --- HTTP surface ---

func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	wallet, err := s.GetOrCreate(userID)
	if err != nil {
		log.Printf("Error fetching wallet: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "wallet": wallet})
}

func (s *WalletService) CreateWithdrawalRequest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		AmountBTC decimal.Decimal `json:"amount_btc"`
		BankDetails
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Valid withdrawal amount is required.",
		})
	}

	request, err := s.CreateWithdrawal(userID, req.AmountBTC, req.BankDetails)
	if err != nil {
		return s.mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "withdrawalRequest": request})
}

func (s *WalletService) ListUserWithdrawals(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var withdrawals []models.WithdrawalRequest
	if err := s.DB.Where("user_id = ?", userID).Order("created_at DESC").Find(&withdrawals).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "withdrawals": withdrawals})
}

// ListAllWithdrawals is the admin view, categorized by status.
func (s *WalletService) ListAllWithdrawals(c *fiber.Ctx) error {
	byStatus := func(status models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
		var rows []models.WithdrawalRequest
		err := s.DB.Where("status = ?", status).Order("created_at DESC").Find(&rows).Error
		return rows, err
	}

	pending, err := byStatus(models.WithdrawalPending)
	if err == nil {
		var processed, rejected []models.WithdrawalRequest
		processed, err = byStatus(models.WithdrawalProcessed)
		if err == nil {
			rejected, err = byStatus(models.WithdrawalRejected)
			if err == nil {
				return c.JSON(fiber.Map{
					"success":   true,
					"pending":   pending,
					"processed": processed,
					"rejected":  rejected,
				})
			}
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false, "message": "Internal server error.",
	})
}

func (s *WalletService) ProcessWithdrawal(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid withdrawal id."})
	}
	request, err := s.Process(uint(id))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Withdrawal successfully processed.", "withdrawal": request})
}

func (s *WalletService) RejectWithdrawal(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid withdrawal id."})
	}
	request, err := s.Reject(uint(id))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Withdrawal successfully rejected.", "withdrawal": request})
}

func (s *WalletService) ReviewWithdrawal(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid withdrawal id."})
	}
	request, err := s.Review(uint(id))
	if err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"message":    "Withdrawal request has been reviewed and moved back to pending.",
		"withdrawal": request,
	})
}

func (s *WalletService) DeleteWithdrawal(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid withdrawal id."})
	}
	if err := s.Delete(uint(id), userID); err != nil {
		return s.mapError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Withdrawal request deleted successfully."})
}

func (s *WalletService) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientBalance):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": err.Error()})
	case errors.Is(err, ErrUpstreamUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"success": false, "message": "Price service unavailable, try again."})
	default:
		log.Printf("Wallet operation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Internal server error."})
	}
}
