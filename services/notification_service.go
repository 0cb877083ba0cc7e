// services/notification_service.go
package services

import (
	"hashrate-rental-system/events"
	"hashrate-rental-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// createNotification inserts a notification row inside the caller's
// transaction. userID nil makes it a broadcast notice. Push emission is the
// caller's job, strictly after its transaction commits.
func createNotification(tx *gorm.DB, userID *string, title, message string, importance models.NotificationImportance, icon string) (*models.Notification, error) {
	n := &models.Notification{
		UserID:     userID,
		Title:      title,
		Message:    message,
		Importance: importance,
		Icon:       icon,
	}
	if err := tx.Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

type NotificationService struct {
	DB  *gorm.DB
	Pub events.Publisher
}

func NewNotificationService(db *gorm.DB, pub events.Publisher) *NotificationService {
	return &NotificationService{DB: db, Pub: pub}
}

// GetUserNotifications lists the caller's notifications plus broadcasts.
func (s *NotificationService) GetUserNotifications(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var notifications []models.Notification
	if err := s.DB.
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "notifications": notifications})
}

// CreateNotification lets an admin push a notice to one user or everyone.
func (s *NotificationService) CreateNotification(c *fiber.Ctx) error {
	var req struct {
		UserID     *string `json:"user_id"`
		Title      string  `json:"title"`
		Message    string  `json:"message"`
		Importance string  `json:"importance"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Invalid request body.",
		})
	}
	importance := models.NotificationImportance(req.Importance)
	if req.Title == "" || req.Message == "" ||
		(importance != models.ImportanceNormal && importance != models.ImportanceImportant) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Invalid input data.",
		})
	}

	var notification *models.Notification
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		notification, err = createNotification(tx, req.UserID, req.Title, req.Message, importance, "default")
		return err
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}

	if req.UserID != nil {
		s.Pub.EmitToUser(*req.UserID, events.EventNewNotification, notification)
	} else {
		s.Pub.Emit(events.EventNewNotification, notification)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "notification": notification})
}

// MarkNotificationsAsRead marks the given ids as read for the caller.
func (s *NotificationService) MarkNotificationsAsRead(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		NotificationIDs []uint `json:"notificationIds"`
	}
	if err := c.BodyParser(&req); err != nil || len(req.NotificationIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false, "message": "Invalid notification IDs.",
		})
	}

	if err := s.DB.Model(&models.Notification{}).
		Where("id IN ? AND (user_id = ? OR user_id IS NULL)", req.NotificationIDs, userID).
		Update("is_read", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false, "message": "Internal server error.",
		})
	}
	return c.JSON(fiber.Map{"success": true, "message": "Notifications marked as read."})
}
