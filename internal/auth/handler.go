package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"debt-tracker-backend/internal/config"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/logger"
	"debt-tracker-backend/internal/mailer"
	"debt-tracker-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID    uint            `json:"id"`
	Name  string          `json:"name"`
	Email string          `json:"email"`
	Role  models.UserRole `json:"role"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// SummaryFunc attaches per-user figures to the /auth/me response.
type SummaryFunc func(ctx context.Context, userID uint) (any, error)

func toUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

func parseRegister(c *fiber.Ctx) (RegisterRequest, error) {
	var body RegisterRequest
	if err := c.BodyParser(&body); err != nil {
		return body, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))

	if body.Name == "" || body.Email == "" || body.Password == "" {
		return body, fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
	}
	if _, err := mail.ParseAddress(body.Email); err != nil {
		return body, fiber.NewError(fiber.StatusBadRequest, "email is not valid")
	}
	if len(body.Password) < minPasswordLength {
		return body, fiber.NewError(fiber.StatusBadRequest, "password must be at least 8 characters")
	}
	return body, nil
}

func createUser(body RegisterRequest, role models.UserRole) (models.User, error) {
	var count int64
	if err := database.DB.Model(&models.User{}).Where("email = ?", body.Email).Count(&count).Error; err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, fiber.NewError(fiber.StatusConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Name:         body.Name,
		Email:        body.Email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := database.DB.Create(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// POST /api/auth/register
func RegisterHandler(sender mailer.Sender) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := parseRegister(c)
		if err != nil {
			return err
		}

		user, err := createUser(body, models.RoleUser)
		if err != nil {
			return err
		}

		// A lost welcome email does not undo the registration.
		if err := sender.Send(c.UserContext(), mailer.WelcomeMessage(user)); err != nil {
			logger.Log.Warn("welcome email failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}

		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// POST /api/auth/register-admin, only until the first administrator exists.
func RegisterAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, err := parseRegister(c)
		if err != nil {
			return err
		}

		var count int64
		if err := database.DB.Model(&models.User{}).
			Where("role = ?", models.RoleAdmin).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "an administrator already exists")
		}

		user, err := createUser(body, models.RoleAdmin)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toUserResponse(user))
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		var user models.User
		if err := database.DB.Where("email = ?", body.Email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
			}
			return err
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid email or password")
		}

		token, err := GenerateToken(cfg.JWT.Secret, cfg.JWT.TTL, &user)
		if err != nil {
			return err
		}

		return c.JSON(LoginResponse{Token: token, User: toUserResponse(user)})
	}
}

// GET /api/auth/me
func MeHandler(summary SummaryFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := UserID(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "user not found")
			}
			return err
		}

		resp := fiber.Map{"user": toUserResponse(user)}
		if summary != nil {
			s, err := summary(c.UserContext(), user.ID)
			if err != nil {
				return err
			}
			resp["summary"] = s
		}
		return c.JSON(resp)
	}
}
