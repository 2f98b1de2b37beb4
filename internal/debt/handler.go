package debt

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"debt-tracker-backend/internal/auth"
	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Amounts are stored as numeric(10,2).
var maxAmount = decimal.New(1, 8)

type CreateDebtRequest struct {
	Title      string             `json:"title"`
	Amount     *decimal.Decimal   `json:"amount"`
	DueDate    string             `json:"due_date"` // "2025-01-31"
	Status     *models.DebtStatus `json:"status"`
	Notes      *string            `json:"notes"`
	CategoryID *uint              `json:"category_id"` // default category when omitted
}

type UpdateDebtRequest struct {
	Title      *string            `json:"title"`
	Amount     *decimal.Decimal   `json:"amount"`
	DueDate    *string            `json:"due_date"`
	Status     *models.DebtStatus `json:"status"`
	Notes      *string            `json:"notes"`
	CategoryID *uint              `json:"category_id"`
}

type DebtResponse struct {
	ID                  uint              `json:"id"`
	Title               string            `json:"title"`
	Amount              string            `json:"amount"`
	DueDate             string            `json:"due_date"`
	Status              models.DebtStatus `json:"status"`
	Notes               *string           `json:"notes"`
	CategoryID          uint              `json:"category_id"`
	Category            string            `json:"category"`
	EmailSentForDueSoon bool              `json:"email_sent_for_due_soon"`
}

type ListResponse struct {
	Count    int64          `json:"count"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Results  []DebtResponse `json:"results"`
}

func toResponse(d models.Debt) DebtResponse {
	return DebtResponse{
		ID:                  d.ID,
		Title:               d.Title,
		Amount:              d.Amount.StringFixed(2),
		DueDate:             clock.FormatDate(d.DueDate),
		Status:              d.Status,
		Notes:               d.Notes,
		CategoryID:          d.CategoryID,
		Category:            d.Category.Name,
		EmailSentForDueSoon: d.EmailSentForDueSoon,
	}
}

// httpError maps domain errors onto fiber errors; anything else is left for
// the app error handler to report as 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, strings.TrimPrefix(err.Error(), ErrValidation.Error()+": "))
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "debt not found")
	}
	return err
}

func validateAmount(a decimal.Decimal) error {
	if a.IsNegative() {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if !a.Equal(a.Round(2)) {
		return fmt.Errorf("%w: amount has more than 2 decimal places", ErrValidation)
	}
	if !a.LessThan(maxAmount) {
		return fmt.Errorf("%w: amount is too large", ErrValidation)
	}
	return nil
}

// validateStatus checks a manually set status. prev is the stored status, or
// empty on create. Paid is always allowed, Pending is allowed whatever the due
// date (the sweep moves it on), Overdue only once the due date has passed.
// Overdue never goes back to Pending.
func validateStatus(prev, next models.DebtStatus, due, today time.Time) error {
	switch next {
	case models.DebtStatusPaid:
		return nil
	case models.DebtStatusPending:
		if prev == models.DebtStatusOverdue {
			return fmt.Errorf("%w: an %s debt cannot go back to %s", ErrValidation, prev, next)
		}
		return nil
	case models.DebtStatusOverdue:
		if !due.Before(today) {
			return fmt.Errorf("%w: a debt that is not past its due date cannot be %s", ErrValidation, next)
		}
		return nil
	}
	return fmt.Errorf("%w: invalid status value, valid options are: %s", ErrValidation, models.StatusChoices())
}

func categoryExists(db *gorm.DB, id uint) error {
	var count int64
	if err := db.Model(&models.Category{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fiber.NewError(fiber.StatusNotFound, "category not found")
	}
	return nil
}

func debtID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid debt id")
	}
	return uint(id), nil
}

func parseQuery(c *fiber.Ctx) (Filter, error) {
	f, err := ParseFilter(c.Query("start_date"), c.Query("end_date"), c.Query("search"), c.Query("status"))
	if err != nil {
		return Filter{}, httpError(err)
	}
	return f, nil
}

// GET /api/debts?start_date=&end_date=&search=&status=&page=&page_size=
func ListDebtsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		f, err := parseQuery(c)
		if err != nil {
			return err
		}
		p, err := ParsePage(c.Query("page"), c.Query("page_size"))
		if err != nil {
			return httpError(err)
		}

		debts, total, err := List(c.UserContext(), database.DB, userID, f, p)
		if err != nil {
			return err
		}

		resp := ListResponse{
			Count:    total,
			Page:     p.Number,
			PageSize: p.Size,
			Results:  make([]DebtResponse, 0, len(debts)),
		}
		for _, d := range debts {
			resp.Results = append(resp.Results, toResponse(d))
		}
		return c.JSON(resp)
	}
}

// GET /api/debts/export, same filters as the list, xlsx body.
func ExportDebtsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		f, err := parseQuery(c)
		if err != nil {
			return err
		}

		debts, err := ListAll(c.UserContext(), database.DB, userID, f)
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := WriteWorkbook(&buf, debts); err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Attachment("debts.xlsx")
		return c.Send(buf.Bytes())
	}
}

// GET /api/debts/summary
func SummaryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		s, err := Summarize(c.UserContext(), database.DB, userID)
		if err != nil {
			return err
		}
		return c.JSON(s.Response())
	}
}

// POST /api/debts
func CreateDebtHandler(clk clock.Clock, defaultCategoryID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}

		var body CreateDebtRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Title = strings.TrimSpace(body.Title)
		if body.Title == "" || body.Amount == nil || body.DueDate == "" {
			return fiber.NewError(fiber.StatusBadRequest, "title, amount and due_date are required")
		}
		if err := validateAmount(*body.Amount); err != nil {
			return httpError(err)
		}

		due, err := clock.ParseDate(body.DueDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "due_date must be YYYY-MM-DD")
		}

		status := models.DebtStatusPending
		if body.Status != nil {
			status = *body.Status
		}
		if err := validateStatus("", status, due, clk.Today()); err != nil {
			return httpError(err)
		}

		categoryID := defaultCategoryID
		if body.CategoryID != nil {
			categoryID = *body.CategoryID
		}
		if err := categoryExists(database.DB, categoryID); err != nil {
			return err
		}

		d := models.Debt{
			Title:      body.Title,
			Amount:     body.Amount.Round(2),
			DueDate:    due,
			Status:     status,
			Notes:      body.Notes,
			UserID:     userID,
			CategoryID: categoryID,
		}
		if err := database.DB.WithContext(c.UserContext()).Omit("User", "Category").Create(&d).Error; err != nil {
			return err
		}

		created, err := Get(c.UserContext(), database.DB, userID, d.ID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(created))
	}
}

// GET /api/debts/:id
func GetDebtHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := debtID(c)
		if err != nil {
			return err
		}

		d, err := Get(c.UserContext(), database.DB, userID, id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(toResponse(d))
	}
}

// PUT /api/debts/:id
func UpdateDebtHandler(clk clock.Clock) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := debtID(c)
		if err != nil {
			return err
		}

		d, err := Get(c.UserContext(), database.DB, userID, id)
		if err != nil {
			return httpError(err)
		}

		var body UpdateDebtRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		updates := map[string]interface{}{}

		if body.Title != nil {
			title := strings.TrimSpace(*body.Title)
			if title == "" {
				return fiber.NewError(fiber.StatusBadRequest, "title must not be empty")
			}
			updates["title"] = title
		}
		if body.Amount != nil {
			if err := validateAmount(*body.Amount); err != nil {
				return httpError(err)
			}
			updates["amount"] = body.Amount.Round(2)
		}
		if body.DueDate != nil {
			due, err := clock.ParseDate(*body.DueDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "due_date must be YYYY-MM-DD")
			}
			d.DueDate = due
			updates["due_date"] = due
		}
		prev := d.Status
		if body.Status != nil {
			d.Status = *body.Status
			updates["status"] = d.Status
		}
		if body.Status != nil || body.DueDate != nil {
			if err := validateStatus(prev, d.Status, d.DueDate, clk.Today()); err != nil {
				return httpError(err)
			}
		}
		if body.Notes != nil {
			updates["notes"] = *body.Notes
		}
		if body.CategoryID != nil {
			if err := categoryExists(database.DB, *body.CategoryID); err != nil {
				return err
			}
			updates["category_id"] = *body.CategoryID
		}

		if len(updates) > 0 {
			if err := database.DB.WithContext(c.UserContext()).
				Model(&models.Debt{}).
				Where("id = ? AND user_id = ?", id, userID).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		updated, err := Get(c.UserContext(), database.DB, userID, id)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(toResponse(updated))
	}
}

// DELETE /api/debts/:id
func DeleteDebtHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := auth.UserID(c)
		if err != nil {
			return err
		}
		id, err := debtID(c)
		if err != nil {
			return err
		}

		res := database.DB.WithContext(c.UserContext()).
			Where("id = ? AND user_id = ?", id, userID).
			Delete(&models.Debt{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusNotFound, "debt not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
