package category

import (
	"errors"
	"strings"

	"debt-tracker-backend/internal/database"
	"debt-tracker-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var ErrDefaultCategory = errors.New("the default category cannot be deleted")

type CategoryResponse struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	UserID *uint  `json:"user_id"`
}

type CreateCategoryRequest struct {
	Name   string `json:"name"`
	UserID *uint  `json:"user_id"`
}

type UpdateCategoryRequest struct {
	Name *string `json:"name"`
}

func toResponse(cat models.Category) CategoryResponse {
	return CategoryResponse{ID: cat.ID, Name: cat.Name, UserID: cat.UserID}
}

func nameTaken(name string, exceptID uint) (bool, error) {
	var count int64
	err := database.DB.Model(&models.Category{}).
		Where("name = ? AND id <> ?", name, exceptID).
		Count(&count).Error
	return count > 0, err
}

func find(c *fiber.Ctx) (models.Category, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return models.Category{}, fiber.NewError(fiber.StatusBadRequest, "invalid category id")
	}

	var cat models.Category
	if err := database.DB.First(&cat, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Category{}, fiber.NewError(fiber.StatusNotFound, "category not found")
		}
		return models.Category{}, err
	}
	return cat, nil
}

// GET /api/categories (any authenticated user)
func ListCategoriesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var cats []models.Category
		if err := database.DB.Order("name asc").Find(&cats).Error; err != nil {
			return err
		}

		res := make([]CategoryResponse, 0, len(cats))
		for _, cat := range cats {
			res = append(res, toResponse(cat))
		}
		return c.JSON(res)
	}
}

// GET /api/admin/categories/:id
func GetCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cat, err := find(c)
		if err != nil {
			return err
		}
		return c.JSON(toResponse(cat))
	}
}

// POST /api/admin/categories
func CreateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateCategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}

		taken, err := nameTaken(body.Name, 0)
		if err != nil {
			return err
		}
		if taken {
			return fiber.NewError(fiber.StatusConflict, "category name already exists")
		}

		if body.UserID != nil {
			var count int64
			if err := database.DB.Model(&models.User{}).Where("id = ?", *body.UserID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fiber.NewError(fiber.StatusNotFound, "user not found")
			}
		}

		cat := models.Category{Name: body.Name, UserID: body.UserID}
		if err := database.DB.Omit("User").Create(&cat).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(toResponse(cat))
	}
}

// PUT /api/admin/categories/:id
func UpdateCategoryHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cat, err := find(c)
		if err != nil {
			return err
		}

		var body UpdateCategoryRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "name must not be empty")
			}
			taken, err := nameTaken(name, cat.ID)
			if err != nil {
				return err
			}
			if taken {
				return fiber.NewError(fiber.StatusConflict, "category name already exists")
			}
			if err := database.DB.Model(&cat).Update("name", name).Error; err != nil {
				return err
			}
			cat.Name = name
		}
		return c.JSON(toResponse(cat))
	}
}

// Delete removes a category together with its debts. The default category
// is refused with ErrDefaultCategory.
func Delete(db *gorm.DB, id, defaultCategoryID uint) error {
	if id == defaultCategoryID {
		return ErrDefaultCategory
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("category_id = ?", id).Delete(&models.Debt{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Category{}, id).Error
	})
}

// DELETE /api/admin/categories/:id
func DeleteCategoryHandler(defaultCategoryID uint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cat, err := find(c)
		if err != nil {
			return err
		}

		if err := Delete(database.DB.WithContext(c.UserContext()), cat.ID, defaultCategoryID); err != nil {
			if errors.Is(err, ErrDefaultCategory) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
