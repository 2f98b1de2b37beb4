package debt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"debt-tracker-backend/internal/clock"
	"debt-tracker-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("debt not found")
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// farFuture stands in for "no date" in the priority keys so that those rows
// sort after every real due date.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

type Filter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Status    models.DebtStatus // empty means any
}

type Page struct {
	Number int
	Size   int
}

func (p Page) offset() int { return (p.Number - 1) * p.Size }

// ParseFilter validates raw query parameters. Empty values mean "not set".
func ParseFilter(startDate, endDate, search, status string) (Filter, error) {
	var f Filter

	if startDate != "" {
		d, err := clock.ParseDate(startDate)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: invalid start_date format, use YYYY-MM-DD", ErrValidation)
		}
		f.StartDate = &d
	}
	if endDate != "" {
		d, err := clock.ParseDate(endDate)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: invalid end_date format, use YYYY-MM-DD", ErrValidation)
		}
		f.EndDate = &d
	}

	f.Search = strings.TrimSpace(search)

	if status != "" {
		s := models.DebtStatus(status)
		if !s.Valid() {
			return Filter{}, fmt.Errorf("%w: invalid status value, valid options are: %s", ErrValidation, models.StatusChoices())
		}
		f.Status = s
	}
	return f, nil
}

func ParsePage(page, size string) (Page, error) {
	p := Page{Number: 1, Size: DefaultPageSize}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return Page{}, fmt.Errorf("%w: page must be a positive integer", ErrValidation)
		}
		p.Number = n
	}
	if size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 1 || n > MaxPageSize {
			return Page{}, fmt.Errorf("%w: page_size must be between 1 and %d", ErrValidation, MaxPageSize)
		}
		p.Size = n
	}
	return p, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func filtered(db *gorm.DB, userID uint, f Filter) *gorm.DB {
	q := db.Model(&models.Debt{}).Where("user_id = ?", userID)

	if f.StartDate != nil {
		q = q.Where("due_date >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		q = q.Where("due_date <= ?", *f.EndDate)
	}
	if f.Search != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(f.Search)) + "%"
		q = q.Where(`(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(COALESCE(notes, '')) LIKE ? ESCAPE '\')`, pattern, pattern)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	return q
}

// byPriority puts overdue debts first (oldest due date first), then pending
// debts by nearest due date, then everything else. Status and id break ties.
func byPriority() clause.OrderBy {
	return clause.OrderBy{Expression: clause.Expr{
		SQL: "CASE WHEN status = ? THEN due_date ELSE ? END, " +
			"CASE WHEN status = ? THEN due_date ELSE ? END, " +
			"status, id",
		Vars: []interface{}{
			models.DebtStatusOverdue, farFuture,
			models.DebtStatusPending, farFuture,
		},
		WithoutParentheses: true,
	}}
}

// List returns one page of the user's debts matching f in priority order,
// together with the number of matching debts.
func List(ctx context.Context, db *gorm.DB, userID uint, f Filter, p Page) ([]models.Debt, int64, error) {
	q := filtered(db.WithContext(ctx), userID, f).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count debts: %w", err)
	}

	debts := make([]models.Debt, 0, p.Size)
	if total == 0 {
		return debts, 0, nil
	}

	if err := q.Preload("Category").
		Clauses(byPriority()).
		Offset(p.offset()).
		Limit(p.Size).
		Find(&debts).Error; err != nil {
		return nil, 0, fmt.Errorf("list debts: %w", err)
	}
	return debts, total, nil
}

// ListAll is List without paging.
func ListAll(ctx context.Context, db *gorm.DB, userID uint, f Filter) ([]models.Debt, error) {
	debts := make([]models.Debt, 0)
	if err := filtered(db.WithContext(ctx), userID, f).
		Preload("Category").
		Clauses(byPriority()).
		Find(&debts).Error; err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	return debts, nil
}

// Get loads one of the user's debts. Debts of other users are reported as
// not found.
func Get(ctx context.Context, db *gorm.DB, userID, id uint) (models.Debt, error) {
	var d models.Debt
	err := db.WithContext(ctx).
		Preload("Category").
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Debt{}, ErrNotFound
	}
	if err != nil {
		return models.Debt{}, fmt.Errorf("get debt %d: %w", id, err)
	}
	return d, nil
}
