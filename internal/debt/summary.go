package debt

import (
	"context"
	"fmt"

	"debt-tracker-backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Bucket struct {
	Count int64
	Sum   decimal.Decimal
}

// Summary is a point-in-time snapshot of one user's debts. Total is the sum
// of the three status buckets, so the figures always add up.
type Summary struct {
	Total   Bucket
	Paid    Bucket
	Overdue Bucket
	Pending Bucket
}

type SummaryResponse struct {
	TotalDebts          int64  `json:"total_debts"`
	TotalDebtsAmountSum string `json:"total_debts_amount_sum"`
	TotalPaidDebts      int64  `json:"total_paid_debts"`
	TotalPaidDebtsSum   string `json:"total_paid_debts_sum"`
	TotalOverdueDebts   int64  `json:"total_overdue_debts"`
	TotalOverdueSum     string `json:"total_overdue_debts_sum"`
	TotalPendingDebts   int64  `json:"total_pending_debts"`
	TotalPendingSum     string `json:"total_pending_debts_sum"`
}

func (s Summary) Response() SummaryResponse {
	return SummaryResponse{
		TotalDebts:          s.Total.Count,
		TotalDebtsAmountSum: s.Total.Sum.StringFixed(2),
		TotalPaidDebts:      s.Paid.Count,
		TotalPaidDebtsSum:   s.Paid.Sum.StringFixed(2),
		TotalOverdueDebts:   s.Overdue.Count,
		TotalOverdueSum:     s.Overdue.Sum.StringFixed(2),
		TotalPendingDebts:   s.Pending.Count,
		TotalPendingSum:     s.Pending.Sum.StringFixed(2),
	}
}

func Summarize(ctx context.Context, db *gorm.DB, userID uint) (Summary, error) {
	type row struct {
		Status models.DebtStatus
		Count  int64
		Total  decimal.Decimal
	}
	var rows []row

	if err := db.WithContext(ctx).
		Model(&models.Debt{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return Summary{}, fmt.Errorf("summarize debts: %w", err)
	}

	s := Summary{
		Total:   Bucket{Sum: decimal.Zero},
		Paid:    Bucket{Sum: decimal.Zero},
		Overdue: Bucket{Sum: decimal.Zero},
		Pending: Bucket{Sum: decimal.Zero},
	}
	for _, r := range rows {
		b := Bucket{Count: r.Count, Sum: r.Total.Round(2)}
		switch r.Status {
		case models.DebtStatusPaid:
			s.Paid = b
		case models.DebtStatusOverdue:
			s.Overdue = b
		case models.DebtStatusPending:
			s.Pending = b
		default:
			continue
		}
		s.Total.Count += b.Count
		s.Total.Sum = s.Total.Sum.Add(b.Sum)
	}
	return s, nil
}
