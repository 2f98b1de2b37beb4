package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DebtStatus string

const (
	DebtStatusPending DebtStatus = "Pending"
	DebtStatusPaid    DebtStatus = "Paid"
	DebtStatusOverdue DebtStatus = "Overdue"
)

var DebtStatuses = []DebtStatus{DebtStatusPending, DebtStatusOverdue, DebtStatusPaid}

func (s DebtStatus) Valid() bool {
	for _, v := range DebtStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// StatusChoices lists the valid labels for error messages: "Pending, Overdue, Paid".
func StatusChoices() string {
	labels := make([]string, len(DebtStatuses))
	for i, s := range DebtStatuses {
		labels[i] = string(s)
	}
	return strings.Join(labels, ", ")
}

type Debt struct {
	ID         uint            `gorm:"primaryKey"`
	Title      string          `gorm:"size:255;not null"`
	Amount     decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	DueDate    time.Time       `gorm:"type:date;index;not null"` // midnight UTC of the civil date
	Status     DebtStatus      `gorm:"size:20;index;not null;default:Pending"`
	Notes      *string         `gorm:"type:text"`
	UserID     uint            `gorm:"index;not null"`
	User       User            `gorm:"constraint:OnDelete:CASCADE"`
	CategoryID uint            `gorm:"index;not null"`
	Category   Category        `gorm:"constraint:OnDelete:CASCADE"`

	// Set by the sweep once the due-soon reminder went out. Never reset.
	EmailSentForDueSoon bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Debt) String() string {
	return fmt.Sprintf("%s - %s (%s)", d.Title, d.Amount.StringFixed(2), d.Status)
}
