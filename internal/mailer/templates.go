package mailer

import (
	"fmt"

	"debt-tracker-backend/internal/models"
)

func OverdueMessage(to string, d models.Debt) Message {
	return Message{
		To:      to,
		Subject: "Debt overdue!",
		Body:    fmt.Sprintf("Your debt: %s is overdue!", d),
	}
}

func DueSoonMessage(to string, d models.Debt) Message {
	return Message{
		To:      to,
		Subject: "Debt almost overdue!",
		Body:    fmt.Sprintf("Your debt: %s is due tomorrow!", d),
	}
}

func WelcomeMessage(u models.User) Message {
	return Message{
		To:      u.Email,
		Subject: "Welcome!",
		Body:    fmt.Sprintf("Hi %s, your account was created. You will get an email the day before a debt is due and when it becomes overdue.", u.Name),
	}
}
