package billing

import (
	"fmt"

	"github.com/creditdesk/creditdesk/app/models"
	"github.com/creditdesk/creditdesk/internal/pkg/mail"
)

// MailNotifier sends payment confirmations over SMTP.
type MailNotifier struct{}

func NewMailNotifier() *MailNotifier {
	return &MailNotifier{}
}

func (n *MailNotifier) PaymentConfirmed(account *models.Account, tr *models.Transaction) error {
	if account.Email == "" {
		return nil
	}

	subject := "Your payment is confirmed"
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your payment <strong>%s</strong> over %.2f has been confirmed and %s credits were added to your account.</p>"+
			"<p>Thanks for using CreditDesk!</p>",
		account.Name, tr.PaymentID, tr.Amount, formatCredits(tr.Credits),
	)
	return mail.SendMail(account.Email, subject, body)
}
