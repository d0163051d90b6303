package notify

import (
	"context"
	"math"
	"time"

	"github.com/bookfinder/apiserver/types"
)

// Notifier renders account emails. OTP mail goes straight to the Mailer,
// welcome mail through the Dispatcher.
type Notifier struct {
	mailer     Mailer
	dispatcher Dispatcher
	templates  *Templates
}

func NewNotifier(mailer Mailer, dispatcher Dispatcher, templates *Templates) *Notifier {
	if dispatcher == nil {
		dispatcher = NewDirectDispatcher(mailer)
	}
	if templates == nil {
		templates = NewTemplates(nil, nil)
	}
	return &Notifier{mailer: mailer, dispatcher: dispatcher, templates: templates}
}

func (n *Notifier) SendPasswordResetOTP(ctx context.Context, user types.User, otp string, ttl time.Duration) error {
	subject, body, err := n.templates.Render(ctx, TemplateOTP, OTPData{
		Username:         user.Username,
		OTP:              otp,
		ExpiresInMinutes: int(math.Ceil(ttl.Minutes())),
	})
	if err != nil {
		return err
	}
	return n.mailer.Send(ctx, Email{
		To:      user.Email,
		Subject: subject,
		Body:    body,
		Kind:    KindPasswordReset,
	})
}

func (n *Notifier) EnqueueWelcome(ctx context.Context, user types.User) error {
	subject, body, err := n.templates.Render(ctx, TemplateWelcome, WelcomeData{
		Username: user.Username,
		Email:    user.Email,
		Role:     string(user.Role),
	})
	if err != nil {
		return err
	}
	return n.dispatcher.Dispatch(ctx, Email{
		To:      user.Email,
		Subject: subject,
		Body:    body,
		Kind:    KindWelcome,
	})
}
