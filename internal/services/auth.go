package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bookfinder/apiserver/internal/logging"
	"github.com/bookfinder/apiserver/internal/store"
	"github.com/bookfinder/apiserver/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// DefaultOTPTTL is how long a password-reset OTP stays valid.
const DefaultOTPTTL = 10 * time.Minute

const (
	MsgRegistered      = "User registered successfully"
	MsgOTPSent         = "OTP sent to your email"
	MsgOTPVerified     = "OTP verified successfully"
	MsgPasswordReset   = "Password reset successfully"
	LoginStatusSuccess = "Success"
)

// UserRepository is the credential store used by the auth workflow.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
}

// Notifier delivers account emails.
type Notifier interface {
	// SendPasswordResetOTP returns once the OTP email has been delivered.
	SendPasswordResetOTP(ctx context.Context, user types.User, otp string, ttl time.Duration) error
	// EnqueueWelcome hands the welcome email to asynchronous delivery.
	EnqueueWelcome(ctx context.Context, user types.User) error
}

// AuthConfig carries the settings of the auth workflow.
type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TokenTTL time.Duration
	OTPTTL   time.Duration
	// PhoneRegion is the default region for mobile number normalization.
	PhoneRegion string
}

type RegisterInput struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	MobileNumber string `json:"mobileNumber"`
	Password     string `json:"password"`
	Role         string `json:"userRole"`
}

var printableName = regexp.MustCompile(`^[^\p{Cc}]+$`)

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Match(printableName).Error("must not contain control characters")),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.MobileNumber, validation.Required),
		validation.Field(&in.Password, validation.Required),
		validation.Field(&in.Role, validation.Required, validation.By(knownRole)),
	)
}

func knownRole(value interface{}) error {
	s, _ := value.(string)
	if !types.Role(s).Valid() {
		return errors.New("must be BookRecommender or BookReader")
	}
	return nil
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.Password, validation.Required),
	)
}

type OTPInput struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (in OTPInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.OTP, validation.Required),
	)
}

type ResetPasswordInput struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (in ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required),
		validation.Field(&in.OTP, validation.Required),
		validation.Field(&in.NewPassword, validation.Required),
	)
}

// AuthService runs registration, login and the OTP password-reset flow.
type AuthService struct {
	repo     UserRepository
	hasher   PasswordHasher
	tokens   *TokenIssuer
	notifier Notifier
	logger   logging.Logger

	otpTTL      time.Duration
	phoneRegion string
	now         func() time.Time
	newOTP      OTPGenerator

	mu         sync.Mutex
	closing    bool
	background sync.WaitGroup
}

type AuthOption func(*AuthService)

// WithClock overrides the time source of the workflow and its token issuer.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) {
		s.now = now
		s.tokens.now = now
	}
}

// WithOTPGenerator overrides how OTP codes are drawn.
func WithOTPGenerator(gen OTPGenerator) AuthOption {
	return func(s *AuthService) {
		s.newOTP = gen
	}
}

func NewAuthService(
	cfg AuthConfig,
	repo UserRepository,
	hasher PasswordHasher,
	notifier Notifier,
	logger logging.Logger,
	opts ...AuthOption,
) *AuthService {
	otpTTL := cfg.OTPTTL
	if otpTTL <= 0 {
		otpTTL = DefaultOTPTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &AuthService{
		repo:     repo,
		hasher:   hasher,
		notifier: notifier,
		logger:   logger.With("component", "auth"),
		tokens: NewTokenIssuer(TokenConfig{
			Secret:   cfg.Secret,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			TTL:      cfg.TokenTTL,
		}),
		otpTTL:      otpTTL,
		phoneRegion: cfg.PhoneRegion,
		now:         time.Now,
		newOTP:      RandomOTP,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the issuer so the HTTP layer can verify bearer tokens.
func (s *AuthService) Tokens() *TokenIssuer {
	return s.tokens
}

// Wait blocks until background welcome emails have been handed off.
func (s *AuthService) Wait() {
	s.background.Wait()
}

// Close stops scheduling welcome emails and waits for the pending ones.
// Registrations after Close still succeed without a welcome email.
func (s *AuthService) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.background.Wait()
}

// Register creates an account and schedules the welcome email.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.MobileNumber = strings.TrimSpace(in.MobileNumber)
	in.Role = strings.TrimSpace(in.Role)
	if err := validationFailure(in.Validate()); err != nil {
		return "", err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return "", ErrDuplicateAccount
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		Email:        in.Email,
		Username:     in.Username,
		MobileNumber: NormalizeMobileNumber(in.MobileNumber, s.phoneRegion),
		Role:         types.Role(in.Role),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", ErrDuplicateAccount
		}
		return "", fmt.Errorf("create user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	s.sendWelcome(ctx, user)

	return MsgRegistered, nil
}

// Login verifies credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validationFailure(in.Validate()); err != nil {
		return "", err
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// ForgotPassword issues a fresh OTP, replacing any active one, and emails it.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if err := validation.Validate(email, validation.Required); err != nil {
		return "", &ValidationError{Fields: map[string]string{"email": err.Error()}}
	}

	user, err := s.loadAccount(ctx, email)
	if err != nil {
		return "", err
	}

	otp := s.newOTP()
	expiry := s.now().Add(s.otpTTL)
	user.ResetOTP = &otp
	user.OTPExpiryTime = &expiry

	if _, err := s.repo.Update(ctx, user); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}

	if err := s.notifier.SendPasswordResetOTP(ctx, user, otp, s.otpTTL); err != nil {
		s.logger.Error(ctx, "otp email failed", "user_id", user.ID, "error", err)
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailure, err)
	}

	return MsgOTPSent, nil
}

// VerifyOtp checks the OTP without consuming it.
func (s *AuthService) VerifyOtp(ctx context.Context, in OTPInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validationFailure(in.Validate()); err != nil {
		return "", err
	}

	user, err := s.loadAccount(ctx, in.Email)
	if err != nil {
		return "", err
	}
	if err := s.checkOTP(user, in.OTP); err != nil {
		return "", err
	}
	return MsgOTPVerified, nil
}

// ResetPassword re-validates the OTP, replaces the password and clears the OTP.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validationFailure(in.Validate()); err != nil {
		return "", err
	}

	user, err := s.loadAccount(ctx, in.Email)
	if err != nil {
		return "", err
	}
	if err := s.checkOTP(user, in.OTP); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return "", err
	}
	user.PasswordHash = hash
	user.ClearReset()

	if _, err := s.repo.Update(ctx, user); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return MsgPasswordReset, nil
}

// UserByID returns the account behind a verified token subject.
func (s *AuthService) UserByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrAccountNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func (s *AuthService) loadAccount(ctx context.Context, email string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrAccountNotFound
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

// checkOTP matches first, then checks expiry.
func (s *AuthService) checkOTP(user types.User, candidate string) error {
	if !user.HasActiveReset() {
		return ErrInvalidOtp
	}
	if subtle.ConstantTimeCompare([]byte(*user.ResetOTP), []byte(candidate)) != 1 {
		return ErrInvalidOtp
	}
	if s.now().After(*user.OTPExpiryTime) {
		return ErrOtpExpired
	}
	return nil
}

func (s *AuthService) sendWelcome(ctx context.Context, user types.User) {
	if s.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.logger.Warn(ctx, "shutting down, welcome email skipped", "user_id", user.ID)
		return
	}
	s.background.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.background.Done()
		if err := s.notifier.EnqueueWelcome(ctx, user); err != nil {
			s.logger.Warn(ctx, "welcome email not dispatched", "user_id", user.ID, "error", err)
		}
	}()
}

func validationFailure(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for name, fieldErr := range fieldErrs {
			if fieldErr != nil {
				fields[name] = fieldErr.Error()
			}
		}
		return &ValidationError{Fields: fields}
	}
	return &ValidationError{Fields: map[string]string{"request": err.Error()}}
}
