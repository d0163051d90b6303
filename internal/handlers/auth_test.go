package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bookfinder/apiserver/internal/reporting"
	"github.com/bookfinder/apiserver/internal/services"
	"github.com/bookfinder/apiserver/internal/store"
	"github.com/bookfinder/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memRepo struct {
	mu    sync.Mutex
	users []types.User
	err   error
}

func (r *memRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.User{}, r.err
	}
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = len(r.users) + 1
	r.users = append(r.users, user)
	return user, nil
}

func (r *memRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID == user.ID {
			r.users[i] = user
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

type stubNotifier struct {
	mu      sync.Mutex
	lastOTP string
	otpErr  error
}

func (n *stubNotifier) SendPasswordResetOTP(_ context.Context, _ types.User, otp string, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.otpErr != nil {
		return n.otpErr
	}
	n.lastOTP = otp
	return nil
}

func (n *stubNotifier) EnqueueWelcome(context.Context, types.User) error { return nil }

type apiFixture struct {
	router   *chi.Mux
	auth     *services.AuthService
	repo     *memRepo
	notifier *stubNotifier
	now      time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := &apiFixture{
		repo:     &memRepo{},
		notifier: &stubNotifier{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.auth = services.NewAuthService(
		services.AuthConfig{Secret: "handler-secret", Issuer: "bookfinder", Audience: "bookfinder-app"},
		f.repo,
		services.NewBcryptHasher(bcrypt.MinCost),
		f.notifier,
		nil,
		services.WithClock(func() time.Time { return f.now }),
	)
	t.Cleanup(f.auth.Wait)

	f.router = chi.NewRouter()
	f.router.Get("/healthz", Healthz)
	f.router.Route("/api", func(r chi.Router) {
		AuthRouter(r, f.auth, reporting.Disabled(), nil)
		r.With(RequireAuth(f.auth.Tokens()), RequireRole(types.RoleBookRecommender)).
			Post("/books", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func registerBody(email, role string) map[string]string {
	return map[string]string{
		"username":     "alice",
		"email":        email,
		"mobileNumber": "+16502530000",
		"password":     "Secr3t!",
		"userRole":     role,
	}
}

func (f *apiFixture) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "Success", resp.Status)
	return resp.Token
}

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, services.MsgRegistered, decodeBody[MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decodeBody[MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/api/register", registerBody("bob@example.com", "Admin"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[MessageResponse](t, rec)
	assert.Equal(t, "Validation failed", resp.Message)
	assert.Contains(t, resp.Details, "userRole")
}

func TestRegisterEndpoint_MalformedJSON(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request", decodeBody[MessageResponse](t, rec).Message)
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")

	token := f.login(t, "alice@example.com", "Secr3t!")
	assert.NotEmpty(t, token)

	wrong := f.do(t, http.MethodPost, "/api/login", map[string]string{"email": "alice@example.com", "password": "bad"}, "")
	unknown := f.do(t, http.MethodPost, "/api/login", map[string]string{"email": "ghost@example.com", "password": "bad"}, "")
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	missing := f.do(t, http.MethodPost, "/api/login", map[string]string{"email": "alice@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestMeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")
	token := f.login(t, "alice@example.com", "Secr3t!")

	rec := f.do(t, http.MethodGet, "/api/me", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"email":"alice@example.com"`)
	assert.Contains(t, body, `"userRole":"BookReader"`)
	assert.NotContains(t, body, "Secr3t!")
	assert.NotContains(t, body, "password")

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/me", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/me", nil, "garbage").Code)

	f.now = f.now.Add(2 * time.Hour)
	rec = f.do(t, http.MethodGet, "/api/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token expired", decodeBody[MessageResponse](t, rec).Message)
}

func TestRequireRole(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("reader@example.com", "BookReader"), "")
	f.do(t, http.MethodPost, "/api/register", registerBody("rec@example.com", "BookRecommender"), "")

	readerToken := f.login(t, "reader@example.com", "Secr3t!")
	recToken := f.login(t, "rec@example.com", "Secr3t!")

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/api/books", nil, readerToken).Code)
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/books", nil, recToken).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/books", nil, "").Code)
}

func TestPasswordRecoveryEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")

	rec := f.do(t, http.MethodPost, "/api/forgot-password", map[string]string{"email": "ghost@example.com"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Account not found", decodeBody[MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/api/forgot-password", map[string]string{"email": "alice@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[MessageResponse](t, rec)
	assert.Equal(t, services.MsgOTPSent, resp.Message)
	otp := f.notifier.lastOTP
	require.Len(t, otp, 6)
	assert.NotContains(t, rec.Body.String(), otp)

	rec = f.do(t, http.MethodPost, "/api/verify-otp", map[string]string{"email": "alice@example.com", "otp": "abcdef"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP", decodeBody[MessageResponse](t, rec).Message)

	rec = f.do(t, http.MethodPost, "/api/verify-otp", map[string]string{"email": "alice@example.com", "otp": otp}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "alice@example.com", "otp": otp, "newPassword": "N3wPass!"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.MsgPasswordReset, decodeBody[MessageResponse](t, rec).Message)

	f.login(t, "alice@example.com", "N3wPass!")

	rec = f.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "alice@example.com", "otp": otp, "newPassword": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyOtpEndpoint_Expired(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forgot-password", map[string]string{"email": "alice@example.com"}, "").Code)

	f.now = f.now.Add(11 * time.Minute)
	rec := f.do(t, http.MethodPost, "/api/verify-otp", map[string]string{"email": "alice@example.com", "otp": f.notifier.lastOTP}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OTP has expired", decodeBody[MessageResponse](t, rec).Message)
}

func TestForgotPasswordEndpoint_DeliveryFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/register", registerBody("alice@example.com", "BookReader"), "")
	f.notifier.otpErr = errors.New("smtp down")

	rec := f.do(t, http.MethodPost, "/api/forgot-password", map[string]string{"email": "alice@example.com"}, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Failed to send OTP email", decodeBody[MessageResponse](t, rec).Message)
}

func TestInternalErrorIsGeneric(t *testing.T) {
	f := newAPIFixture(t)
	f.repo.err = errors.New("pq: connection refused")

	rec := f.do(t, http.MethodPost, "/api/login", map[string]string{"email": "alice@example.com", "password": "x"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAccountRecoveryScenario(t *testing.T) {
	f := newAPIFixture(t)

	body := registerBody("alice@example.com", "BookReader")
	body["password"] = "Passw0rd!"
	assert.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/register", body, "").Code)

	rec := f.do(t, http.MethodPost, "/api/register", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "User already exists", decodeBody[MessageResponse](t, rec).Message)

	assert.NotEmpty(t, f.login(t, "alice@example.com", "Passw0rd!"))
	rec = f.do(t, http.MethodPost, "/api/login", map[string]string{"email": "alice@example.com", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/forgot-password", map[string]string{"email": "alice@example.com"}, "").Code)
	stored, err := f.repo.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.True(t, stored.HasActiveReset())
	otp := *stored.ResetOTP

	wrong := "100000"
	if otp == wrong {
		wrong = "100001"
	}
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/verify-otp", map[string]string{"email": "alice@example.com", "otp": wrong}, "").Code)

	rec = f.do(t, http.MethodPost, "/api/reset-password", map[string]string{"email": "alice@example.com", "otp": otp, "newPassword": "NewPass1!"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.NotEmpty(t, f.login(t, "alice@example.com", "NewPass1!"))
}
