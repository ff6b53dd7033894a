package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/ratelimit"
)

type memStore struct {
	mu     sync.Mutex
	users  map[int64]*User
	nextID int64
	failOn string
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*User{}}
}

func (m *memStore) fail(op string) error {
	if m.failOn == op {
		return errors.New("db down")
	}
	return nil
}

func (m *memStore) ExistsByEmailOrMobile(_ context.Context, email, mobile string) (bool, error) {
	if err := m.fail("exists"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.MobileNumber == mobile {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CreateUser(_ context.Context, u *User, _ Profile) (*User, error) {
	if err := m.fail("create"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	cp := *u
	m.users[u.ID] = &cp
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SetOTP(_ context.Context, id int64, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.OTPHash = sql.NullString{String: hash, Valid: true}
	u.OTPExpiresAt = sql.NullTime{Time: expiresAt, Valid: true}
	return nil
}

func (m *memStore) MarkVerified(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	u.IsVerified = true
	u.OTPHash = sql.NullString{}
	u.OTPExpiresAt = sql.NullTime{}
	return nil
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = hash
	return nil
}

func (m *memStore) SearchUsers(_ context.Context, query string, role identity.Role) ([]PublicUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []PublicUser{}
	for _, u := range m.users {
		if u.Role == role && strings.Contains(u.FullName, query) {
			out = append(out, PublicUser{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role})
		}
	}
	return out, nil
}

type fakeMailer struct {
	SendOTPFunc   func(ctx context.Context, email, otp string) error
	SendResetFunc func(ctx context.Context, email, link string) error

	lastOTP  string
	lastLink string
}

func (f *fakeMailer) SendOTP(ctx context.Context, email, otp string) error {
	f.lastOTP = otp
	if f.SendOTPFunc != nil {
		return f.SendOTPFunc(ctx, email, otp)
	}
	return nil
}

func (f *fakeMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	f.lastLink = link
	if f.SendResetFunc != nil {
		return f.SendResetFunc(ctx, email, link)
	}
	return nil
}

type fakeLimiter struct {
	AllowFunc func(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	resets    int
}

func (f *fakeLimiter) Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error) {
	if f.AllowFunc != nil {
		return f.AllowFunc(ctx, identifier, rule)
	}
	return true, nil
}

func (f *fakeLimiter) Reset(context.Context, string, ratelimit.Rule) error {
	f.resets++
	return nil
}

func newTestService(store Store, mailer Mailer, limiter Limiter) *Service {
	svc := NewService(store, mailer, limiter, "test-secret", Options{
		TokenTTL:      time.Hour,
		ResetTokenTTL: 15 * time.Minute,
		OTPTTL:        10 * time.Minute,
		FrontendURL:   "http://app.test",
	}, zap.NewNop())
	svc.otp = func() (string, error) { return "123456", nil }
	return svc
}

func validRegister() *RegisterRequest {
	return &RegisterRequest{
		FullName:     "Asha Mills",
		Email:        "  Asha@Example.com ",
		Password:     "secret1",
		MobileNumber: "9000000001",
		Role:         "factory_owner",
		Profile:      Profile{CompanyName: "Asha Textiles"},
	}
}

// registerAndVerify returns a verified user's email.
func registerAndVerify(t *testing.T, svc *Service) string {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "123456"}); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	return "asha@example.com"
}

func TestRegister(t *testing.T) {
	store := newMemStore()
	mailer := &fakeMailer{}
	svc := newTestService(store, mailer, nil)

	res, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.UserID != 1 {
		t.Errorf("UserID = %d, want 1", res.UserID)
	}
	if mailer.lastOTP != "123456" {
		t.Errorf("mailed otp = %q", mailer.lastOTP)
	}

	u, _ := store.GetUserByID(context.Background(), 1)
	if u.Email != "asha@example.com" {
		t.Errorf("email not normalized: %q", u.Email)
	}
	if u.IsVerified {
		t.Error("new user must not be verified")
	}
	if u.OTPHash.String == "123456" || bcrypt.CompareHashAndPassword([]byte(u.OTPHash.String), []byte("123456")) != nil {
		t.Error("otp must be stored as a bcrypt hash")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("secret1")) != nil {
		t.Error("password hash mismatch")
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *RegisterRequest)
	}{
		{"missing name", func(r *RegisterRequest) { r.FullName = " " }},
		{"bad email", func(r *RegisterRequest) { r.Email = "nope" }},
		{"short password", func(r *RegisterRequest) { r.Password = "abc" }},
		{"bad role", func(r *RegisterRequest) { r.Role = "admin" }},
		{"missing mobile", func(r *RegisterRequest) { r.MobileNumber = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := newTestService(store, &fakeMailer{}, nil)
			req := validRegister()
			tt.mutate(req)
			_, err := svc.Register(context.Background(), req)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
			if len(store.users) != 0 {
				t.Fatal("no user should be created")
			}
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeMailer{}, nil)
	ctx := context.Background()
	if _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(ctx, validRegister())
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestRegisterEmailFailureKeepsAccount(t *testing.T) {
	store := newMemStore()
	mailer := &fakeMailer{SendOTPFunc: func(context.Context, string, string) error {
		return errors.New("smtp down")
	}}
	svc := newTestService(store, mailer, nil)

	res, err := svc.Register(context.Background(), validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !strings.Contains(res.Message, "request a new code") {
		t.Errorf("message = %q", res.Message)
	}
	u, _ := store.GetUserByID(context.Background(), res.UserID)
	if u.IsVerified {
		t.Fatal("user must not be auto-verified when the email fails")
	}
}

func TestRegisterPersistenceError(t *testing.T) {
	store := newMemStore()
	store.failOn = "create"
	svc := newTestService(store, &fakeMailer{}, nil)
	_, err := svc.Register(context.Background(), validRegister())
	if !apperr.Is(err, apperr.KindPersistence) {
		t.Fatalf("err = %v, want persistence", err)
	}
	if apperr.Message(err) != "Server Error" {
		t.Fatalf("message leaked cause: %q", apperr.Message(err))
	}
}

func TestVerifyOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong code", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeMailer{}, nil)
		svc.Register(ctx, validRegister())
		err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "000000"})
		if apperr.Message(err) != "Invalid OTP" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeMailer{}, nil)
		svc.Register(ctx, validRegister())
		svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
		err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "123456"})
		if apperr.Message(err) != "OTP expired" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeMailer{}, nil)
		err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "ghost@example.com", OTP: "123456"})
		if !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("already verified", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeMailer{}, nil)
		email := registerAndVerify(t, svc)
		err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: email, OTP: "123456"})
		if apperr.Message(err) != "User already verified" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		lim := &fakeLimiter{AllowFunc: func(context.Context, string, ratelimit.Rule) (bool, error) {
			return false, nil
		}}
		svc := newTestService(newMemStore(), &fakeMailer{}, lim)
		err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "123456"})
		if !apperr.Is(err, apperr.KindRateLimited) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestResendOTPReplacesCode(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	svc := newTestService(newMemStore(), mailer, nil)
	svc.Register(ctx, validRegister())

	svc.otp = func() (string, error) { return "654321", nil }
	if err := svc.ResendOTP(ctx, "asha@example.com"); err != nil {
		t.Fatalf("ResendOTP: %v", err)
	}
	if mailer.lastOTP != "654321" {
		t.Fatalf("mailed %q", mailer.lastOTP)
	}
	if err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "123456"}); err == nil {
		t.Fatal("old code must stop working")
	}
	if err := svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "654321"}); err != nil {
		t.Fatalf("new code: %v", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	lim := &fakeLimiter{}
	svc := newTestService(newMemStore(), &fakeMailer{}, lim)

	svc.Register(ctx, validRegister())
	_, err := svc.Login(ctx, &LoginRequest{Email: "asha@example.com", Password: "secret1"})
	if apperr.Message(err) != "Verify email first" || !apperr.Is(err, apperr.KindAuthorization) {
		t.Fatalf("unverified login err = %v", err)
	}

	svc.VerifyOTP(ctx, &VerifyOTPRequest{Email: "asha@example.com", OTP: "123456"})

	if _, err := svc.Login(ctx, &LoginRequest{Email: "asha@example.com", Password: "wrong!"}); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("bad password err = %v", err)
	}
	if _, err := svc.Login(ctx, &LoginRequest{Email: "nobody@example.com", Password: "secret1"}); apperr.Message(err) != "Invalid credentials" {
		t.Fatalf("unknown email err = %v", err)
	}

	res, err := svc.Login(ctx, &LoginRequest{Email: "ASHA@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.Role != identity.RoleFactoryOwner || res.User.ID != 1 {
		t.Fatalf("user = %+v", res.User)
	}
	if lim.resets != 1 {
		t.Errorf("limiter resets = %d, want 1", lim.resets)
	}

	id, err := svc.ValidateToken(res.Token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id.UserID != 1 || id.Role != identity.RoleFactoryOwner {
		t.Fatalf("identity = %+v", id)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore(), &fakeMailer{}, nil)
	email := registerAndVerify(t, svc)
	res, err := svc.Login(ctx, &LoginRequest{Email: email, Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}

	other := newTestService(newMemStore(), &fakeMailer{}, nil)
	other.jwtSecret = []byte("another-secret")
	if _, err := other.ValidateToken(res.Token); !apperr.Is(err, apperr.KindAuthentication) {
		t.Fatalf("foreign signature err = %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.ValidateToken(res.Token); err == nil {
		t.Fatal("expired token accepted")
	}

	if _, err := svc.ValidateToken("garbage"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	svc := newTestService(newMemStore(), mailer, nil)
	email := registerAndVerify(t, svc)

	if err := svc.ForgotPassword(ctx, "ghost@example.com"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("unknown email err = %v", err)
	}
	if err := svc.ForgotPassword(ctx, email); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	prefix := "http://app.test/reset-password/"
	if !strings.HasPrefix(mailer.lastLink, prefix) {
		t.Fatalf("link = %q", mailer.lastLink)
	}
	token := strings.TrimPrefix(mailer.lastLink, prefix)

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("reset token must not authenticate requests")
	}

	if err := svc.ResetPassword(ctx, &ResetPasswordRequest{Token: token, NewPassword: "abc"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("short password err = %v", err)
	}
	if err := svc.ResetPassword(ctx, &ResetPasswordRequest{Token: token, NewPassword: "brand-new"}); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := svc.Login(ctx, &LoginRequest{Email: email, Password: "brand-new"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	access, _ := svc.Login(ctx, &LoginRequest{Email: email, Password: "brand-new"})
	if err := svc.ResetPassword(ctx, &ResetPasswordRequest{Token: access.Token, NewPassword: "another"}); err == nil {
		t.Fatal("access token must not reset passwords")
	}
}

func TestSearchUsersReturnsCounterparts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store, &fakeMailer{}, nil)
	svc.Register(ctx, validRegister())
	vep := validRegister()
	vep.Email, vep.MobileNumber, vep.Role, vep.FullName = "v@example.com", "9000000002", "vepari", "Asha Traders"
	svc.Register(ctx, vep)

	got, err := svc.SearchUsers(ctx, identity.Identity{UserID: 1, Role: identity.RoleFactoryOwner}, "Asha")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Role != identity.RoleVepari {
		t.Fatalf("got %+v", got)
	}
}
