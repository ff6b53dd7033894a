package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"designguard/internal/apperr"
	"designguard/internal/identity"
	"designguard/internal/ratelimit"
)

const (
	purposeAccess = "access"
	purposeReset  = "reset"

	minPasswordLen = 6
	tokenIssuer    = "designguard"
)

// Store is the persistence the service needs; *Repository satisfies it.
type Store interface {
	ExistsByEmailOrMobile(ctx context.Context, email, mobile string) (bool, error)
	CreateUser(ctx context.Context, u *User, p Profile) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	SetOTP(ctx context.Context, id int64, hash string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SearchUsers(ctx context.Context, query string, role identity.Role) ([]PublicUser, error)
}

// Mailer delivers the account emails.
type Mailer interface {
	SendOTP(ctx context.Context, email, otp string) error
	SendPasswordReset(ctx context.Context, email, link string) error
}

type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
	Reset(ctx context.Context, identifier string, rule ratelimit.Rule) error
}

type Options struct {
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
	OTPTTL        time.Duration
	FrontendURL   string
}

type Service struct {
	repo      Store
	mailer    Mailer
	limiter   Limiter
	jwtSecret []byte
	opts      Options
	log       *zap.Logger
	now       func() time.Time
	otp       func() (string, error)
}

type Claims struct {
	ID      int64  `json:"id"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// NewService wires the auth service. limiter may be nil, in which case no
// attempt throttling is applied.
func NewService(repo Store, mailer Mailer, limiter Limiter, secret string, opts Options, log *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		mailer:    mailer,
		limiter:   limiter,
		jwtSecret: []byte(secret),
		opts:      opts,
		log:       log.Named("user"),
		now:       time.Now,
		otp:       generateOTP,
	}
}

// generateOTP returns a uniformly random 6-digit code.
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegister(req *RegisterRequest) (identity.Role, error) {
	if strings.TrimSpace(req.FullName) == "" || req.Email == "" || req.Password == "" || strings.TrimSpace(req.MobileNumber) == "" {
		return "", apperr.Validation("Full name, email, password, mobile number and role are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "", apperr.Validation("Invalid email address")
	}
	if len(req.Password) < minPasswordLen {
		return "", apperr.Validation("Password must be at least 6 characters")
	}
	role, err := identity.ParseRole(req.Role)
	if err != nil {
		return "", apperr.Validation("Role must be factory_owner or vepari")
	}
	return role, nil
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	req.Email = normalizeEmail(req.Email)
	role, err := validateRegister(req)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByEmailOrMobile(ctx, req.Email, strings.TrimSpace(req.MobileNumber))
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if exists {
		return nil, apperr.Conflict("User already exists.")
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	code, otpHash, err := s.newOTP()
	if err != nil {
		return nil, err
	}

	u := &User{
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		MobileNumber: strings.TrimSpace(req.MobileNumber),
		Password:     string(hashedPwd),
		Role:         role,
		OTPHash:      sql.NullString{String: otpHash, Valid: true},
		OTPExpiresAt: sql.NullTime{Time: s.now().Add(s.opts.OTPTTL), Valid: true},
	}
	if _, err := s.repo.CreateUser(ctx, u, req.Profile); err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Conflict("User already exists.")
		}
		return nil, apperr.Persistence(err)
	}

	res := &RegisterResponse{Message: "Registered successfully. OTP sent to email.", UserID: u.ID}
	if err := s.mailer.SendOTP(ctx, u.Email, code); err != nil {
		// The account exists either way; the user can ask for a new code.
		s.log.Error("otp email dispatch failed", zap.Int64("user_id", u.ID), zap.Error(err))
		res.Message = "Registered successfully, but the verification email could not be sent. Please request a new code."
	}
	return res, nil
}

func (s *Service) newOTP() (code, hash string, err error) {
	code, err = s.otp()
	if err != nil {
		return "", "", fmt.Errorf("user: generate otp: %w", err)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("user: hash otp: %w", err)
	}
	return code, string(h), nil
}

func (s *Service) allow(ctx context.Context, key string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(ctx, key, rule)
	return ok
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return u, nil
}

func (s *Service) VerifyOTP(ctx context.Context, req *VerifyOTPRequest) error {
	email := normalizeEmail(req.Email)
	if email == "" || strings.TrimSpace(req.OTP) == "" {
		return apperr.Validation("Email and OTP are required")
	}
	if !s.allow(ctx, email, ratelimit.RuleOTP) {
		return apperr.RateLimited("Too many attempts. Please try again later.")
	}

	u, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return apperr.Validation("User already verified")
	}
	if !u.OTPHash.Valid || !u.OTPExpiresAt.Valid || s.now().After(u.OTPExpiresAt.Time) {
		return apperr.Validation("OTP expired")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.OTPHash.String), []byte(strings.TrimSpace(req.OTP))) != nil {
		return apperr.Validation("Invalid OTP")
	}

	if err := s.repo.MarkVerified(ctx, u.ID); err != nil {
		return apperr.Persistence(err)
	}
	return nil
}

func (s *Service) ResendOTP(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	u, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u.IsVerified {
		return apperr.Validation("User already verified")
	}

	code, hash, err := s.newOTP()
	if err != nil {
		return err
	}
	if err := s.repo.SetOTP(ctx, u.ID, hash, s.now().Add(s.opts.OTPTTL)); err != nil {
		return apperr.Persistence(err)
	}
	if err := s.mailer.SendOTP(ctx, u.Email, code); err != nil {
		return apperr.Wrap(apperr.KindInternal, "Failed to send verification email", err)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}
	if !s.allow(ctx, email, ratelimit.RuleLogin) {
		return nil, apperr.RateLimited("Too many login attempts. Please try again later.")
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Authentication("Invalid credentials")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, apperr.Authentication("Invalid credentials")
	}
	if !u.IsVerified {
		return nil, apperr.Authorization("Verify email first")
	}

	ss, err := s.sign(Claims{ID: u.ID, Role: string(u.Role), Purpose: purposeAccess}, s.opts.TokenTTL)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil {
		_ = s.limiter.Reset(ctx, email, ratelimit.RuleLogin)
	}

	return &LoginResponse{
		Token: ss,
		User:  PublicUser{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role},
	}, nil
}

func (s *Service) sign(c Claims, ttl time.Duration) (string, error) {
	now := s.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.jwtSecret)
}

func (s *Service) parse(tokenString, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("user: invalid token: %w", err)
	}
	if claims.Purpose != purpose {
		return nil, fmt.Errorf("user: token purpose %q, want %q", claims.Purpose, purpose)
	}
	return claims, nil
}

// ValidateToken verifies an access token's signature, expiry and purpose.
func (s *Service) ValidateToken(tokenString string) (identity.Identity, error) {
	claims, err := s.parse(tokenString, purposeAccess)
	if err != nil {
		return identity.Identity{}, apperr.Wrap(apperr.KindAuthentication, "Token is not valid", err)
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return identity.Identity{}, apperr.Wrap(apperr.KindAuthentication, "Token is not valid", err)
	}
	return identity.Identity{UserID: claims.ID, Role: role}, nil
}

func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("Email is required")
	}
	u, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := s.sign(Claims{ID: u.ID, Purpose: purposeReset}, s.opts.ResetTokenTTL)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password/%s", s.opts.FrontendURL, token)
	if err := s.mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		return apperr.Wrap(apperr.KindInternal, "Failed to send password reset email", err)
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	claims, err := s.parse(req.Token, purposeReset)
	if err != nil {
		return apperr.Validation("Invalid or expired token")
	}
	if len(req.NewPassword) < minPasswordLen {
		return apperr.Validation("Password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, claims.ID, string(hash)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Validation("Invalid or expired token")
		}
		return apperr.Persistence(err)
	}
	return nil
}

// FindByID resolves a user by id; the realtime handshake requires the user to exist.
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return u, nil
}

// SearchUsers lists counterparts the caller could trade or chat with.
func (s *Service) SearchUsers(ctx context.Context, caller identity.Identity, query string) ([]PublicUser, error) {
	users, err := s.repo.SearchUsers(ctx, strings.TrimSpace(query), caller.Role.Counterpart())
	if err != nil {
		return nil, apperr.Persistence(err)
	}
	return users, nil
}
