package user

import (
	"database/sql"
	"time"

	"designguard/internal/identity"
)

type User struct {
	ID           int64          `json:"id"`
	FullName     string         `json:"full_name"`
	Email        string         `json:"email"`
	MobileNumber string         `json:"mobile_number"`
	Password     string         `json:"-"`
	Role         identity.Role  `json:"role"`
	IsVerified   bool           `json:"is_verified"`
	OTPHash      sql.NullString `json:"-"`
	OTPExpiresAt sql.NullTime   `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Profile carries the role-specific registration fields. Only the ones for
// the registering role are stored.
type Profile struct {
	CompanyName     string `json:"company_name"`
	GSTNumber       string `json:"gst_number"`
	FactoryAddress  string `json:"factory_address"`
	LogoURL         string `json:"logo_url"`
	VepariBrandName string `json:"vepari_brand_name"`
	City            string `json:"city"`
	VepariGSTNumber string `json:"vepari_gst_number"`
}

type RegisterRequest struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	MobileNumber string `json:"mobile_number"`
	Role         string `json:"role"`
	Profile
}

type RegisterResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PublicUser struct {
	ID       int64         `json:"id"`
	FullName string        `json:"full_name"`
	Email    string        `json:"email"`
	Role     identity.Role `json:"role"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  PublicUser `json:"user"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
