package profile

import (
	"io"
	"time"

	"designguard/internal/identity"
)

// Profile is a user with their role's business details merged in. Fields
// belonging to the other role are always nil and omitted.
type Profile struct {
	ID           int64         `json:"id"`
	FullName     string        `json:"full_name"`
	Email        string        `json:"email,omitempty"`
	MobileNumber string        `json:"mobile_number,omitempty"`
	Role         identity.Role `json:"role"`
	CreatedAt    time.Time     `json:"created_at"`
	IsVerified   bool          `json:"is_verified"`

	LogoURL           *string `json:"logo_url"`
	Bio               *string `json:"bio"`
	ProfilePictureURL *string `json:"profile_picture_url"`
	EstablishedYear   *int    `json:"established_year"`

	CompanyName    *string `json:"company_name,omitempty"`
	GSTNumber      *string `json:"gst_number,omitempty"`
	FactoryAddress *string `json:"factory_address,omitempty"`
	EmployeeCount  *int    `json:"employee_count,omitempty"`

	VepariBrandName *string `json:"vepari_brand_name,omitempty"`
	City            *string `json:"city,omitempty"`
	VepariGSTNumber *string `json:"vepari_gst_number,omitempty"`
	BusinessType    *string `json:"business_type,omitempty"`
}

// public strips what only the owner may see.
func (p *Profile) public() *Profile {
	cp := *p
	cp.Email = ""
	cp.MobileNumber = ""
	cp.GSTNumber = nil
	cp.VepariGSTNumber = nil
	return &cp
}

// UpdateRequest holds optional edits; nil fields keep their stored value.
type UpdateRequest struct {
	FullName     *string `json:"full_name"`
	MobileNumber *string `json:"mobile_number"`

	Bio             *string `json:"bio"`
	EstablishedYear *int    `json:"established_year"`

	VepariBrandName *string `json:"vepari_brand_name"`
	City            *string `json:"city"`
	VepariGSTNumber *string `json:"vepari_gst_number"`
	BusinessType    *string `json:"business_type"`

	CompanyName    *string `json:"company_name"`
	GSTNumber      *string `json:"gst_number"`
	FactoryAddress *string `json:"factory_address"`
	EmployeeCount  *int    `json:"employee_count"`
}

type Picture struct {
	Body        io.Reader
	ContentType string
	Size        int64
}

type PictureResult struct {
	ProfilePictureURL  string `json:"profile_picture_url"`
	CloudinaryPublicID string `json:"cloudinary_public_id"`
}

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}
