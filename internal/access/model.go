package access

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

const (
	defaultDurationDays = 7
	maxDurationDays     = 365
)

type Request struct {
	ID              int64      `json:"id"`
	VepariID        int64      `json:"vepari_id"`
	FactoryID       int64      `json:"factory_id"`
	Status          Status     `json:"status"`
	AccessGrantedAt *time.Time `json:"access_granted_at"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Factory is one row of the vepari's factory directory. RequestStatus is
// nil when the vepari never asked this factory.
type Factory struct {
	ID                int64      `json:"id"`
	FullName          string     `json:"full_name"`
	CompanyName       *string    `json:"company_name"`
	FactoryAddress    *string    `json:"factory_address"`
	LogoURL           *string    `json:"logo_url"`
	ProfilePictureURL *string    `json:"profile_picture_url"`
	RequestStatus     *Status    `json:"request_status"`
	AccessExpiresAt   *time.Time `json:"access_expires_at"`
}

type PendingRequest struct {
	ID                 int64   `json:"id"`
	VepariID           int64   `json:"vepari_id"`
	Status             Status  `json:"status"`
	VepariName         string  `json:"vepari_name"`
	VepariEmail        string  `json:"vepari_email"`
	ShopName           *string `json:"shop_name"`
	City               *string `json:"city"`
	VepariProfileImage *string `json:"vepari_profile_image"`
}

type CreateRequest struct {
	FactoryID int64 `json:"factory_id"`
}

type RespondRequest struct {
	Status       Status `json:"status"`
	DurationDays *int   `json:"durationDays"`
}
