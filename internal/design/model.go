package design

import (
	"io"
	"time"
)

type Design struct {
	ID            int64     `json:"id"`
	FactoryID     int64     `json:"factory_id"`
	DesignNumber  string    `json:"design_number"`
	ImageURL      string    `json:"image_url"`
	ColorVariants *string   `json:"color_variants"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Image is an uploaded file as received from the multipart form.
type Image struct {
	Body        io.Reader
	ContentType string
	Size        int64
}

type CreateInput struct {
	DesignNumber  string
	ColorVariants string
	Image         *Image
}

// UpdateInput fields left empty keep their stored value.
type UpdateInput struct {
	DesignNumber  string
	ColorVariants string
	Image         *Image
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	NextPage    *int `json:"nextPage"`
	PrevPage    *int `json:"prevPage"`
}

type ListResponse struct {
	Designs    []Design   `json:"designs"`
	Pagination Pagination `json:"pagination"`
}

func paginate(page, limit, total int) Pagination {
	p := Pagination{
		CurrentPage: page,
		TotalPages:  (total + limit - 1) / limit,
		TotalCount:  total,
		Limit:       limit,
	}
	p.HasNextPage = page < p.TotalPages
	p.HasPrevPage = page > 1
	if p.HasNextPage {
		next := page + 1
		p.NextPage = &next
	}
	if p.HasPrevPage {
		prev := page - 1
		p.PrevPage = &prev
	}
	return p
}
