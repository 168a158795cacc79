// Package inventory owns the article model and the stock rules around it.
package inventory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxNameLength bounds article names, measured in characters.
const MaxNameLength = 100

// Article is one tracked warehouse item.
type Article struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	MinStock  int       `json:"min_stock"`
	Code      string    `json:"code"`
	Location  string    `json:"location,omitempty"`
	OrderLink string    `json:"order_link,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	ImageName string    `json:"image_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLow reports whether the stock fell below the minimum-stock threshold.
func (a Article) IsLow() bool {
	return a.Stock < a.MinStock
}

// ArticleInput carries the caller-editable fields of a new article.
type ArticleInput struct {
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	MinStock  int    `json:"min_stock"`
	Location  string `json:"location"`
	OrderLink string `json:"order_link"`
	Notes     string `json:"notes"`
}

// ArticleUpdate carries the fields an edit may change. Stock only moves through
// adjustments.
type ArticleUpdate struct {
	Name      string `json:"name"`
	MinStock  int    `json:"min_stock"`
	Location  string `json:"location"`
	OrderLink string `json:"order_link"`
	Notes     string `json:"notes"`
}

func (in *ArticleInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.OrderLink = strings.TrimSpace(in.OrderLink)
	if err := validateName(in.Name); err != nil {
		return err
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock must be >= 0", ErrInvalid)
	}
	if in.MinStock < 0 {
		return fmt.Errorf("%w: min_stock must be >= 0", ErrInvalid)
	}
	return nil
}

func (up *ArticleUpdate) normalize() error {
	up.Name = strings.TrimSpace(up.Name)
	up.Location = strings.TrimSpace(up.Location)
	up.OrderLink = strings.TrimSpace(up.OrderLink)
	if err := validateName(up.Name); err != nil {
		return err
	}
	if up.MinStock < 0 {
		return fmt.Errorf("%w: min_stock must be >= 0", ErrInvalid)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", ErrInvalid, MaxNameLength)
	}
	return nil
}
