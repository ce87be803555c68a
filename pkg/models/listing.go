package models

import "strings"

// ScrapedListing is a vehicle listing produced by a marketplace scraper.
// It is treated as immutable while it flows through matching.
type ScrapedListing struct {
	TenantID   string   `json:"tenant_id"`
	ExternalID string   `json:"external_id" validate:"required"`
	SourceSite string   `json:"source_site" validate:"required"`
	Make       string   `json:"make"`
	Model      string   `json:"model"`
	Year       *int     `json:"year,omitempty" validate:"omitempty,gte=1886,lte=2100"`
	Price      float64  `json:"price" validate:"gte=0"`
	Mileage    *int     `json:"mileage,omitempty" validate:"omitempty,gte=0"`
	VIN        *string  `json:"vin,omitempty"`
	City       *string  `json:"city,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude  *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
	ImageURLs  []string `json:"image_urls,omitempty"`
}

// VINValue returns the trimmed VIN, or "" when none was scraped.
func (l *ScrapedListing) VINValue() string {
	if l.VIN == nil {
		return ""
	}
	return strings.TrimSpace(*l.VIN)
}

// HasMakeAndModel reports whether both make and model are present.
func (l *ScrapedListing) HasMakeAndModel() bool {
	return strings.TrimSpace(l.Make) != "" && strings.TrimSpace(l.Model) != ""
}

// CandidateListing is a read-only projection of a stored listing used only
// inside the matching pipeline.
type CandidateListing struct {
	ListingID       string   `json:"listing_id" db:"id"`
	Make            string   `json:"make" db:"make"`
	Model           string   `json:"model" db:"model"`
	Year            int      `json:"year" db:"year"`
	Price           float64  `json:"price" db:"price"`
	Mileage         *int     `json:"mileage,omitempty" db:"mileage"`
	VIN             *string  `json:"vin,omitempty" db:"vin"`
	City            *string  `json:"city,omitempty" db:"city"`
	Latitude        *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude       *float64 `json:"longitude,omitempty" db:"longitude"`
	ExternalID      string   `json:"external_id" db:"external_id"`
	SourceSite      string   `json:"source_site" db:"source_site"`
	LinkedVehicleID *string  `json:"linked_vehicle_id,omitempty" db:"linked_vehicle_id"`
}

// VINValue returns the trimmed VIN, or "" when the stored listing has none.
func (c *CandidateListing) VINValue() string {
	if c.VIN == nil {
		return ""
	}
	return strings.TrimSpace(*c.VIN)
}
