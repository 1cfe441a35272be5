// Package catalog implements the plugin catalog: listings, metadata,
// versioned artifacts and soft deletion.
package catalog

import "time"

// Plugin is a marketplace listing. Prices are integer cents to avoid
// floating point money. RatingMean and RatingCount are denormalized
// aggregates maintained by the ratings service.
type Plugin struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	AuthorID      string    `json:"author_id"`
	PriceCents    int64     `json:"price_cents"`
	Category      string    `json:"category"`
	LatestVersion string    `json:"latest_version"`
	Featured      bool      `json:"featured"`
	DownloadCount int64     `json:"download_count"`
	RatingMean    float64   `json:"rating_mean"`
	RatingCount   int64     `json:"rating_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Version is a released artifact of a plugin
type Version struct {
	ID         string    `json:"id"`
	PluginID   string    `json:"plugin_id"`
	Version    string    `json:"version"`
	StorageKey string    `json:"-"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreatePluginRequest carries the metadata for a new listing
type CreatePluginRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Category    string `json:"category"`
	Version     string `json:"version"`
}

// UpdatePluginRequest carries partial updates to a listing. Nil fields
// are left unchanged.
type UpdatePluginRequest struct {
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty"`
	Category    *string `json:"category,omitempty"`
	Featured    *bool   `json:"featured,omitempty"`
}

// ListOptions filters and orders catalog listings
type ListOptions struct {
	Category     string
	Search       string
	Sort         string // "newest", "name", "downloads", "rating"
	FeaturedOnly bool
	Limit        int
	Offset       int
}
