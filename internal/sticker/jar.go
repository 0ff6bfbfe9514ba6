package sticker

// ArchiveRecord is an immutable snapshot of a jar at the moment it was
// archived.
type ArchiveRecord struct {
	// ID is a ULID that uniquely identifies this archived jar
	ID string `json:"id"`

	// UserID owns the archive
	UserID string `json:"user_id"`

	// CreatedAt is the Unix timestamp of the archive
	CreatedAt int64 `json:"created_at"`

	// ScreenshotURL references the uploaded jar snapshot
	ScreenshotURL string `json:"screenshot_url"`

	// Report is the generated weekly recap (nullable)
	Report *string `json:"report,omitempty"`

	// Stickers is the full embedded sticker set
	Stickers []Sticker `json:"stickers"`
}

// JarSummary represents an archived jar without its embedded stickers or
// report text. Used for shelf listings.
type JarSummary struct {
	ID            string `json:"id"`
	CreatedAt     int64  `json:"created_at"`
	ScreenshotURL string `json:"screenshot_url"`
	StickerCount  int    `json:"sticker_count"`
	HasReport     bool   `json:"has_report"`
}

// ToSummary converts an ArchiveRecord to a JarSummary.
func (r *ArchiveRecord) ToSummary() JarSummary {
	return JarSummary{
		ID:            r.ID,
		CreatedAt:     r.CreatedAt,
		ScreenshotURL: r.ScreenshotURL,
		StickerCount:  len(r.Stickers),
		HasReport:     r.Report != nil && *r.Report != "",
	}
}

// Summary is a sticker without its long-form enrichment text.
type Summary struct {
	ID           string  `json:"id"`
	CreatedAt    int64   `json:"created_at"`
	Name         *string `json:"name,omitempty"`
	IsSpecial    bool    `json:"is_special"`
	IsFood       bool    `json:"is_food"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// ToSummary strips FunFact and Nutrition.
func (s *Sticker) ToSummary() Summary {
	return Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		Name:         cloneString(s.Name),
		IsSpecial:    s.IsSpecial,
		IsFood:       s.IsFood,
		ThumbnailURL: s.ThumbnailURL,
	}
}
