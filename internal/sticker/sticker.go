package sticker

// Fallback enrichment written when content analysis fails. The name matches
// the analyzer's own "could not identify" marker.
const (
	FallbackName      = "???"
	FallbackFunFact   = "(×_×;) This one could not be identified."
	FallbackNutrition = "Nutrition information is unavailable."
)

// Sticker is one image cut-out living in a user's jar.
// Image references and enrichment are empty until the remote work for the
// sticker completes; consumers must tolerate partially-populated values.
type Sticker struct {
	// ID is a ULID assigned when the placeholder is prepared
	ID string `json:"id"`

	// UserID owns the sticker
	UserID string `json:"user_id"`

	// CreatedAt is the Unix timestamp of the placeholder
	CreatedAt int64 `json:"created_at"`

	// ImageURL references the full-resolution sticker image
	ImageURL string `json:"image_url,omitempty"`

	// ThumbnailURL references the downscaled sticker image
	ThumbnailURL string `json:"thumbnail_url,omitempty"`

	// OriginalURL references the photo the sticker was cut from (optional)
	OriginalURL string `json:"original_url,omitempty"`

	// IsSpecial is fixed at prepare time
	IsSpecial bool `json:"is_special"`

	// IsFood is reported by content analysis
	IsFood bool `json:"is_food"`

	// Enrichment fields (nullable until analysis completes)
	Name      *string `json:"name,omitempty"`
	FunFact   *string `json:"fun_fact,omitempty"`
	Nutrition *string `json:"nutrition,omitempty"`

	// AspectRatio is width/height of the sticker image; 0 means unknown
	AspectRatio float64 `json:"aspect_ratio,omitempty"`
}

// Persisted reports whether the image references have been populated.
func (s *Sticker) Persisted() bool {
	return s.ImageURL != "" && s.ThumbnailURL != ""
}

// Enriched reports whether analysis (or its fallback) has been merged.
func (s *Sticker) Enriched() bool {
	return s.Name != nil
}

// DisplayName returns the sticker name, or a placeholder while unknown.
func (s *Sticker) DisplayName() string {
	if s.Name == nil || *s.Name == "" {
		return "…"
	}
	return *s.Name
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (s Sticker) Clone() Sticker {
	s.Name = cloneString(s.Name)
	s.FunFact = cloneString(s.FunFact)
	s.Nutrition = cloneString(s.Nutrition)
	return s
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr(v string) *string {
	return &v
}

// Fallback returns the enrichment used when analysis could not identify
// the sticker.
func Fallback() Enrichment {
	return Enrichment{
		Name:      FallbackName,
		FunFact:   FallbackFunFact,
		Nutrition: FallbackNutrition,
	}
}

// Enrichment is the result of content analysis.
type Enrichment struct {
	IsFood    bool   `json:"is_food"`
	Name      string `json:"name"`
	FunFact   string `json:"fun_fact"`
	Nutrition string `json:"nutrition"`
}

// Complete fills blank fields with fallback text so no enriched sticker is
// left with empty strings.
func (e Enrichment) Complete() Enrichment {
	fb := Fallback()
	if e.Name == "" {
		e.Name = fb.Name
	}
	if e.FunFact == "" {
		e.FunFact = fb.FunFact
	}
	if e.Nutrition == "" {
		e.Nutrition = fb.Nutrition
	}
	return e
}

// URLs are the stable references produced by the persist step.
type URLs struct {
	ImageURL     string `json:"image_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	OriginalURL  string `json:"original_url,omitempty"`
}

// ApplyURLs merges persist results; enrichment fields are left untouched.
func (s *Sticker) ApplyURLs(u URLs) {
	s.ImageURL = u.ImageURL
	s.ThumbnailURL = u.ThumbnailURL
	if u.OriginalURL != "" {
		s.OriginalURL = u.OriginalURL
	}
}

// ApplyEnrichment merges analysis results; image references are left
// untouched.
func (s *Sticker) ApplyEnrichment(e Enrichment) {
	e = e.Complete()
	s.IsFood = e.IsFood
	s.Name = Ptr(e.Name)
	s.FunFact = Ptr(e.FunFact)
	s.Nutrition = Ptr(e.Nutrition)
}
