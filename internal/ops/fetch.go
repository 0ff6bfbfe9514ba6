package ops

import (
	"context"

	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// FetchStickerInput contains parameters for FetchSticker.
type FetchStickerInput struct {
	ID          string
	IncludeText *bool // default: true (nil means default)
}

// FetchSticker retrieves one live sticker owned by the store's user.
func FetchSticker(ctx context.Context, store *db.Store, input FetchStickerInput) (*sticker.Sticker, error) {
	id, err := ValidateID("sticker", input.ID)
	if err != nil {
		return nil, err
	}

	s, err := db.GetSticker(ctx, store.DB(), id)
	if err != nil {
		return nil, err
	}
	if s.UserID != store.UserID() {
		return nil, errors.NewNotFound("sticker", id)
	}

	if input.IncludeText != nil && !*input.IncludeText {
		s.FunFact = nil
		s.Nutrition = nil
	}
	return s, nil
}

// FetchJarInput contains parameters for FetchJar.
type FetchJarInput struct {
	ID              string
	IncludeStickers *bool // default: true
	IncludeReport   *bool // default: true
}

// FetchJarOutput is an archived jar plus its summary counts.
type FetchJarOutput struct {
	sticker.ArchiveRecord // embedded (copy, not pointer)

	StickerCount int `json:"sticker_count"`
	FoodCount    int `json:"food_count"`
	SpecialCount int `json:"special_count"`
}

// FetchJar retrieves an archived jar owned by the store's user.
func FetchJar(ctx context.Context, store *db.Store, input FetchJarInput) (*FetchJarOutput, error) {
	id, err := ValidateID("jar", input.ID)
	if err != nil {
		return nil, err
	}

	rec, err := store.GetJar(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.UserID != store.UserID() {
		return nil, errors.NewNotFound("jar", id)
	}

	output := &FetchJarOutput{
		ArchiveRecord: *rec,
		StickerCount:  len(rec.Stickers),
	}
	for _, s := range rec.Stickers {
		if s.IsFood {
			output.FoodCount++
		}
		if s.IsSpecial {
			output.SpecialCount++
		}
	}

	if input.IncludeStickers != nil && !*input.IncludeStickers {
		output.Stickers = nil
	}
	if input.IncludeReport != nil && !*input.IncludeReport {
		output.Report = nil
	}
	return output, nil
}
