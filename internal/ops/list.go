package ops

import (
	"context"

	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// ListInput contains parameters for the list operations.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// StickerListOutput contains the result of ListStickers.
type StickerListOutput struct {
	Items      []sticker.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// ListStickers pages through the live jar, oldest first.
func ListStickers(ctx context.Context, store *db.Store, input ListInput) (*StickerListOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	stickers, total, err := db.ListStickers(ctx, store.DB(), store.UserID(), limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	items := make([]sticker.Summary, 0, len(stickers))
	for i := range stickers {
		items = append(items, stickers[i].ToSummary())
	}

	return &StickerListOutput{
		Items:      items,
		Pagination: paginate(limit, offset, len(items), total),
		Sort:       "created_at_asc",
	}, nil
}

// JarListOutput contains the result of ListJars.
type JarListOutput struct {
	Items      []sticker.JarSummary `json:"items"`
	Pagination Pagination           `json:"pagination"`
	Sort       string               `json:"sort"`
}

// ListJars pages through the archive shelf, newest first.
func ListJars(ctx context.Context, store *db.Store, input ListInput) (*JarListOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	jars, total, err := store.ListJars(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if jars == nil {
		jars = []sticker.JarSummary{}
	}

	return &JarListOutput{
		Items:      jars,
		Pagination: paginate(limit, offset, len(jars), total),
		Sort:       "created_at_desc",
	}, nil
}
