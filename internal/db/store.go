package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/stickerjar/internal/sticker"
)

// Store is the document store for one user's jar, backed by SQLite.
type Store struct {
	db     *sql.DB
	userID string
}

// NewStore returns a Store scoped to userID.
func NewStore(db *sql.DB, userID string) *Store {
	return &Store{db: db, userID: userID}
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// UserID returns the owner the store is scoped to.
func (s *Store) UserID() string { return s.userID }

// CreateSticker stores a newly persisted sticker. Creating a sticker that
// already exists, or that was archived before its persist finished, is a
// no-op.
func (s *Store) CreateSticker(ctx context.Context, st sticker.Sticker) error {
	if st.UserID == "" {
		st.UserID = s.userID
	}
	_, err := InsertSticker(ctx, s.db, &st)
	return err
}

// UpdateSticker writes late enrichment. A sticker that is no longer live
// (archived in the meantime) is skipped.
func (s *Store) UpdateSticker(ctx context.Context, st sticker.Sticker) error {
	err := UpdateSticker(ctx, s.db, &st)
	if err == nil {
		return nil
	}
	if archived, aerr := IsArchived(ctx, s.db, st.ID); aerr == nil && archived {
		return nil
	}
	return err
}

// LoadStickers returns every live sticker, oldest first.
func (s *Store) LoadStickers(ctx context.Context) ([]sticker.Sticker, error) {
	out, _, err := ListStickers(ctx, s.db, s.userID, 0, 0)
	if out == nil && err == nil {
		out = []sticker.Sticker{}
	}
	return out, err
}

// ArchiveJar commits rec in one transaction.
func (s *Store) ArchiveJar(ctx context.Context, rec sticker.ArchiveRecord) error {
	if rec.UserID == "" {
		rec.UserID = s.userID
	}
	return InsertArchive(ctx, s.db, &rec)
}

// ListJars returns archived jar summaries newest first.
func (s *Store) ListJars(ctx context.Context, limit, offset int) ([]sticker.JarSummary, int, error) {
	return ListJars(ctx, s.db, s.userID, limit, offset)
}

// GetJar returns one archived jar.
func (s *Store) GetJar(ctx context.Context, id string) (*sticker.ArchiveRecord, error) {
	return GetJar(ctx, s.db, id)
}

// LastArchiveAt returns the time of the last successful archive, if any.
func (s *Store) LastArchiveAt(ctx context.Context) (time.Time, bool, error) {
	u, err := GetUser(ctx, s.db, s.userID)
	if err != nil {
		return time.Time{}, false, err
	}
	if u.LastArchiveAt == nil {
		return time.Time{}, false, nil
	}
	return time.Unix(*u.LastArchiveAt, 0).UTC(), true, nil
}
