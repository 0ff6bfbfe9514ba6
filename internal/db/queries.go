package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.JarError{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// User is the per-user archive bookkeeping row.
type User struct {
	ID            string
	JarIDs        []string
	StickerCount  int
	LastArchiveAt *int64
}

const stickerColumns = `
	id, user_id, image_url, thumbnail_url, original_url,
	is_special, is_food, name, fun_fact, nutrition,
	aspect_ratio, created_at
`

// InsertSticker stores a persisted sticker and bumps the owner's lifetime
// sticker count. It reports false without error when the sticker already
// exists or was archived before its persist completed.
func InsertSticker(ctx context.Context, db *sql.DB, s *sticker.Sticker) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	defer tx.Rollback()

	var tomb int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_stickers WHERE id = ?`, s.ID).Scan(&tomb)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if tomb > 0 {
		return false, nil
	}

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stickers (
			id, user_id, image_url, thumbnail_url, original_url,
			is_special, is_food, name, fun_fact, nutrition,
			aspect_ratio, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		s.ID, s.UserID, s.ImageURL, s.ThumbnailURL, toNullString(optional(s.OriginalURL)),
		boolToInt(s.IsSpecial), boolToInt(s.IsFood),
		toNullString(s.Name), toNullString(s.FunFact), toNullString(s.Nutrition),
		s.AspectRatio, s.CreatedAt, now,
	)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, sticker_count) VALUES (?, 1)
		ON CONFLICT(id) DO UPDATE SET sticker_count = sticker_count + 1
	`, s.UserID)
	if err != nil {
		return false, errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return false, errors.NewInternal(err)
	}
	return true, nil
}

// UpdateSticker rewrites the mutable fields of a stored sticker.
func UpdateSticker(ctx context.Context, db *sql.DB, s *sticker.Sticker) error {
	res, err := db.ExecContext(ctx, `
		UPDATE stickers SET
			image_url = ?, thumbnail_url = ?, original_url = ?,
			is_food = ?, name = ?, fun_fact = ?, nutrition = ?,
			aspect_ratio = ?, updated_at = ?
		WHERE id = ?
	`,
		s.ImageURL, s.ThumbnailURL, toNullString(optional(s.OriginalURL)),
		boolToInt(s.IsFood), toNullString(s.Name), toNullString(s.FunFact), toNullString(s.Nutrition),
		s.AspectRatio, time.Now().Unix(), s.ID,
	)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("sticker", s.ID)
	}
	return nil
}

// GetSticker retrieves a live sticker by its ULID.
func GetSticker(ctx context.Context, db *sql.DB, id string) (*sticker.Sticker, error) {
	row := db.QueryRowContext(ctx, `SELECT `+stickerColumns+` FROM stickers WHERE id = ?`, id)
	s, err := scanSticker(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("sticker", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// ListStickers returns the user's live stickers oldest first.
// A limit <= 0 returns every sticker.
func ListStickers(ctx context.Context, db *sql.DB, userID string, limit, offset int) ([]sticker.Sticker, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stickers WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+stickerColumns+` FROM stickers
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []sticker.Sticker
	for rows.Next() {
		s, err := scanSticker(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// InsertArchive commits an archive record atomically: the jar row, the
// removal of the archived stickers from the live set, their tombstones and
// the owner's bookkeeping either all land or none do.
func InsertArchive(ctx context.Context, db *sql.DB, rec *sticker.ArchiveRecord) error {
	stickersJSON, err := json.Marshal(rec.Stickers)
	if err != nil {
		return errors.NewInternal(err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jars (id, user_id, screenshot_url, report, stickers_json, sticker_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.UserID, rec.ScreenshotURL, toNullString(rec.Report), string(stickersJSON), len(rec.Stickers), rec.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}

	for _, s := range rec.Stickers {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stickers WHERE id = ?`, s.ID); err != nil {
			return errors.NewInternal(err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO archived_stickers (id, jar_id) VALUES (?, ?)
			ON CONFLICT(id) DO NOTHING
		`, s.ID, rec.ID)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	user, err := getUser(ctx, tx, rec.UserID)
	if err != nil {
		return err
	}
	jarIDs, err := json.Marshal(append(user.JarIDs, rec.ID))
	if err != nil {
		return errors.NewInternal(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, jar_ids_json, last_archive_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET jar_ids_json = excluded.jar_ids_json, last_archive_at = excluded.last_archive_at
	`, rec.UserID, string(jarIDs), rec.CreatedAt)
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetJar retrieves an archived jar with its embedded stickers.
func GetJar(ctx context.Context, db *sql.DB, id string) (*sticker.ArchiveRecord, error) {
	var (
		rec          sticker.ArchiveRecord
		report       sql.NullString
		stickersJSON string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, screenshot_url, report, stickers_json, created_at
		FROM jars WHERE id = ?
	`, id).Scan(&rec.ID, &rec.UserID, &rec.ScreenshotURL, &report, &stickersJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("jar", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	rec.Report = fromNullString(report)
	if err := json.Unmarshal([]byte(stickersJSON), &rec.Stickers); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("corrupt stickers_json for jar %s: %w", id, err))
	}
	if rec.Stickers == nil {
		rec.Stickers = []sticker.Sticker{}
	}
	return &rec, nil
}

// ListJars returns archived jar summaries newest first, with the total count.
func ListJars(ctx context.Context, db *sql.DB, userID string, limit, offset int) ([]sticker.JarSummary, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jars WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, screenshot_url, sticker_count, report IS NOT NULL AND report != ''
		FROM jars
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []sticker.JarSummary
	for rows.Next() {
		var (
			js        sticker.JarSummary
			hasReport int
		)
		if err := rows.Scan(&js.ID, &js.CreatedAt, &js.ScreenshotURL, &js.StickerCount, &hasReport); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		js.HasReport = hasReport != 0
		out = append(out, js)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

// GetUser returns the bookkeeping row for userID. A user with no row yet
// is returned zero-valued.
func GetUser(ctx context.Context, db *sql.DB, userID string) (*User, error) {
	return getUser(ctx, db, userID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryer, userID string) (*User, error) {
	var (
		jarIDs string
		last   sql.NullInt64
	)
	u := &User{ID: userID, JarIDs: []string{}}
	err := q.QueryRowContext(ctx, `
		SELECT jar_ids_json, sticker_count, last_archive_at FROM users WHERE id = ?
	`, userID).Scan(&jarIDs, &u.StickerCount, &last)
	if err == sql.ErrNoRows {
		return u, nil
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := json.Unmarshal([]byte(jarIDs), &u.JarIDs); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("corrupt jar_ids_json for user %s: %w", userID, err))
	}
	if last.Valid {
		v := last.Int64
		u.LastArchiveAt = &v
	}
	return u, nil
}

// IsArchived reports whether a sticker id has been archived into a jar.
func IsArchived(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_stickers WHERE id = ?`, id).Scan(&n); err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSticker(row rowScanner) (*sticker.Sticker, error) {
	var (
		s                        sticker.Sticker
		original                 sql.NullString
		name, funFact, nutrition sql.NullString
		isSpecial, isFood        int
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.ImageURL, &s.ThumbnailURL, &original,
		&isSpecial, &isFood, &name, &funFact, &nutrition,
		&s.AspectRatio, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if original.Valid {
		s.OriginalURL = original.String
	}
	s.IsSpecial = isSpecial != 0
	s.IsFood = isFood != 0
	s.Name = fromNullString(name)
	s.FunFact = fromNullString(funFact)
	s.Nutrition = fromNullString(nutrition)
	return &s, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
