package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linuskang/bubbly/internal/db"
	"github.com/linuskang/bubbly/internal/xp"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

type Service struct {
	db       db.Querier
	validate *validator.Validate
}

func NewService(db db.Querier) *Service {
	return &Service{db: db, validate: validator.New()}
}

const profileCols = `id, username, name, image, bio, xp, level, created_at`

// ProfileByUsername looks a user up by their public handle.
func (s *Service) ProfileByUsername(ctx context.Context, username string) (Profile, error) {
	return s.profile(ctx, `SELECT `+profileCols+` FROM users WHERE username=$1`, username)
}

// ProfileByID looks a user up by id.
func (s *Service) ProfileByID(ctx context.Context, id string) (Profile, error) {
	return s.profile(ctx, `SELECT `+profileCols+` FROM users WHERE id=$1`, id)
}

func (s *Service) profile(ctx context.Context, sql string, args ...any) (Profile, error) {
	var p Profile
	var image, bio *string
	row := s.db.QueryRow(ctx, sql, args...)
	err := row.Scan(&p.ID, &p.Username, &p.Name, &image, &bio, &p.XP, &p.Level, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	p.Image = deref(image)
	p.Bio = deref(bio)
	return p, nil
}

// Update changes only the submitted profile fields.
func (s *Service) Update(ctx context.Context, userID string, req UpdateRequest) (Profile, error) {
	if err := s.validate.Struct(req); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var (
		set  []string
		args = []any{userID}
	)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Username != nil {
		add("username", strings.ToLower(*req.Username))
	}
	if req.Image != nil {
		add("image", *req.Image)
	}
	if req.Bio != nil {
		add("bio", *req.Bio)
	}
	if len(set) == 0 {
		return s.ProfileByID(ctx, userID)
	}

	query := fmt.Sprintf(`UPDATE users SET %s, updated_at=now() WHERE id=$1 RETURNING %s`,
		strings.Join(set, ", "), profileCols)
	p, err := s.profile(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrUsernameTaken
		}
		return Profile{}, err
	}
	return p, nil
}

// XPStatus returns a user's progression including the next threshold.
func (s *Service) XPStatus(ctx context.Context, userID string) (XPStatus, error) {
	var status XPStatus
	row := s.db.QueryRow(ctx, `SELECT id, xp, level FROM users WHERE id=$1`, userID)
	if err := row.Scan(&status.UserID, &status.XP, &status.Level); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return XPStatus{}, ErrNotFound
		}
		return XPStatus{}, err
	}

	status.MaxedXP = true
	for _, t := range xp.Levels {
		if t.RequiredXP > status.XP {
			status.NextXP = t.RequiredXP
			status.MaxedXP = false
			break
		}
	}
	return status, nil
}

// XPStatusByUsername resolves the handle first.
func (s *Service) XPStatusByUsername(ctx context.Context, username string) (XPStatus, error) {
	var id string
	row := s.db.QueryRow(ctx, `SELECT id FROM users WHERE username=$1`, username)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return XPStatus{}, ErrNotFound
		}
		return XPStatus{}, err
	}
	return s.XPStatus(ctx, id)
}

// Favorites lists a user's saved bubblers, newest first.
func (s *Service) Favorites(ctx context.Context, userID string) ([]Favorite, error) {
	rows, err := s.db.Query(ctx, `
		SELECT f.id, f.user_id, f.bubbler_id, b.name, f.created_at
		FROM favorites f
		JOIN bubblers b ON b.id = f.bubbler_id
		WHERE f.user_id=$1
		ORDER BY f.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.BubblerID, &f.BubblerName, &f.CreatedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, nil
}

// AddFavorite saves a bubbler. Saving twice is a no-op.
func (s *Service) AddFavorite(ctx context.Context, userID string, bubblerID int64) (Favorite, error) {
	var name string
	row := s.db.QueryRow(ctx, `SELECT name FROM bubblers WHERE id=$1`, bubblerID)
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Favorite{}, ErrNotFound
		}
		return Favorite{}, err
	}

	f := Favorite{UserID: userID, BubblerID: bubblerID, BubblerName: name}
	row = s.db.QueryRow(ctx, `
		INSERT INTO favorites (user_id, bubbler_id)
		VALUES ($1,$2)
		ON CONFLICT (user_id, bubbler_id) DO UPDATE SET user_id=EXCLUDED.user_id
		RETURNING id, created_at
	`, userID, bubblerID)
	if err := row.Scan(&f.ID, &f.CreatedAt); err != nil {
		return Favorite{}, err
	}
	return f, nil
}

// RemoveFavorite deletes the caller's own favorite.
func (s *Service) RemoveFavorite(ctx context.Context, userID string, bubblerID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM favorites WHERE user_id=$1 AND bubbler_id=$2`, userID, bubblerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
