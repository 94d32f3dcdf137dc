package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/db"
	"github.com/linuskang/bubbly/internal/notify"
	"github.com/linuskang/bubbly/internal/xp"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("review not found")
	ErrBubblerNotFound = errors.New("bubbler not found")
	ErrDuplicate       = errors.New("user has already reviewed this bubbler")
	ErrForbidden       = errors.New("not the review author")
)

type Service struct {
	db       db.Querier
	notifier notify.Notifier
	xp       *xp.Service
	validate *validator.Validate
}

func NewService(db db.Querier, notifier notify.Notifier, xpSvc *xp.Service) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		db:       db,
		notifier: notifier,
		xp:       xpSvc,
		validate: validator.New(),
	}
}

// Create adds a session user's review. The unique constraint on
// (user_id, bubbler_id) backs the one-review rule; the EXISTS probe
// just gives the common case a clean error without burning a failed
// insert.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor auth.Actor) (Review, error) {
	if err := s.validate.Struct(req); err != nil {
		return Review{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if actor.UserID == "" {
		return Review{}, fmt.Errorf("%w: session user required", ErrInvalidInput)
	}

	var bubblerName string
	row := s.db.QueryRow(ctx, `SELECT name FROM bubblers WHERE id=$1`, req.BubblerID)
	if err := row.Scan(&bubblerName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Review{}, ErrBubblerNotFound
		}
		return Review{}, err
	}

	var exists bool
	row = s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reviews WHERE user_id=$1 AND bubbler_id=$2)`,
		actor.UserID, req.BubblerID)
	if err := row.Scan(&exists); err != nil {
		return Review{}, err
	}
	if exists {
		return Review{}, ErrDuplicate
	}

	r := Review{
		BubblerID:   req.BubblerID,
		UserID:      actor.UserID,
		Rating:      req.Rating,
		Comment:     req.Comment,
		BubblerName: bubblerName,
	}
	row = s.db.QueryRow(ctx, `
		INSERT INTO reviews (bubbler_id, user_id, rating, comment)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at, updated_at
	`, r.BubblerID, r.UserID, r.Rating, r.Comment)
	if err := row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Review{}, ErrDuplicate
		}
		return Review{}, err
	}

	s.notifyCreated(ctx, r)
	if s.xp != nil {
		_, _ = s.xp.Give(ctx, r.UserID, fmt.Sprintf("review:%d", r.ID), xp.RewardAddReview)
	}
	return r, nil
}

// Delete removes a review. Allowed for the review's author or for
// API-key callers.
func (s *Service) Delete(ctx context.Context, id int64, actor auth.Actor) error {
	var r Review
	row := s.db.QueryRow(ctx, `SELECT id, bubbler_id, user_id, rating, comment FROM reviews WHERE id=$1`, id)
	if err := row.Scan(&r.ID, &r.BubblerID, &r.UserID, &r.Rating, &r.Comment); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if !actor.ViaAPIKey && actor.UserID != r.UserID {
		return ErrForbidden
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM reviews WHERE id=$1`, id); err != nil {
		return err
	}

	s.notifyDeleted(ctx, r)
	return nil
}

// ListByBubbler returns a bubbler's reviews with author usernames,
// newest first.
func (s *Service) ListByBubbler(ctx context.Context, bubblerID int64) ([]Review, error) {
	return s.queryMany(ctx, `
		SELECT r.id, r.bubbler_id, r.user_id, r.rating, r.comment, u.username, r.created_at, r.updated_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.bubbler_id=$1
		ORDER BY r.created_at DESC
	`, bubblerID)
}

// Recent returns the latest reviews across all bubblers.
func (s *Service) Recent(ctx context.Context, limit int) ([]Review, error) {
	return s.queryMany(ctx, `
		SELECT r.id, r.bubbler_id, r.user_id, r.rating, r.comment, u.username, r.created_at, r.updated_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at DESC
		LIMIT $1
	`, limit)
}

func (s *Service) queryMany(ctx context.Context, sql string, args ...any) ([]Review, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.BubblerID, &r.UserID, &r.Rating, &r.Comment,
			&r.Username, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Service) notifyCreated(ctx context.Context, r Review) {
	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("New review for %s", r.BubblerName),
		Embeds: []notify.Embed{{
			Title:     "Review Added",
			Color:     notify.ColorCreated,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Bubbler", Value: r.BubblerName, Inline: true},
				{Name: "Rating", Value: fmt.Sprintf("%.1f/5", r.Rating), Inline: true},
				{Name: "Comment", Value: r.Comment},
				{Name: "By", Value: r.UserID},
			},
		}},
	})
}

func (s *Service) notifyDeleted(ctx context.Context, r Review) {
	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("Review %d deleted", r.ID),
		Embeds: []notify.Embed{{
			Title:     "Review Deleted",
			Color:     notify.ColorDeleted,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Review ID", Value: fmt.Sprintf("%d", r.ID), Inline: true},
				{Name: "Bubbler ID", Value: fmt.Sprintf("%d", r.BubblerID), Inline: true},
			},
		}},
	})
}
