package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/db"
	"github.com/linuskang/bubbly/internal/notify"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Report kinds match the moderated entity.
const (
	KindWaypoint = "waypoint"
	KindReview   = "review"
	KindUser     = "user"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrTargetNotFound = errors.New("report target not found")
)

type Report struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TargetID   string    `json:"targetId"`
	ReporterID string    `json:"reporterId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Service struct {
	db       db.Querier
	notifier notify.Notifier
}

func NewService(db db.Querier, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{db: db, notifier: notifier}
}

// File verifies the target exists, persists the report, and pushes it
// to the moderation channel.
func (s *Service) File(ctx context.Context, kind, targetID, reporterID, reason string) (Report, error) {
	if reason == "" {
		return Report{}, fmt.Errorf("%w: reason required", ErrInvalidInput)
	}

	exists, err := s.targetExists(ctx, kind, targetID)
	if err != nil {
		return Report{}, err
	}
	if !exists {
		return Report{}, ErrTargetNotFound
	}

	r := Report{
		ID:         uuid.NewString(),
		Kind:       kind,
		TargetID:   targetID,
		ReporterID: reporterID,
		Reason:     reason,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO reports (id, kind, target_id, reporter_id, reason)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, r.ID, r.Kind, r.TargetID, r.ReporterID, r.Reason)
	if err := row.Scan(&r.CreatedAt); err != nil {
		return Report{}, err
	}

	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("New %s report", r.Kind),
		Embeds: []notify.Embed{{
			Title:     "Report Filed",
			Color:     notify.ColorReport,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Kind", Value: r.Kind, Inline: true},
				{Name: "Target", Value: r.TargetID, Inline: true},
				{Name: "Reason", Value: r.Reason},
				{Name: "Reported By", Value: r.ReporterID},
			},
		}},
	})
	return r, nil
}

func (s *Service) targetExists(ctx context.Context, kind, targetID string) (bool, error) {
	var query string
	var arg any = targetID
	switch kind {
	case KindWaypoint:
		id, err := strconv.ParseInt(targetID, 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: invalid waypoint id", ErrInvalidInput)
		}
		query, arg = `SELECT EXISTS (SELECT 1 FROM bubblers WHERE id=$1)`, id
	case KindReview:
		id, err := strconv.ParseInt(targetID, 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: invalid review id", ErrInvalidInput)
		}
		query, arg = `SELECT EXISTS (SELECT 1 FROM reviews WHERE id=$1)`, id
	case KindUser:
		query = `SELECT EXISTS (SELECT 1 FROM users WHERE username=$1)`
	default:
		return false, fmt.Errorf("%w: unknown report kind %q", ErrInvalidInput, kind)
	}

	var exists bool
	row := s.db.QueryRow(ctx, query, arg)
	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

type fileRequest struct {
	Reason string `json:"reason"`
}

// RegisterRoutes mounts the three report endpoints under their entity
// groups.
func RegisterRoutes(api fiber.Router, svc *Service, sessionAuth fiber.Handler) {
	api.Post("/waypoints/report", sessionAuth, func(c *fiber.Ctx) error {
		return file(c, svc, KindWaypoint, c.Query("id"))
	})
	api.Post("/reviews/report", sessionAuth, func(c *fiber.Ctx) error {
		return file(c, svc, KindReview, c.Query("reviewId"))
	})
	api.Post("/user/:username/report", sessionAuth, func(c *fiber.Ctx) error {
		return file(c, svc, KindUser, c.Params("username"))
	})
}

func file(c *fiber.Ctx, svc *Service, kind, targetID string) error {
	if targetID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing target id")
	}
	var body fileRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	r, err := svc.File(c.Context(), kind, targetID, auth.ActorFromCtx(c).UserID, body.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrTargetNotFound):
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidInput):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(r)
}
