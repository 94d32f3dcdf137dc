package report

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/linuskang/bubbly/internal/notify"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

type capturingNotifier struct {
	messages []notify.Message
}

func (n *capturingNotifier) Send(_ context.Context, msg notify.Message) error {
	n.messages = append(n.messages, msg)
	return nil
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func sessionAs(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func TestFileReport(t *testing.T) {
	mock := newMock(t)
	sink := &capturingNotifier{}
	svc := NewService(mock, sink)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM bubblers`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO reports`).
		WithArgs(pgxmock.AnyArg(), KindWaypoint, "7", "user-1", "vandalized").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	r, err := svc.File(context.Background(), KindWaypoint, "7", "user-1", "vandalized")
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if r.ID == "" || r.Kind != KindWaypoint {
		t.Fatalf("unexpected report: %+v", r)
	}
	if len(sink.messages) != 1 || sink.messages[0].Embeds[0].Color != notify.ColorReport {
		t.Fatalf("expected moderation notification, got %+v", sink.messages)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFileReportRejections(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, notify.Nop{})

	if _, err := svc.File(context.Background(), KindWaypoint, "7", "user-1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty reason, got %v", err)
	}

	if _, err := svc.File(context.Background(), "post", "7", "user-1", "spam"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown kind, got %v", err)
	}

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM users`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	if _, err := svc.File(context.Background(), KindUser, "ghost", "user-1", "spam"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}
}

func TestReportRoutes(t *testing.T) {
	mock := newMock(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/api"), NewService(mock, notify.Nop{}), sessionAs("user-1"))

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM reviews`).
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO reports`).
		WithArgs(pgxmock.AnyArg(), KindReview, "3", "user-1", "abusive").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	body := []byte(`{"reason":"abusive"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/reviews/report?reviewId=3", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("report review: %v status %d", err, resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/waypoints/report", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without id, got %d", resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
