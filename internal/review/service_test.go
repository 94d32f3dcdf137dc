package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/notify"
	"github.com/linuskang/bubbly/internal/xp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

func TestCreateReview(t *testing.T) {
	mock := newMock(t)
	sink := &capturingNotifier{}
	svc := NewService(mock, sink, xp.NewService(mock))

	now := time.Now()
	mock.ExpectQuery(`SELECT name FROM bubblers`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Park Fountain"))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO reviews`).
		WithArgs(int64(7), "user-1", 4.5, "cold and clean").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), now, now))
	mock.ExpectExec(`INSERT INTO xp_events`).
		WithArgs("review:3", "user-1", xp.RewardAddReview).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT xp, level FROM users`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"xp", "level"}).AddRow(0, 1))
	mock.ExpectExec(`UPDATE users SET xp`).
		WithArgs("user-1", 10, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	r, err := svc.Create(context.Background(), CreateRequest{
		BubblerID: 7, Rating: 4.5, Comment: "cold and clean",
	}, auth.Actor{UserID: "user-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID != 3 || r.BubblerName != "Park Fountain" {
		t.Fatalf("unexpected review: %+v", r)
	}
	if len(sink.messages) != 1 || sink.messages[0].Embeds[0].Title != "Review Added" {
		t.Fatalf("expected notification, got %+v", sink.messages)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateReviewRejections(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, notify.Nop{}, nil)

	// Rating outside 1..5 fails validation before any query.
	_, err := svc.Create(context.Background(), CreateRequest{BubblerID: 7, Rating: 6}, auth.Actor{UserID: "user-1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// API-key callers have no session user to attribute the review to.
	_, err = svc.Create(context.Background(), CreateRequest{BubblerID: 7, Rating: 4}, auth.Actor{ViaAPIKey: true})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing session, got %v", err)
	}

	mock.ExpectQuery(`SELECT name FROM bubblers`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	_, err = svc.Create(context.Background(), CreateRequest{BubblerID: 99, Rating: 4}, auth.Actor{UserID: "user-1"})
	if !errors.Is(err, ErrBubblerNotFound) {
		t.Fatalf("expected ErrBubblerNotFound, got %v", err)
	}
}

func TestCreateReviewDuplicate(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, notify.Nop{}, nil)

	mock.ExpectQuery(`SELECT name FROM bubblers`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Park Fountain"))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := svc.Create(context.Background(), CreateRequest{BubblerID: 7, Rating: 4}, auth.Actor{UserID: "user-1"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// A concurrent insert can slip past the probe; the constraint
	// violation maps to the same error.
	mock.ExpectQuery(`SELECT name FROM bubblers`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Park Fountain"))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("user-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO reviews`).
		WithArgs(int64(7), "user-1", 4.0, "").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = svc.Create(context.Background(), CreateRequest{BubblerID: 7, Rating: 4}, auth.Actor{UserID: "user-1"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate from constraint, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteReviewAuthorization(t *testing.T) {
	mock := newMock(t)
	sink := &capturingNotifier{}
	svc := NewService(mock, sink, nil)

	reviewRow := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"id", "bubbler_id", "user_id", "rating", "comment"}).
			AddRow(int64(3), int64(7), "user-1", 4.0, "ok")
	}

	// A different session user cannot delete someone else's review.
	mock.ExpectQuery(`SELECT id, bubbler_id, user_id, rating, comment FROM reviews`).
		WithArgs(int64(3)).
		WillReturnRows(reviewRow())
	if err := svc.Delete(context.Background(), 3, auth.Actor{UserID: "user-2"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	// The author can.
	mock.ExpectQuery(`SELECT id, bubbler_id, user_id, rating, comment FROM reviews`).
		WithArgs(int64(3)).
		WillReturnRows(reviewRow())
	mock.ExpectExec(`DELETE FROM reviews`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.Delete(context.Background(), 3, auth.Actor{UserID: "user-1"}); err != nil {
		t.Fatalf("author delete: %v", err)
	}

	// So can an API-key caller.
	mock.ExpectQuery(`SELECT id, bubbler_id, user_id, rating, comment FROM reviews`).
		WithArgs(int64(3)).
		WillReturnRows(reviewRow())
	mock.ExpectExec(`DELETE FROM reviews`).
		WithArgs(int64(3)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.Delete(context.Background(), 3, auth.Actor{ViaAPIKey: true}); err != nil {
		t.Fatalf("api key delete: %v", err)
	}

	mock.ExpectQuery(`SELECT id, bubbler_id, user_id, rating, comment FROM reviews`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	if err := svc.Delete(context.Background(), 99, auth.Actor{ViaAPIKey: true}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if len(sink.messages) != 2 {
		t.Fatalf("expected two delete notifications, got %d", len(sink.messages))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListByBubbler(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, notify.Nop{}, nil)

	now := time.Now()
	mock.ExpectQuery(`SELECT r.id, r.bubbler_id, r.user_id, r.rating, r.comment, u.username`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "bubbler_id", "user_id", "rating", "comment", "username", "created_at", "updated_at"}).
			AddRow(int64(2), int64(7), "user-2", 5.0, "great", "bob", now, now).
			AddRow(int64(1), int64(7), "user-1", 3.5, "fine", "alice", now, now))

	reviews, err := svc.ListByBubbler(context.Background(), 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reviews) != 2 || reviews[0].Username != "bob" {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
