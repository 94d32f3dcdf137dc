package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func profileRow(id, username string) *pgxmock.Rows {
	image := "https://img.example/a.png"
	return pgxmock.NewRows([]string{"id", "username", "name", "image", "bio", "xp", "level", "created_at"}).
		AddRow(id, username, "Alice", &image, (*string)(nil), 60, 2, time.Now())
}

func TestProfileByUsername(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT id, username, name, image, bio, xp, level, created_at FROM users WHERE username=\$1`).
		WithArgs("alice").
		WillReturnRows(profileRow("user-1", "alice"))

	p, err := svc.ProfileByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.ID != "user-1" || p.XP != 60 || p.Level != 2 || p.Bio != "" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	mock.ExpectQuery(`SELECT id, username, name, image, bio, xp, level, created_at FROM users WHERE username=\$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	if _, err := svc.ProfileByUsername(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateSkipsNilFields(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	name := "Alice B"
	mock.ExpectQuery(`UPDATE users SET name=\$2, updated_at=now\(\) WHERE id=\$1`).
		WithArgs("user-1", "Alice B").
		WillReturnRows(profileRow("user-1", "alice"))

	if _, err := svc.Update(context.Background(), "user-1", UpdateRequest{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// An empty patch reads the profile back without writing.
	mock.ExpectQuery(`SELECT id, username, name, image, bio, xp, level, created_at FROM users WHERE id=\$1`).
		WithArgs("user-1").
		WillReturnRows(profileRow("user-1", "alice"))
	if _, err := svc.Update(context.Background(), "user-1", UpdateRequest{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateUsernameTaken(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	username := "Bob"
	mock.ExpectQuery(`UPDATE users SET username=\$2`).
		WithArgs("user-1", "bob").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := svc.Update(context.Background(), "user-1", UpdateRequest{Username: &username})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestUpdateRejectsBadInput(t *testing.T) {
	svc := NewService(newMock(t))

	bad := "no"
	_, err := svc.Update(context.Background(), "user-1", UpdateRequest{Username: &bad})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short username, got %v", err)
	}
}

func TestXPStatus(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT id, xp, level FROM users WHERE id=\$1`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "xp", "level"}).AddRow("user-1", 60, 2))

	status, err := svc.XPStatus(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("xp status: %v", err)
	}
	if status.NextXP != 100 || status.MaxedXP {
		t.Fatalf("unexpected status: %+v", status)
	}

	// Past the last threshold there is no next level.
	mock.ExpectQuery(`SELECT id, xp, level FROM users WHERE id=\$1`).
		WithArgs("user-2").
		WillReturnRows(pgxmock.NewRows([]string{"id", "xp", "level"}).AddRow("user-2", 900, 10))
	status, err = svc.XPStatus(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("xp status: %v", err)
	}
	if !status.MaxedXP {
		t.Fatalf("expected max level, got %+v", status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFavorites(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	now := time.Now()
	mock.ExpectQuery(`SELECT name FROM bubblers WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Park Fountain"))
	mock.ExpectQuery(`INSERT INTO favorites`).
		WithArgs("user-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	f, err := svc.AddFavorite(context.Background(), "user-1", 7)
	if err != nil {
		t.Fatalf("add favorite: %v", err)
	}
	if f.BubblerName != "Park Fountain" {
		t.Fatalf("unexpected favorite: %+v", f)
	}

	mock.ExpectQuery(`SELECT f.id, f.user_id, f.bubbler_id, b.name, f.created_at`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "bubbler_id", "name", "created_at"}).
			AddRow(int64(1), "user-1", int64(7), "Park Fountain", now))
	favorites, err := svc.Favorites(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("favorites: %v", err)
	}
	if len(favorites) != 1 {
		t.Fatalf("unexpected favorites: %+v", favorites)
	}

	mock.ExpectExec(`DELETE FROM favorites`).
		WithArgs("user-1", int64(7)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := svc.RemoveFavorite(context.Background(), "user-1", 7); err != nil {
		t.Fatalf("remove favorite: %v", err)
	}

	mock.ExpectExec(`DELETE FROM favorites`).
		WithArgs("user-1", int64(8)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := svc.RemoveFavorite(context.Background(), "user-1", 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
