package waypoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/linuskang/bubbly/internal/audit"
	"github.com/linuskang/bubbly/internal/auth"
	"github.com/linuskang/bubbly/internal/db"
	"github.com/linuskang/bubbly/internal/notify"
	"github.com/linuskang/bubbly/internal/shared/geo"
	"github.com/linuskang/bubbly/internal/xp"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("waypoint not found")
	ErrNoChanges    = errors.New("no changes detected")
)

const bubblerCols = `id, name, latitude, longitude, description, added_by, added_by_user_id, verified, is_accessible, dog_friendly, has_bottle_filler, type, image_url, maintainer, created_at, updated_at`

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

// Create inserts a waypoint and its CREATE audit entry in one
// transaction, then notifies the sink and awards XP best-effort.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor auth.Actor) (Waypoint, error) {
	if err := s.validate.Struct(req); err != nil {
		return Waypoint{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Session identity wins; API-key callers must name the user.
	userID := actor.UserID
	if userID == "" {
		userID = req.AddedByUserID
	}
	if userID == "" {
		return Waypoint{}, fmt.Errorf("%w: missing addedbyuserid or session user", ErrInvalidInput)
	}

	wp := Waypoint{
		Name:            req.Name,
		Latitude:        *req.Latitude,
		Longitude:       *req.Longitude,
		Description:     req.Description,
		AddedBy:         req.AddedBy,
		AddedByUserID:   userID,
		Verified:        boolValue(req.Verified),
		IsAccessible:    boolValue(req.IsAccessible),
		DogFriendly:     boolValue(req.DogFriendly),
		HasBottleFiller: boolValue(req.HasBottleFiller),
		Type:            req.Type,
		ImageURL:        req.ImageURL,
		Maintainer:      req.Maintainer,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Waypoint{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO bubblers (name, latitude, longitude, description, added_by, added_by_user_id, verified, is_accessible, dog_friendly, has_bottle_filler, type, image_url, maintainer)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, created_at, updated_at
	`, wp.Name, wp.Latitude, wp.Longitude, wp.Description, wp.AddedBy, wp.AddedByUserID,
		wp.Verified, wp.IsAccessible, wp.DogFriendly, wp.HasBottleFiller, wp.Type, wp.ImageURL, wp.Maintainer)
	if err := row.Scan(&wp.ID, &wp.CreatedAt, &wp.UpdatedAt); err != nil {
		return Waypoint{}, err
	}

	snapshot, err := json.Marshal(wp)
	if err != nil {
		return Waypoint{}, err
	}
	if _, err := audit.Record(ctx, tx, audit.Entry{
		BubblerID: wp.ID,
		UserID:    &userID,
		Action:    audit.ActionCreate,
		Changes:   snapshot,
	}); err != nil {
		return Waypoint{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Waypoint{}, err
	}

	s.notifyCreated(ctx, wp)
	s.award(ctx, userID, fmt.Sprintf("waypoint:create:%d", wp.ID), xp.RewardAddWaypoint)
	return wp, nil
}

// Update applies a partial patch. The update-set keeps only fields
// whose submitted value differs from the current row; an empty set
// fails with ErrNoChanges before any write. The row write and the
// UPDATE audit entry commit together, with the {old,new} pairs taken
// from the pre- and post-write persisted snapshots.
func (s *Service) Update(ctx context.Context, id int64, patch Patch, actor auth.Actor) (Waypoint, error) {
	if err := s.validate.Struct(patch); err != nil {
		return Waypoint{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Waypoint{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanWaypoint(tx.QueryRow(ctx, `SELECT `+bubblerCols+` FROM bubblers WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Waypoint{}, ErrNotFound
		}
		return Waypoint{}, err
	}

	var (
		set     []string
		args    = []any{id}
		changed []string
	)
	add := func(column, jsonName string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s=$%d", column, len(args)))
		changed = append(changed, jsonName)
	}

	if patch.Name != nil && *patch.Name != cur.Name {
		add("name", "name", *patch.Name)
	}
	if patch.Latitude != nil && *patch.Latitude != cur.Latitude {
		add("latitude", "latitude", *patch.Latitude)
	}
	if patch.Longitude != nil && *patch.Longitude != cur.Longitude {
		add("longitude", "longitude", *patch.Longitude)
	}
	if patch.Description != nil && *patch.Description != cur.Description {
		add("description", "description", *patch.Description)
	}
	if patch.AddedBy != nil && *patch.AddedBy != cur.AddedBy {
		add("added_by", "addedby", *patch.AddedBy)
	}
	if patch.Type != nil && *patch.Type != cur.Type {
		add("type", "type", *patch.Type)
	}
	if patch.ImageURL != nil && *patch.ImageURL != cur.ImageURL {
		add("image_url", "imageUrl", *patch.ImageURL)
	}
	if patch.Maintainer != nil && *patch.Maintainer != cur.Maintainer {
		add("maintainer", "maintainer", *patch.Maintainer)
	}
	if patch.Verified != nil && *patch.Verified != cur.Verified {
		add("verified", "verified", *patch.Verified)
	}
	if patch.IsAccessible != nil && *patch.IsAccessible != cur.IsAccessible {
		add("is_accessible", "isaccessible", *patch.IsAccessible)
	}
	if patch.DogFriendly != nil && *patch.DogFriendly != cur.DogFriendly {
		add("dog_friendly", "dogfriendly", *patch.DogFriendly)
	}
	if patch.HasBottleFiller != nil && *patch.HasBottleFiller != cur.HasBottleFiller {
		add("has_bottle_filler", "hasbottlefiller", *patch.HasBottleFiller)
	}

	if len(set) == 0 {
		return Waypoint{}, ErrNoChanges
	}

	query := fmt.Sprintf(`UPDATE bubblers SET %s, updated_at=now() WHERE id=$1 RETURNING %s`,
		strings.Join(set, ", "), bubblerCols)
	updated, err := scanWaypoint(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return Waypoint{}, err
	}

	changes := make(map[string]audit.FieldChange, len(changed))
	for _, f := range changed {
		changes[f] = audit.FieldChange{Old: fieldValue(cur, f), New: fieldValue(updated, f)}
	}
	payload, err := json.Marshal(changes)
	if err != nil {
		return Waypoint{}, err
	}

	var uid *string
	if actor.UserID != "" {
		uid = &actor.UserID
	}
	entry, err := audit.Record(ctx, tx, audit.Entry{
		BubblerID: id,
		UserID:    uid,
		Action:    audit.ActionUpdate,
		Changes:   payload,
	})
	if err != nil {
		return Waypoint{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Waypoint{}, err
	}

	s.notifyUpdated(ctx, updated, changed)
	if actor.UserID != "" {
		s.award(ctx, actor.UserID, fmt.Sprintf("waypoint:update:%d:%d", id, entry.ID), xp.RewardEditWaypoint)
	}
	return updated, nil
}

// Delete removes the row for good. No audit entry is written; the
// sink still gets the identifying fields.
func (s *Service) Delete(ctx context.Context, id int64) (Waypoint, error) {
	wp, err := s.Get(ctx, id)
	if err != nil {
		return Waypoint{}, err
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM bubblers WHERE id=$1`, id)
	if err != nil {
		return Waypoint{}, err
	}
	if tag.RowsAffected() == 0 {
		return Waypoint{}, ErrNotFound
	}

	s.notifyDeleted(ctx, wp)
	return wp, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Waypoint, error) {
	wp, err := scanWaypoint(s.db.QueryRow(ctx, `SELECT `+bubblerCols+` FROM bubblers WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Waypoint{}, ErrNotFound
		}
		return Waypoint{}, err
	}
	return wp, nil
}

func (s *Service) List(ctx context.Context) ([]Waypoint, error) {
	return s.queryMany(ctx, `SELECT `+bubblerCols+` FROM bubblers ORDER BY id`)
}

// SearchByName matches case-insensitively on a substring of the name.
func (s *Service) SearchByName(ctx context.Context, name string) ([]Waypoint, error) {
	return s.queryMany(ctx, `SELECT `+bubblerCols+` FROM bubblers WHERE name ILIKE '%' || $1 || '%' ORDER BY id`, name)
}

func (s *Service) Recent(ctx context.Context, limit int) ([]Waypoint, error) {
	return s.queryMany(ctx, `SELECT `+bubblerCols+` FROM bubblers ORDER BY created_at DESC LIMIT $1`, limit)
}

// Nearby returns waypoints within radiusKm of a point, closest first.
// A bounding box narrows the scan; haversine does the exact cut.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Waypoint, error) {
	latDelta := radiusKm / 111.0
	lngDelta := 360.0
	if cos := math.Cos(lat * math.Pi / 180); cos > 0.01 {
		lngDelta = radiusKm / (111.0 * cos)
	}

	candidates, err := s.queryMany(ctx, `
		SELECT `+bubblerCols+` FROM bubblers
		WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
	`, lat-latDelta, lat+latDelta, lng-lngDelta, lng+lngDelta)
	if err != nil {
		return nil, err
	}

	var results []Waypoint
	for _, wp := range candidates {
		if geo.HaversineKm(lat, lng, wp.Latitude, wp.Longitude) <= radiusKm {
			results = append(results, wp)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return geo.HaversineKm(lat, lng, results[i].Latitude, results[i].Longitude) <
			geo.HaversineKm(lat, lng, results[j].Latitude, results[j].Longitude)
	})
	return results, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	row := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM bubblers`)
	if err := row.Scan(&stats.TotalWaterFountains); err != nil {
		return Stats{}, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT added_by FROM bubblers WHERE added_by <> '' ORDER BY added_by
	`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var contributor string
		if err := rows.Scan(&contributor); err != nil {
			return Stats{}, err
		}
		stats.Contributors = append(stats.Contributors, contributor)
	}
	stats.TotalContributors = len(stats.Contributors)
	return stats, nil
}

func (s *Service) queryMany(ctx context.Context, sql string, args ...any) ([]Waypoint, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Waypoint
	for rows.Next() {
		wp, err := scanWaypoint(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, wp)
	}
	return results, nil
}

func (s *Service) award(ctx context.Context, userID, eventKey string, amount int) {
	if s.xp == nil {
		return
	}
	// Best effort: a failed award never fails the mutation.
	_, _ = s.xp.Give(ctx, userID, eventKey, amount)
}

func (s *Service) notifyCreated(ctx context.Context, wp Waypoint) {
	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("New waypoint added by %s", wp.AddedByUserID),
		Embeds: []notify.Embed{{
			Title:     "Waypoint Added",
			Color:     notify.ColorCreated,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Name", Value: wp.Name, Inline: true},
				{Name: "Type", Value: wp.Type, Inline: true},
				{Name: "Coordinates", Value: fmt.Sprintf("%f, %f", wp.Latitude, wp.Longitude)},
				{Name: "Accessible", Value: fmt.Sprintf("%t", wp.IsAccessible), Inline: true},
				{Name: "Dog Friendly", Value: fmt.Sprintf("%t", wp.DogFriendly), Inline: true},
				{Name: "Bottle Filler", Value: fmt.Sprintf("%t", wp.HasBottleFiller), Inline: true},
				{Name: "Added By", Value: wp.AddedByUserID},
			},
		}},
	})
}

func (s *Service) notifyUpdated(ctx context.Context, wp Waypoint, changed []string) {
	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("Waypoint %d updated", wp.ID),
		Embeds: []notify.Embed{{
			Title:     "Waypoint Updated",
			Color:     notify.ColorUpdated,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Waypoint ID", Value: fmt.Sprintf("%d", wp.ID), Inline: true},
				{Name: "Name", Value: wp.Name, Inline: true},
				{Name: "Changed Fields", Value: strings.Join(changed, ", ")},
			},
		}},
	})
}

func (s *Service) notifyDeleted(ctx context.Context, wp Waypoint) {
	_ = s.notifier.Send(ctx, notify.Message{
		Username: notify.BotName,
		Content:  fmt.Sprintf("Waypoint %d deleted", wp.ID),
		Embeds: []notify.Embed{{
			Title:     "Waypoint Deleted",
			Color:     notify.ColorDeleted,
			Timestamp: notify.Timestamp(time.Now()),
			Fields: []notify.Field{
				{Name: "Waypoint ID", Value: fmt.Sprintf("%d", wp.ID), Inline: true},
				{Name: "Name", Value: wp.Name, Inline: true},
				{Name: "Coordinates", Value: fmt.Sprintf("%f, %f", wp.Latitude, wp.Longitude)},
			},
		}},
	})
}

func scanWaypoint(row pgx.Row) (Waypoint, error) {
	var wp Waypoint
	err := row.Scan(&wp.ID, &wp.Name, &wp.Latitude, &wp.Longitude, &wp.Description,
		&wp.AddedBy, &wp.AddedByUserID, &wp.Verified, &wp.IsAccessible, &wp.DogFriendly,
		&wp.HasBottleFiller, &wp.Type, &wp.ImageURL, &wp.Maintainer, &wp.CreatedAt, &wp.UpdatedAt)
	if err != nil {
		return Waypoint{}, err
	}
	return wp, nil
}

func fieldValue(wp Waypoint, jsonName string) any {
	switch jsonName {
	case "name":
		return wp.Name
	case "latitude":
		return wp.Latitude
	case "longitude":
		return wp.Longitude
	case "description":
		return wp.Description
	case "addedby":
		return wp.AddedBy
	case "type":
		return wp.Type
	case "imageUrl":
		return wp.ImageURL
	case "maintainer":
		return wp.Maintainer
	case "verified":
		return wp.Verified
	case "isaccessible":
		return wp.IsAccessible
	case "dogfriendly":
		return wp.DogFriendly
	case "hasbottlefiller":
		return wp.HasBottleFiller
	}
	return nil
}

func boolValue(b *bool) bool {
	return b != nil && *b
}
