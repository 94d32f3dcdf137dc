package waypoint

import "time"

// Waypoint is one mapped water-fountain-like fixture ("bubbler").
type Waypoint struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Description     string    `json:"description"`
	AddedBy         string    `json:"addedby"`
	AddedByUserID   string    `json:"addedbyuserid"`
	Verified        bool      `json:"verified"`
	IsAccessible    bool      `json:"isaccessible"`
	DogFriendly     bool      `json:"dogfriendly"`
	HasBottleFiller bool      `json:"hasbottlefiller"`
	Type            string    `json:"type"`
	ImageURL        string    `json:"imageUrl"`
	Maintainer      string    `json:"maintainer"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	Name            string   `json:"name" validate:"required"`
	Latitude        *float64 `json:"latitude" validate:"required,latitude"`
	Longitude       *float64 `json:"longitude" validate:"required,longitude"`
	Type            string   `json:"type" validate:"required,oneof=fountain bubbler tap"`
	Description     string   `json:"description"`
	AddedBy         string   `json:"addedby"`
	AddedByUserID   string   `json:"addedbyuserid"`
	ImageURL        string   `json:"imageUrl"`
	Maintainer      string   `json:"maintainer"`
	Verified        *bool    `json:"verified"`
	IsAccessible    *bool    `json:"isaccessible"`
	DogFriendly     *bool    `json:"dogfriendly"`
	HasBottleFiller *bool    `json:"hasbottlefiller"`
}

// Patch carries a partial update. Nil means "not submitted"; submitted
// values equal to the current persisted value are dropped from the
// update-set.
type Patch struct {
	Name            *string  `json:"name" validate:"omitempty,min=1"`
	Latitude        *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude       *float64 `json:"longitude" validate:"omitempty,longitude"`
	Type            *string  `json:"type" validate:"omitempty,oneof=fountain bubbler tap"`
	Description     *string  `json:"description"`
	AddedBy         *string  `json:"addedby"`
	ImageURL        *string  `json:"imageUrl"`
	Maintainer      *string  `json:"maintainer"`
	Verified        *bool    `json:"verified"`
	IsAccessible    *bool    `json:"isaccessible"`
	DogFriendly     *bool    `json:"dogfriendly"`
	HasBottleFiller *bool    `json:"hasbottlefiller"`
}

// Stats summarizes the whole map.
type Stats struct {
	TotalWaterFountains int      `json:"total_water_fountains"`
	TotalContributors   int      `json:"total_contributors"`
	Contributors        []string `json:"contributors"`
}
