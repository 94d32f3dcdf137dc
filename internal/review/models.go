package review

import "time"

// Review is one user's rating of a bubbler. A user gets at most one
// review per bubbler.
type Review struct {
	ID          int64     `json:"id"`
	BubblerID   int64     `json:"bubblerId"`
	UserID      string    `json:"userId"`
	Rating      float64   `json:"rating"`
	Comment     string    `json:"comment"`
	Username    string    `json:"username,omitempty"`
	BubblerName string    `json:"bubblerName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreateRequest struct {
	BubblerID int64   `json:"bubblerId" validate:"required"`
	Rating    float64 `json:"rating" validate:"required,min=1,max=5"`
	Comment   string  `json:"comment"`
}
