package user

import "time"

// Profile is the public view of a user.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateRequest carries a partial profile update. Nil means "leave
// unchanged".
type UpdateRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Username *string `json:"username" validate:"omitempty,min=3,max=32,alphanum"`
	Image    *string `json:"image" validate:"omitempty,url"`
	Bio      *string `json:"bio" validate:"omitempty,max=500"`
}

// Favorite links a user to a bubbler they saved.
type Favorite struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	BubblerID   int64     `json:"bubblerId"`
	BubblerName string    `json:"bubblerName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// XPStatus reports a user's progression.
type XPStatus struct {
	UserID  string `json:"userId"`
	XP      int    `json:"xp"`
	Level   int    `json:"level"`
	NextXP  int    `json:"nextLevelXp"`
	MaxedXP bool   `json:"maxLevel"`
}
