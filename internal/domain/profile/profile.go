package profile

import "time"

// Profile is the one-to-one student profile record. It is created
// automatically when a student account is created.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	IsLocked  bool      `json:"isLocked"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
