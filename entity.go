package camber

import "time"

// Entity carries the creation and modification timestamps shared by
// all persistent records.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
