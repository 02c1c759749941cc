// README: Shared identifiers and coordinates used across modules.
package types

import "github.com/google/uuid"

type ID string

type Point struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

func (p Point) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

func NewID() ID {
	return ID(uuid.NewString())
}
