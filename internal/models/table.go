package models

// TableKind selects which group of seating resources to reserve from
type TableKind string

const (
	KindTable TableKind = "table"
	KindBar   TableKind = "bar"
)

// Table is a seating or bar resource. Availability is owned by the table
// session manager; no other component writes it.
type Table struct {
	ID        int64  `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Capacity  int    `json:"capacity" db:"capacity"`
	Available bool   `json:"available" db:"available"`
}
