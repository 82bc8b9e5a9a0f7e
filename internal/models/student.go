package models

import "time"

// Student is a directory entry used to route letter requests by program.
type Student struct {
	ID        string    `db:"id" json:"id"`
	NIM       string    `db:"nim" json:"nim"`
	Name      string    `db:"name" json:"name"`
	Program   string    `db:"program" json:"program"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
