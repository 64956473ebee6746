package models

import "time"

// Project is a monitored working directory. Created on the first observed
// session in that directory, immutable afterwards except path normalization.
type Project struct {
	ID        string
	Name      string
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
