package model

import "time"

// Project belongs to exactly one customer. Project group membership is a
// many-to-many overlay tracked separately and never implies ownership.
type Project struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
