package model

import "time"

// Category is a class the model can recognise.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AddedDate   time.Time `json:"added_date"`
	IsActive    bool      `json:"is_active"`
}
