package models

import "time"

// ReviewPayload stores the canonical bytes of a review body keyed by their
// content address. Identical payloads share a row.
type ReviewPayload struct {
	ContentID string    `gorm:"column:content_id;primaryKey"`
	Body      []byte    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
