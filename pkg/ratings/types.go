// Package ratings implements plugin ratings: one score per user per
// plugin, resubmission overwrites, and a denormalized mean/count
// aggregate kept consistent in the same transaction.
package ratings

import "time"

// Rating is one user's score for a plugin. Scores are integers 1..5.
type Rating struct {
	ID        string    `json:"id"`
	PluginID  string    `json:"plugin_id"`
	UserID    string    `json:"user_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Aggregate is the rating summary for a plugin. A plugin with no
// ratings has Mean 0 and Count 0.
type Aggregate struct {
	PluginID string  `json:"plugin_id"`
	Mean     float64 `json:"mean"`
	Count    int64   `json:"count"`
}

// SubmitRequest is the payload for rating submission. The comment is
// optional.
type SubmitRequest struct {
	Score   int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}
