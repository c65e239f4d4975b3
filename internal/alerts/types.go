package alerts

import "time"

// MaxExcerptRunes bounds the message excerpt carried by an alert.
const MaxExcerptRunes = 280

// RiskAlert is published when a user's message crosses the risk threshold.
type RiskAlert struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	UserName       string    `json:"user_name"`
	TrustedEmail   string    `json:"trusted_email"`
	MessageExcerpt string    `json:"message_excerpt"`
	RiskLevel      int       `json:"risk_level"`
	Reason         string    `json:"reason"`
	Context        string    `json:"context"`
	Topic          string    `json:"topic"`
	Delivered      bool      `json:"delivered"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
}

// Message is the body published on the alert topic.
type Message struct {
	Topic string    `json:"topic"`
	Alert RiskAlert `json:"alert"`
}
