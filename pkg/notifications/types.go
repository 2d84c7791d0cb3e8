// Package notifications delivers operator-facing alerts for events raised
// on the account sync event bus: fatal ledger corruption (Ledger Store),
// every rate-limit trip (RPC Gateway), and every connectivity gap the
// Sync Scheduler detects, raised before it tries to fill the gap.
package notifications

import (
	"encoding/json"
	"time"
)

// NotificationType represents the type of notification channel.
type NotificationType string

const (
	NotificationTypeWebhook NotificationType = "webhook"
	NotificationTypeEmail   NotificationType = "email"
	NotificationTypeSlack   NotificationType = "slack"
)

// EventType represents account sync event types that can trigger notifications.
type EventType string

const (
	EventTypeGapDetected    EventType = "gap_detected"
	EventTypeLedgerCorrupt  EventType = "ledger_corrupt"
	EventTypeRateLimited    EventType = "rate_limited"
)

// DeliveryStatus represents the status of a notification delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

// NotificationSetting represents a user's notification configuration.
type NotificationSetting struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        NotificationType `json:"type"`
	Enabled     bool             `json:"enabled"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	EventTypes  []EventType      `json:"event_types"`
	Filter      *NotifyFilter    `json:"filter,omitempty"`
	Destination Destination      `json:"destination"`
}

// NotifyFilter defines conditions for triggering notifications.
type NotifyFilter struct {
	AccountIDs []string `json:"account_ids,omitempty"`
	MinAmount  *string  `json:"min_amount,omitempty"`
}

// Destination contains channel-specific delivery settings.
type Destination struct {
	// Webhook settings
	WebhookURL     string            `json:"webhook_url,omitempty"`
	WebhookHeaders map[string]string `json:"webhook_headers,omitempty"`
	WebhookSecret  string            `json:"webhook_secret,omitempty"`

	// Email settings
	EmailTo      []string `json:"email_to,omitempty"`
	EmailCC      []string `json:"email_cc,omitempty"`
	EmailSubject string   `json:"email_subject,omitempty"`

	// Slack settings
	SlackWebhookURL string `json:"slack_webhook_url,omitempty"`
	SlackChannel    string `json:"slack_channel,omitempty"`
	SlackUsername   string `json:"slack_username,omitempty"`
}

// Notification represents a notification to be delivered.
type Notification struct {
	ID         string           `json:"id"`
	SettingID  string           `json:"setting_id"`
	Type       NotificationType `json:"type"`
	EventType  EventType        `json:"event_type"`
	Payload    *EventPayload    `json:"payload"`
	Status     DeliveryStatus   `json:"status"`
	RetryCount int              `json:"retry_count"`
	NextRetry  *time.Time       `json:"next_retry,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	SentAt     *time.Time       `json:"sent_at,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// EventPayload contains the account sync event data.
type EventPayload struct {
	AccountID string          `json:"account_id"`
	Block     uint64          `json:"block"`
	Timestamp time.Time       `json:"timestamp"`
	EventType EventType       `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// GapDetectedData contains gap-detection-specific event data.
type GapDetectedData struct {
	PrevBlock uint64   `json:"prev_block"`
	NextBlock uint64   `json:"next_block"`
	Errors    []string `json:"errors,omitempty"`
}

// LedgerCorruptData contains ledger-corruption-specific event data.
type LedgerCorruptData struct {
	Err string `json:"err"`
}

// RateLimitedData contains rate-limit-trip-specific event data.
type RateLimitedData struct {
	Method string `json:"method"`
}

// DeliveryResult contains the result of a notification delivery attempt.
type DeliveryResult struct {
	Success      bool      `json:"success"`
	StatusCode   int       `json:"status_code,omitempty"`
	ResponseBody string    `json:"response_body,omitempty"`
	Error        string    `json:"error,omitempty"`
	DeliveredAt  time.Time `json:"delivered_at"`
	Duration     int64     `json:"duration_ms"`
}

// DeliveryHistory tracks notification delivery attempts.
type DeliveryHistory struct {
	NotificationID string           `json:"notification_id"`
	SettingID      string           `json:"setting_id"`
	Attempt        int              `json:"attempt"`
	Result         *DeliveryResult  `json:"result"`
	Timestamp      time.Time        `json:"timestamp"`
}

// NotificationStats contains statistics for a notification setting.
type NotificationStats struct {
	SettingID      string    `json:"setting_id"`
	TotalSent      int64     `json:"total_sent"`
	TotalFailed    int64     `json:"total_failed"`
	TotalPending   int64     `json:"total_pending"`
	LastSentAt     *time.Time `json:"last_sent_at,omitempty"`
	LastFailedAt   *time.Time `json:"last_failed_at,omitempty"`
	AvgDeliveryMs  float64   `json:"avg_delivery_ms"`
	SuccessRate    float64   `json:"success_rate"`
}
