package notifications

import (
	"context"
	"testing"
	"time"
)

// mockKVStore implements KVStore for testing
type mockKVStore struct {
	data map[string][]byte
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{
		data: make(map[string][]byte),
	}
}

func (m *mockKVStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if v, ok := m.data[string(key)]; ok {
		return v, nil
	}
	return nil, nil
}

func (m *mockKVStore) Put(ctx context.Context, key, value []byte) error {
	m.data[string(key)] = value
	return nil
}

func (m *mockKVStore) Delete(ctx context.Context, key []byte) error {
	delete(m.data, string(key))
	return nil
}

func (m *mockKVStore) Iterate(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error {
	prefixStr := string(prefix)
	for k, v := range m.data {
		if len(k) >= len(prefixStr) && k[:len(prefixStr)] == prefixStr {
			if !fn([]byte(k), v) {
				break
			}
		}
	}
	return nil
}

func (m *mockKVStore) Has(ctx context.Context, key []byte) (bool, error) {
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *mockKVStore) Close() error {
	return nil
}

func TestNewPebbleStorage(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)

	if storage == nil {
		t.Fatal("expected non-nil storage")
	}
}

func TestPebbleStorage_SaveAndGetSetting(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	setting := &NotificationSetting{
		ID:      "setting-001",
		Name:    "Test Setting",
		Type:    NotificationTypeWebhook,
		Enabled: true,
		Destination: Destination{
			WebhookURL: "https://example.com/webhook",
		},
		CreatedAt: time.Now(),
	}

	// Save
	err := storage.SaveSetting(ctx, setting)
	if err != nil {
		t.Fatalf("failed to save setting: %v", err)
	}

	// Get
	retrieved, err := storage.GetSetting(ctx, "setting-001")
	if err != nil {
		t.Fatalf("failed to get setting: %v", err)
	}

	if retrieved == nil {
		t.Fatal("expected setting to be found")
	}
	if retrieved.ID != setting.ID {
		t.Errorf("expected ID %s, got %s", setting.ID, retrieved.ID)
	}
	if retrieved.Name != setting.Name {
		t.Errorf("expected Name %s, got %s", setting.Name, retrieved.Name)
	}
	if retrieved.Type != setting.Type {
		t.Errorf("expected Type %v, got %v", setting.Type, retrieved.Type)
	}
}

func TestPebbleStorage_GetSetting_NotFound(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	retrieved, err := storage.GetSetting(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil for nonexistent setting")
	}
}

func TestPebbleStorage_DeleteSetting(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	setting := &NotificationSetting{
		ID:   "setting-to-delete",
		Name: "Delete Me",
	}

	// Save
	storage.SaveSetting(ctx, setting)

	// Verify exists
	retrieved, _ := storage.GetSetting(ctx, "setting-to-delete")
	if retrieved == nil {
		t.Fatal("expected setting to exist before delete")
	}

	// Delete
	err := storage.DeleteSetting(ctx, "setting-to-delete")
	if err != nil {
		t.Fatalf("failed to delete setting: %v", err)
	}

	// Verify deleted
	retrieved, _ = storage.GetSetting(ctx, "setting-to-delete")
	if retrieved != nil {
		t.Error("expected setting to be deleted")
	}
}

func TestPebbleStorage_ListSettings(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	// Create multiple settings
	settings := []*NotificationSetting{
		{ID: "setting-001", Name: "Setting 1", Type: NotificationTypeWebhook, Enabled: true},
		{ID: "setting-002", Name: "Setting 2", Type: NotificationTypeEmail, Enabled: false},
		{ID: "setting-003", Name: "Setting 3", Type: NotificationTypeSlack, Enabled: true},
	}

	for _, s := range settings {
		storage.SaveSetting(ctx, s)
	}

	t.Run("list all", func(t *testing.T) {
		result, err := storage.ListSettings(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list settings: %v", err)
		}
		if len(result) != 3 {
			t.Errorf("expected 3 settings, got %d", len(result))
		}
	})

	t.Run("filter by enabled", func(t *testing.T) {
		enabled := true
		filter := &SettingsFilter{Enabled: &enabled}
		result, err := storage.ListSettings(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list settings: %v", err)
		}
		if len(result) != 2 {
			t.Errorf("expected 2 enabled settings, got %d", len(result))
		}
	})

	t.Run("filter by type", func(t *testing.T) {
		filter := &SettingsFilter{Types: []NotificationType{NotificationTypeWebhook}}
		result, err := storage.ListSettings(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list settings: %v", err)
		}
		if len(result) != 1 {
			t.Errorf("expected 1 webhook setting, got %d", len(result))
		}
	})

	t.Run("with limit", func(t *testing.T) {
		filter := &SettingsFilter{Limit: 2}
		result, err := storage.ListSettings(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list settings: %v", err)
		}
		if len(result) > 2 {
			t.Errorf("expected at most 2 settings, got %d", len(result))
		}
	})

	t.Run("with offset", func(t *testing.T) {
		filter := &SettingsFilter{Offset: 1, Limit: 10}
		result, err := storage.ListSettings(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list settings: %v", err)
		}
		if len(result) != 2 {
			t.Errorf("expected 2 settings after offset, got %d", len(result))
		}
	})
}

func TestPebbleStorage_SaveAndGetNotification(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	now := time.Now()
	notification := &Notification{
		ID:        "notif-001",
		SettingID: "setting-001",
		Type:      NotificationTypeWebhook,
		EventType: EventTypeGapDetected,
		Status:    DeliveryStatusPending,
		CreatedAt: now,
		Payload: &EventPayload{
			AccountID: "arizcredits.near",
			Block:     12345,
			Timestamp: now,
		},
	}

	// Save
	err := storage.SaveNotification(ctx, notification)
	if err != nil {
		t.Fatalf("failed to save notification: %v", err)
	}

	// Get
	retrieved, err := storage.GetNotification(ctx, "notif-001")
	if err != nil {
		t.Fatalf("failed to get notification: %v", err)
	}

	if retrieved == nil {
		t.Fatal("expected notification to be found")
	}
	if retrieved.ID != notification.ID {
		t.Errorf("expected ID %s, got %s", notification.ID, retrieved.ID)
	}
	if retrieved.Status != notification.Status {
		t.Errorf("expected Status %v, got %v", notification.Status, retrieved.Status)
	}
}

func TestPebbleStorage_GetNotification_NotFound(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	retrieved, err := storage.GetNotification(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retrieved != nil {
		t.Error("expected nil for nonexistent notification")
	}
}

func TestPebbleStorage_UpdateNotificationStatus(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	now := time.Now()
	notification := &Notification{
		ID:        "notif-002",
		SettingID: "setting-001",
		Status:    DeliveryStatusPending,
		CreatedAt: now,
	}

	storage.SaveNotification(ctx, notification)

	t.Run("update to sent", func(t *testing.T) {
		err := storage.UpdateNotificationStatus(ctx, "notif-002", DeliveryStatusSent, "")
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		retrieved, _ := storage.GetNotification(ctx, "notif-002")
		if retrieved.Status != DeliveryStatusSent {
			t.Errorf("expected status sent, got %v", retrieved.Status)
		}
		if retrieved.SentAt == nil {
			t.Error("expected SentAt to be set")
		}
	})

	t.Run("update to failed", func(t *testing.T) {
		err := storage.UpdateNotificationStatus(ctx, "notif-002", DeliveryStatusFailed, "connection refused")
		if err != nil {
			t.Fatalf("failed to update status: %v", err)
		}

		retrieved, _ := storage.GetNotification(ctx, "notif-002")
		if retrieved.Status != DeliveryStatusFailed {
			t.Errorf("expected status failed, got %v", retrieved.Status)
		}
		if retrieved.Error != "connection refused" {
			t.Errorf("expected error message, got %s", retrieved.Error)
		}
	})

	t.Run("update nonexistent", func(t *testing.T) {
		err := storage.UpdateNotificationStatus(ctx, "nonexistent", DeliveryStatusSent, "")
		if err == nil {
			t.Error("expected error for nonexistent notification")
		}
	})
}

func TestPebbleStorage_ListNotifications(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	now := time.Now()
	notifications := []*Notification{
		{ID: "notif-001", SettingID: "setting-001", Status: DeliveryStatusPending, CreatedAt: now},
		{ID: "notif-002", SettingID: "setting-001", Status: DeliveryStatusSent, CreatedAt: now.Add(time.Hour)},
		{ID: "notif-003", SettingID: "setting-002", Status: DeliveryStatusPending, CreatedAt: now.Add(2 * time.Hour)},
	}

	for _, n := range notifications {
		storage.SaveNotification(ctx, n)
	}

	t.Run("list all", func(t *testing.T) {
		result, err := storage.ListNotifications(ctx, nil)
		if err != nil {
			t.Fatalf("failed to list notifications: %v", err)
		}
		if len(result) != 3 {
			t.Errorf("expected 3 notifications, got %d", len(result))
		}
	})

	t.Run("with limit", func(t *testing.T) {
		filter := &NotificationsFilter{Limit: 2}
		result, err := storage.ListNotifications(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list notifications: %v", err)
		}
		if len(result) > 2 {
			t.Errorf("expected at most 2 notifications, got %d", len(result))
		}
	})

	t.Run("filter by time range", func(t *testing.T) {
		fromTime := now.Add(30 * time.Minute)
		filter := &NotificationsFilter{FromTime: &fromTime}
		result, err := storage.ListNotifications(ctx, filter)
		if err != nil {
			t.Fatalf("failed to list notifications: %v", err)
		}
		// Should only return notifications after fromTime
		for _, n := range result {
			if n.CreatedAt.Before(fromTime) {
				t.Errorf("notification %s should not be included (created at %v)", n.ID, n.CreatedAt)
			}
		}
	})
}

func TestPebbleStorage_GetPendingNotifications(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	now := time.Now()
	pastTime := now.Add(-1 * time.Hour)
	futureTime := now.Add(1 * time.Hour)

	notifications := []*Notification{
		{ID: "notif-001", Status: DeliveryStatusPending, CreatedAt: pastTime, NextRetry: &pastTime},
		{ID: "notif-002", Status: DeliveryStatusRetrying, CreatedAt: pastTime, NextRetry: &pastTime},
		{ID: "notif-003", Status: DeliveryStatusPending, CreatedAt: now, NextRetry: &futureTime},
		{ID: "notif-004", Status: DeliveryStatusSent, CreatedAt: pastTime}, // Not pending
	}

	for _, n := range notifications {
		storage.SaveNotification(ctx, n)
	}

	result, err := storage.GetPendingNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("failed to get pending notifications: %v", err)
	}

	// Should return notifications where NextRetry <= now
	if len(result) != 2 {
		t.Errorf("expected 2 pending notifications, got %d", len(result))
	}
}

func TestPebbleStorage_SaveAndGetDeliveryHistory(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	now := time.Now()
	histories := []*DeliveryHistory{
		{
			NotificationID: "notif-001",
			SettingID:      "setting-001",
			Attempt:        1,
			Timestamp:      now,
			Result: &DeliveryResult{
				Success:    false,
				StatusCode: 500,
				Error:      "server error",
			},
		},
		{
			NotificationID: "notif-001",
			SettingID:      "setting-001",
			Attempt:        2,
			Timestamp:      now.Add(time.Minute),
			Result: &DeliveryResult{
				Success:    true,
				StatusCode: 200,
			},
		},
	}

	for _, h := range histories {
		err := storage.SaveDeliveryHistory(ctx, h)
		if err != nil {
			t.Fatalf("failed to save history: %v", err)
		}
	}

	// Get history
	result, err := storage.GetDeliveryHistory(ctx, "notif-001")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}

	if len(result) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(result))
	}
}

func TestPebbleStorage_GetStats(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	t.Run("nonexistent returns empty stats", func(t *testing.T) {
		stats, err := storage.GetStats(ctx, "setting-new")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stats == nil {
			t.Fatal("expected stats, got nil")
		}
		if stats.SettingID != "setting-new" {
			t.Errorf("expected setting ID, got %s", stats.SettingID)
		}
		if stats.TotalSent != 0 {
			t.Errorf("expected 0 total sent, got %d", stats.TotalSent)
		}
	})
}

func TestPebbleStorage_IncrementStats(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	t.Run("increment success", func(t *testing.T) {
		err := storage.IncrementStats(ctx, "setting-001", true, 100)
		if err != nil {
			t.Fatalf("failed to increment stats: %v", err)
		}

		stats, _ := storage.GetStats(ctx, "setting-001")
		if stats.TotalSent != 1 {
			t.Errorf("expected TotalSent 1, got %d", stats.TotalSent)
		}
		if stats.LastSentAt == nil {
			t.Error("expected LastSentAt to be set")
		}
	})

	t.Run("increment failure", func(t *testing.T) {
		err := storage.IncrementStats(ctx, "setting-001", false, 0)
		if err != nil {
			t.Fatalf("failed to increment stats: %v", err)
		}

		stats, _ := storage.GetStats(ctx, "setting-001")
		if stats.TotalFailed != 1 {
			t.Errorf("expected TotalFailed 1, got %d", stats.TotalFailed)
		}
		if stats.LastFailedAt == nil {
			t.Error("expected LastFailedAt to be set")
		}
	})

	t.Run("success rate calculation", func(t *testing.T) {
		// Reset
		store = newMockKVStore()
		storage = NewPebbleStorage(store)

		// 3 success, 1 failure = 75% success rate
		storage.IncrementStats(ctx, "setting-002", true, 100)
		storage.IncrementStats(ctx, "setting-002", true, 100)
		storage.IncrementStats(ctx, "setting-002", true, 100)
		storage.IncrementStats(ctx, "setting-002", false, 0)

		stats, _ := storage.GetStats(ctx, "setting-002")
		if stats.TotalSent != 3 {
			t.Errorf("expected TotalSent 3, got %d", stats.TotalSent)
		}
		if stats.TotalFailed != 1 {
			t.Errorf("expected TotalFailed 1, got %d", stats.TotalFailed)
		}
		if stats.SuccessRate != 75.0 {
			t.Errorf("expected SuccessRate 75.0, got %f", stats.SuccessRate)
		}
	})
}

func TestPebbleStorage_CleanupOldHistory(t *testing.T) {
	store := newMockKVStore()
	storage := NewPebbleStorage(store)
	ctx := context.Background()

	t.Run("cleanup with no history", func(t *testing.T) {
		cutoff := time.Now()
		count, err := storage.CleanupOldHistory(ctx, cutoff)
		if err != nil {
			t.Fatalf("failed to cleanup: %v", err)
		}
		// No history to clean
		if count != 0 {
			t.Errorf("expected 0 deleted, got %d", count)
		}
	})

	t.Run("cleanup deletes history older than cutoff", func(t *testing.T) {
		// Save some history
		now := time.Now()
		oldTime := now.Add(-48 * time.Hour)
		recentTime := now.Add(-1 * time.Hour)

		histories := []*DeliveryHistory{
			{NotificationID: "notif-001", Attempt: 1, Timestamp: oldTime},
			{NotificationID: "notif-001", Attempt: 2, Timestamp: oldTime},
			{NotificationID: "notif-002", Attempt: 1, Timestamp: recentTime},
		}

		for _, h := range histories {
			storage.SaveDeliveryHistory(ctx, h)
		}

		// Both notif-001 attempts are older than the cutoff; the single
		// notif-002 attempt is newer and survives.
		cutoff := now.Add(-24 * time.Hour)
		count, err := storage.CleanupOldHistory(ctx, cutoff)
		if err != nil {
			t.Fatalf("cleanup should not error: %v", err)
		}

		if count != 2 {
			t.Errorf("expected 2 deleted, got %d", count)
		}

		h1, _ := storage.GetDeliveryHistory(ctx, "notif-001")
		if len(h1) != 0 {
			t.Errorf("expected 0 history records for notif-001, got %d", len(h1))
		}

		h2, _ := storage.GetDeliveryHistory(ctx, "notif-002")
		if len(h2) != 1 {
			t.Errorf("expected 1 history record for notif-002, got %d", len(h2))
		}
	})
}
