package handlers

import (
	"net/http"
	"testing"

	"github.com/cloudly/backend/internal/models"
)

func TestProfileMetaCreatedLazily(t *testing.T) {
	env := setupTestEnv(t)
	user, token := createTestUser(t, env.db, "meta@example.com", "supersecret", true)

	resp := performRequest(t, env.app, http.MethodGet, "/api/profile/meta", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	data := dataMap(t, decodeJSONMap(t, resp))
	if data["onboardingCompleted"] != false {
		t.Fatal("expected onboarding incomplete by default")
	}

	var count int64
	env.db.Model(&models.UserMeta{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected meta row created, got %d", count)
	}
}

func TestSetOnboarding(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "onboard@example.com", "supersecret", true)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/profile/onboarding", map[string]any{
		"completed": true,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/profile/meta", nil, authHeaders(token))
	if dataMap(t, decodeJSONMap(t, resp))["onboardingCompleted"] != true {
		t.Fatal("expected onboarding completed after update")
	}
}

func TestNotificationsAfterUpload(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestUser(t, env.db, "notify@example.com", "supersecret", true)

	body, contentType := multipartUpload(t, map[string][]byte{
		"a.txt": []byte("one"),
		"b.txt": []byte("two"),
	}, "Work")
	headers := authHeaders(token)
	headers["Content-Type"] = contentType
	resp := performRequest(t, env.app, http.MethodPost, "/api/uploads/", body, headers)
	assertStatus(t, resp, http.StatusAccepted)

	batchID := dataMap(t, decodeJSONMap(t, resp))["batchId"].(string)
	env.uploader.Wait(mustUUID(t, batchID))

	// The notifier applies writes off a queue; poll until it lands.
	var data map[string]any
	for i := 0; i < 50; i++ {
		resp = performRequest(t, env.app, http.MethodGet, "/api/notifications", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		data = dataMap(t, decodeJSONMap(t, resp))
		if data["notificationCount"] == float64(1) {
			break
		}
		sleepBriefly()
	}
	if data["notificationCount"] != float64(1) {
		t.Fatalf("expected 1 notification, got %v", data["notificationCount"])
	}
	if data["notification"] != "2 file(s) uploaded to Work" {
		t.Fatalf("unexpected notification text: %v", data["notification"])
	}

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/notifications/clear", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/notifications", nil, authHeaders(token))
	data = dataMap(t, decodeJSONMap(t, resp))
	if data["notificationCount"] != float64(0) {
		t.Fatalf("expected cleared notifications, got %v", data["notificationCount"])
	}
}
