package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-notification-service/internal/port/inbound"
)

func TestPublishDeviceEvent(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{"message":"Event published"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	err := c.PublishDeviceEvent(context.Background(), inbound.PublishDeviceEventCommand{
		Type:     "status_change",
		DeviceID: "sensor-1",
		Data:     json.RawMessage(`{"status":"online"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "/events/device", gotPath)
	assert.Equal(t, map[string]any{
		"type":     "status_change",
		"deviceId": "sensor-1",
		"data":     map[string]any{"status": "online"},
	}, gotBody)
}

func TestPublishNotification_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/send", r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"success":false,"error":{"code":"SERVICE_UNAVAILABLE","message":"Message bus is not ready"}}`)
	}))
	defer srv.Close()

	err := New(srv.URL).PublishNotification(context.Background(), inbound.PublishNotificationCommand{Type: "a", Message: "b"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "SERVICE_UNAVAILABLE", apiErr.Code)
	assert.True(t, IsUnavailable(err))
	assert.Contains(t, err.Error(), "Message bus is not ready")
}

func TestPost_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).PublishNotification(context.Background(), inbound.PublishNotificationCommand{Type: "a", Message: "b"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.False(t, IsUnavailable(err))
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy","connectionCount":2}`)
	}))
	defer srv.Close()

	doc, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", doc["status"])
	assert.Equal(t, float64(2), doc["connectionCount"])
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).PublishDeviceEvent(context.Background(), inbound.PublishDeviceEventCommand{Type: "a", DeviceID: "b"})
	assert.Error(t, err)
}
