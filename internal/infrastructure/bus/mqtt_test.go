package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-notification-service/internal/infrastructure/config"
	"iot-notification-service/internal/infrastructure/logger"
)

func TestBuildClientOptions(t *testing.T) {
	cfg := config.MQTTConfig{
		Broker:         "tcp://broker.local:1883",
		ClientID:       "notification-service",
		Username:       "svc",
		Password:       "secret",
		ConnectTimeout: 3 * time.Second,
	}

	opts := buildClientOptions(cfg, "sub")

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker.local:1883", opts.Servers[0].Host)
	assert.Equal(t, "notification-service-sub", opts.ClientID)
	assert.Equal(t, "svc", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.True(t, opts.CleanSession)
	assert.True(t, opts.AutoReconnect)
	assert.False(t, opts.ConnectRetry)
	assert.Equal(t, 3*time.Second, opts.ConnectTimeout)

	assert.Equal(t, "notification-service-pub", buildClientOptions(cfg, "pub").ClientID)
}

func TestBuildClientOptions_NoCredentials(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{Broker: "tcp://localhost:1883", ClientID: "x"}, "pub")
	assert.Empty(t, opts.Username)
	assert.Empty(t, opts.Password)
}

func TestNewMQTT_Validation(t *testing.T) {
	_, err := NewMQTT(config.MQTTConfig{}, logger.NewNop())
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = NewMQTT(config.MQTTConfig{Broker: "tcp://localhost:1883", QoS: 3}, logger.NewNop())
	assert.ErrorIs(t, err, ErrConnectionFailed)

	m, err := NewMQTT(config.MQTTConfig{Broker: "tcp://localhost:1883"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, defaultMQTTConnectTimeout, m.cfg.ConnectTimeout)
}

func TestMQTT_ConnectionFailure(t *testing.T) {
	m, err := NewMQTT(config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "test",
		ConnectTimeout: 2 * time.Second,
	}, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = m.NewPublisher(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)

	_, err = m.NewSubscriber(ctx)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
