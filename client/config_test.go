package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidateRejectsEmptyEndpoint(t *testing.T) {
	cfg := DefaultConfig("")
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateAcceptsWebsocketEndpoint(t *testing.T) {
	cfg := DefaultConfig("wss://data.tradingview.com/socket.io/websocket")
	assert.NoError(t, cfg.Validate())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
