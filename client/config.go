// Package client composes the frame codec, session driver, transport, and
// demultiplexer into the facade operations users actually call:
// StreamCandles, FetchHistoricalCandles, StreamQuotes, StreamLatestTradeInfo,
// StreamRaw (spec §4.G).
package client

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/haidl/tvstream/transport"
	"github.com/haidl/tvstream/validate"
)

const defaultHistoricalTimeout = 30 * time.Second

var configValidate = validator.New()

// Config collects every tunable on the configuration surface in spec §6.3,
// plus the pieces the spec leaves to collaborators (locale, logger).
type Config struct {
	Endpoint          string                          `validate:"required,url"`
	Locale            string
	Transport         transport.Config                `validate:"-"`
	Validator         validate.SymbolValidatorConfig   `validate:"-"`
	HistoricalTimeout time.Duration
	Logger            zerolog.Logger                   `validate:"-"`
}

// Validate checks that Endpoint is a non-empty URL. Called by New before a
// Config is put to use.
func (c Config) Validate() error {
	return configValidate.Struct(c)
}

// DefaultConfig returns a Config pointed at endpoint with every tunable at
// its spec §6.3 default.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		Locale:            "en",
		Transport:         transport.DefaultConfig(endpoint),
		Validator:         validate.DefaultSymbolValidatorConfig(),
		HistoricalTimeout: defaultHistoricalTimeout,
		Logger:            zerolog.Nop(),
	}
}

func (c Config) withDefaults() Config {
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.HistoricalTimeout <= 0 {
		c.HistoricalTimeout = defaultHistoricalTimeout
	}
	if c.Transport.URL == "" {
		c.Transport.URL = c.Endpoint
	}
	return c
}
