package validate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/haidl/tvstream/errs"
)

const symbolLookupURLTemplate = "https://scanner.tradingview.com/symbol?symbol=%s&fields=market&no_404=false"

// SymbolValidatorConfig tunes SymbolValidator's retry behavior (spec §6.3).
type SymbolValidatorConfig struct {
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	Client         *http.Client
	// URLTemplate receives one %s placeholder for the url-escaped
	// "EXCHANGE:SYMBOL" pair. Tests override this to point at a local
	// httptest server instead of the live scanner endpoint.
	URLTemplate string
}

// DefaultSymbolValidatorConfig returns the spec's defaults: 3 attempts, 1s
// base delay with factor-2 backoff, 10s per-attempt timeout.
func DefaultSymbolValidatorConfig() SymbolValidatorConfig {
	return SymbolValidatorConfig{
		Attempts:       3,
		BaseDelay:      time.Second,
		AttemptTimeout: 10 * time.Second,
		Client:         http.DefaultClient,
		URLTemplate:    symbolLookupURLTemplate,
	}
}

// SymbolValidator issues pre-flight HTTPS GETs confirming a symbol exists
// before the caller opens a WebSocket (spec §4.H). A failed validation must
// prevent the Transport from being opened.
type SymbolValidator struct {
	cfg SymbolValidatorConfig
	log zerolog.Logger
}

func NewSymbolValidator(cfg SymbolValidatorConfig, log zerolog.Logger) *SymbolValidator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultSymbolValidatorConfig().Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultSymbolValidatorConfig().BaseDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultSymbolValidatorConfig().AttemptTimeout
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = symbolLookupURLTemplate
	}
	return &SymbolValidator{cfg: cfg, log: log.With().Str("component", "validate").Logger()}
}

// Validate checks exchangeSymbol against the upstream lookup endpoint. 200
// and 301 are OK, 404 is InvalidSymbol, anything else is retried with
// exponential backoff up to cfg.Attempts times before surfacing as a
// transient TransportError.
//
// The canonical form is "EXCHANGE:SYMBOL", but alternate forms such as
// "USI-PCC" exist and what the upstream expects for them is unspecified
// (spec §9); rather than guess at a grammar, the string is passed through
// to the lookup unchanged and the HTTP response is the only gate. Only the
// empty string is rejected locally, since a SymbolRef is never empty.
func (v *SymbolValidator) Validate(ctx context.Context, exchangeSymbol string) error {
	if exchangeSymbol == "" {
		return errs.New(errs.KindInvalidSymbol, "symbol must not be empty")
	}
	lookupURL := fmt.Sprintf(v.cfg.URLTemplate, url.QueryEscape(exchangeSymbol))

	delay := v.cfg.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= v.cfg.Attempts; attempt++ {
		status, err := v.get(ctx, lookupURL)
		if err == nil {
			switch status {
			case http.StatusOK, http.StatusMovedPermanently:
				return nil
			case http.StatusNotFound:
				return errs.New(errs.KindInvalidSymbol, fmt.Sprintf("symbol %q not found", exchangeSymbol))
			default:
				lastErr = fmt.Errorf("unexpected status %d", status)
			}
		} else {
			lastErr = err
		}

		v.log.Warn().Err(lastErr).Str("symbol", exchangeSymbol).Int("attempt", attempt).Msg("symbol validation attempt failed")
		if attempt == v.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.KindTransportError, "symbol validation cancelled", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return errs.Wrap(errs.KindTransportError, fmt.Sprintf("symbol %q validation failed after %d attempts", exchangeSymbol, v.cfg.Attempts), lastErr)
}

// ValidateAll checks every symbol in symbols and returns nil only if all of
// them validate successfully.
func (v *SymbolValidator) ValidateAll(ctx context.Context, symbols []string) error {
	for _, s := range symbols {
		if err := v.Validate(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (v *SymbolValidator) get(ctx context.Context, lookupURL string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, v.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := v.cfg.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
