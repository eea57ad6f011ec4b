package validate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haidl/tvstream/errs"
)

func testConfig(srv *httptest.Server) SymbolValidatorConfig {
	cfg := DefaultSymbolValidatorConfig()
	cfg.Attempts = 3
	cfg.BaseDelay = time.Millisecond
	cfg.AttemptTimeout = time.Second
	cfg.Client = srv.Client()
	cfg.URLTemplate = srv.URL + "/symbol?symbol=%s"
	return cfg
}

func TestSymbolValidatorRejectsEmpty(t *testing.T) {
	v := NewSymbolValidator(DefaultSymbolValidatorConfig(), zerolog.Nop())
	err := v.Validate(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.KindInvalidSymbol))
}

// TestSymbolValidatorPassesThroughAlternateForms locks in spec §9's
// resolution for non-canonical symbols ("USI-PCC"-style): they are passed to
// the lookup unchanged rather than rejected on format, and the HTTP response
// is the only gate.
func TestSymbolValidatorPassesThroughAlternateForms(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
	err := v.Validate(context.Background(), "USI-PCC")
	require.NoError(t, err)
	assert.Contains(t, gotPath, "USI-PCC")
}

func TestSymbolValidatorOKStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusMovedPermanently} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
		err := v.Validate(context.Background(), "NASDAQ:AAPL")
		srv.Close()
		assert.NoError(t, err, "status %d", status)
	}
}

func TestSymbolValidator404IsInvalidNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
	err := v.Validate(context.Background(), "NASDAQ:NOPE")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.KindInvalidSymbol))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSymbolValidatorRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
	err := v.Validate(context.Background(), "NASDAQ:AAPL")
	assert.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSymbolValidatorExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
	err := v.Validate(context.Background(), "NASDAQ:AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.Sentinel(errs.KindTransportError))
}

func TestSymbolValidatorAllRequiresEverySymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	v := NewSymbolValidator(testConfig(srv), zerolog.Nop())
	err := v.ValidateAll(context.Background(), []string{"NASDAQ:AAPL", ""})
	assert.Error(t, err)
}
