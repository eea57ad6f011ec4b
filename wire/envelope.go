package wire

import (
	json "github.com/goccy/go-json"
)

// Verb names the protocol methods the client sends, in the exact spelling
// the upstream service expects.
type Verb string

const (
	VerbSetAuthToken        Verb = "set_auth_token"
	VerbSetLocale           Verb = "set_locale"
	VerbChartCreateSession  Verb = "chart_create_session"
	VerbQuoteCreateSession  Verb = "quote_create_session"
	VerbQuoteSetFields      Verb = "quote_set_fields"
	VerbQuoteAddSymbols     Verb = "quote_add_symbols"
	VerbQuoteFastSymbols    Verb = "quote_fast_symbols"
	VerbQuoteHibernateAll   Verb = "quote_hibernate_all"
	VerbResolveSymbol       Verb = "resolve_symbol"
	VerbCreateSeries        Verb = "create_series"
	VerbCreateStudy         Verb = "create_study"
)

// UnauthorizedToken is the placeholder auth token the client sends; this
// library never performs authenticated access (spec §1 non-goal).
const UnauthorizedToken = "unauthorized_user_token"

// HistorySeriesKey and SymbolKey are the client-chosen identifiers embedded
// in the chart-session protocol. They never change for the lifetime of a
// Subscription.
const (
	HistorySeriesKey = "sds_1"
	SymbolKey        = "sds_sym_1"
	StudyKey         = "st1"
)

// VolumeStudyID is the server-side study implementation the client attaches
// to every chart subscription. Pinned per spec §9 (open question): upstream
// may change this string without notice, so it is kept as a variable rather
// than baked into call sites.
var VolumeStudyID = "Volume@tv-basicstudies-241"

// QuoteFields is the fixed, order-significant set of fields requested via
// quote_set_fields. Keep literal — spec §9 notes there is no documented
// contract guaranteeing additions/removals are safe.
var QuoteFields = []string{
	"base-currency-logoid", "ch", "chp", "currency-logoid", "currency_code",
	"current_session", "description", "exchange", "format", "fractional",
	"is_tradable", "language", "local_description", "logoid", "lp", "lp_time",
	"minmov", "minmove2", "original_name", "pricescale", "pro_name",
	"short_name", "type", "update_mode", "volume", "ask", "bid", "fundamentals",
}

// Envelope is the JSON object form of one outbound/inbound message:
// {"m": <verb>, "p": [...]}. Field order in the marshaled output is m then p.
type Envelope struct {
	Method Verb          `json:"m"`
	Params []interface{} `json:"p"`
}

// Build constructs the compact JSON bytes for an envelope calling verb with
// params, in the order the server expects (spec §4.C). The encoding has no
// insignificant whitespace.
func Build(verb Verb, params []interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Method: verb, Params: params})
}

// SymbolSpec is the JSON object embedded (as a string) inside resolve_symbol
// and quote_add_symbols params.
type SymbolSpec struct {
	Adjustment string `json:"adjustment"`
	Symbol     string `json:"symbol"`
	CurrencyID string `json:"currency-id,omitempty"`
	Session    string `json:"session,omitempty"`
}

// SymbolJSON renders spec as the JSON string the protocol embeds verbatim
// inside other params (spec §4.C: symbol_json).
func SymbolJSON(spec SymbolSpec) (string, error) {
	b, err := json.Marshal(spec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ResolveParam wraps a symbol_json string with the "=" prefix resolve_symbol
// and quote_add_symbols expect.
func ResolveParam(symbolJSON string) string {
	return "=" + symbolJSON
}
