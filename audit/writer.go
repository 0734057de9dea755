package audit

import "github.com/rs/zerolog/log"

// Writer formats and emits Events through zerolog. Emission never
// returns an error: per the error handling design, observability must
// never fail a request, so any formatting problem is swallowed with a
// single diagnostic rather than propagated.
type Writer struct{}

// NewWriter constructs a Writer. zerolog's own global logger controls
// console-vs-JSON formatting, configured once at process start based on
// the environment setting.
func NewWriter() *Writer {
	return &Writer{}
}

// Emit writes one audit event at the severity appropriate to its kind.
func (w *Writer) Emit(ev Event) {
	entry := log.With().
		Time("timestamp", ev.Timestamp).
		Str("event_type", string(ev.Kind)).
		Str("client_id", ev.ClientID).
		Str("action", string(ev.Action)).
		Int64("remaining_tokens", ev.RemainingTokens).
		Logger()

	if ev.RequestID != "" {
		entry = entry.With().Str("req_id", ev.RequestID).Logger()
	}

	switch ev.Kind {
	case KindBlocked, KindBannedBlocked:
		entry.Warn().Msg(ev.Detail)
	case KindFailOpen:
		entry.Warn().Msg("fail-open: store unreachable, request admitted")
	case KindError, KindStoreError:
		entry.Error().Msg(ev.Detail)
	case KindMaliciousDetected:
		entry.Warn().Msg("principal banned after sustained violations")
	default:
		entry.Info().Msg(ev.Detail)
	}
}
