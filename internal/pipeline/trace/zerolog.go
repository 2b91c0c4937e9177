package trace

import "github.com/rs/zerolog"

// ZerologSink forwards events to a zerolog logger. Terminal failures log at
// error level, recoverable noise (retries, escalations, skips, warnings) at
// warn, everything else at debug so a normal run stays quiet.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log}
}

func (s *ZerologSink) Emit(ev Event) {
	var e *zerolog.Event
	switch ev.Kind {
	case KindTerminalFailure:
		e = s.log.Error()
	case KindRetry, KindEscalated, KindComponentSkipped, KindComponentOmitted, KindOrderUnknownID, KindWarning:
		e = s.log.Warn()
	default:
		e = s.log.Debug()
	}
	if ev.RunID != "" {
		e = e.Str("run_id", ev.RunID)
	}
	if ev.Protocol != "" {
		e = e.Str("protocol", ev.Protocol)
	}
	if ev.Component != "" {
		e = e.Str("component", ev.Component)
	}
	if ev.Scope != "" {
		e = e.Str("scope", ev.Scope)
	}
	if ev.Attempt > 0 {
		e = e.Int("attempt", ev.Attempt)
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	// zerolog owns the "message" key; the event text goes under "detail".
	if ev.Message != "" {
		e = e.Str("detail", ev.Message)
	}
	e.Msg(string(ev.Kind))
}
