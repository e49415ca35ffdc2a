package audit

import (
	"github.com/b4ae/b4ae/pkg/logging"
)

// LogSink writes audit events through the structured logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink builds a sink over a logger; a nil logger gets a default
// "audit" component logger at INFO.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewLogger("audit", logging.INFO)
	}
	return &LogSink{logger: logger}
}

// Write emits the event as one structured log line.
func (s *LogSink) Write(event Event) error {
	s.logger.Info(string(event.Type), logging.Fields{
		"peer_id": event.PeerID,
		"reason":  event.Reason,
		"at":      event.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	return nil
}
