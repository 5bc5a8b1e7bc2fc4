package progress

import "go.uber.org/zap"

// LogSink writes events to a structured logger. Per-file events log at
// debug level so only --debug runs show them.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Emit(e Event) {
	if s == nil || s.log == nil {
		return
	}
	fields := []any{"event", string(e.Type)}
	if e.RunID != "" {
		fields = append(fields, "run_id", e.RunID)
	}
	if e.Path != "" {
		fields = append(fields, "path", e.Path)
	}
	if e.Status != "" {
		fields = append(fields, "status", e.Status)
	}
	if e.FindingCount > 0 {
		fields = append(fields, "findings", e.FindingCount)
	}
	if e.FileCount > 0 {
		fields = append(fields, "files", e.FileCount)
	}
	if e.DurationMS > 0 {
		fields = append(fields, "duration_ms", e.DurationMS)
	}
	if e.Error != "" {
		fields = append(fields, "error", e.Error)
	}

	switch e.Type {
	case EventRunWarning:
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		s.log.Warnw(msg, fields...)
	case EventFileStarted, EventFileFinished:
		s.log.Debugw("file", fields...)
	default:
		s.log.Infow("run", fields...)
	}
}
