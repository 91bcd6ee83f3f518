package audit

import (
	"context"

	"github.com/fanstage/live-service/pkg/log"
)

// Audit actions for live-service.
const (
	ActionCreateSession = "session.create"
	ActionStartSession  = "session.start"
	ActionStopSession   = "session.stop"
	ActionCancelSession = "session.cancel"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, sessionID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(log.FieldSessionID, sessionID).
		Msg(msg)
}
