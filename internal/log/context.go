package log

import "context"

// LogMutation records an audited write at info level.
func (l *Logger) LogMutation(ctx context.Context, op, entityType, entityID string) {
	fields := NewFields().
		WithOperation(op).
		WithEntity(entityType, entityID)
	l.InfoContext(ctx, "Mutation recorded", fields.ToSlice()...)
}

// LogSoftFailure logs an error that was converted into a warning.
func (l *Logger) LogSoftFailure(ctx context.Context, msg string, err error, op string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	fields.WithError(err).WithOperation(op)
	l.WarnContext(ctx, msg, fields.ToSlice()...)
}
