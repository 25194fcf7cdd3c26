package logger

import (
	"context"
	"time"
)

// Entry carries aggregatable fields (durations, counts, correction totals)
// and resolves its logger from the context at write time, so the request
// and job tags set upstream are kept.
//
//	logger.With(logger.Fields{logger.FieldCorrections: 2}).Info(ctx, "Job reconciled")
type Entry struct {
	fields Fields
}

// With starts an Entry.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With returns a copy of e extended by fields.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

// Since records the elapsed time from start as duration_ms.
func (e *Entry) Since(start time.Time) *Entry {
	return e.With(Fields{FieldDurationMs: time.Since(start).Milliseconds()})
}

// Corrections records how many mirror corrections a reconcile applied.
func (e *Entry) Corrections(n int) *Entry {
	return e.With(Fields{FieldCorrections: n})
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Debugf(format, args...)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Infof(format, args...)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Warnf(format, args...)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).WithFields(e.fields).Errorf(format, args...)
}
