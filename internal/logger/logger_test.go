package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return New(&Config{Level: level, Format: "json", Output: &buf, ServiceName: "test"}), &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestContextFieldsReachEntry(t *testing.T) {
	log, buf := newBufferLogger(t, "debug")
	ctx := log.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = SetActor(ctx, "0xabc")

	With(Fields{FieldCount: 3}).Corrections(2).Since(time.Now()).Info(ctx, "Reconciled %s", "job-1")

	line := lastLine(t, buf)
	assert.Equal(t, "Reconciled job-1", line["message"])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, "0xabc", line[FieldActor])
	assert.Equal(t, "test", line["service"])
	assert.EqualValues(t, 3, line[FieldCount])
	assert.EqualValues(t, 2, line[FieldCorrections])
	assert.Contains(t, line, FieldDurationMs)
}

func TestEntryWithDoesNotMutate(t *testing.T) {
	base := With(Fields{FieldStatus: 200})
	_ = base.With(Fields{FieldSize: 10})
	assert.NotContains(t, base.fields, FieldSize)
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger(t, "warn")
	ctx := log.WithContext(context.Background())
	CtxInfo(ctx, "dropped")
	assert.Zero(t, buf.Len())
	CtxWarn(ctx, "kept")
	assert.Equal(t, "kept", lastLine(t, buf)["message"])
}

func TestRedactsCredentials(t *testing.T) {
	log, buf := newBufferLogger(t, "info")
	log.WithFields(Fields{"admin_token": "s3cret", "Authorization": "Bearer x", FieldJobID: "j"}).Info("call")

	line := lastLine(t, buf)
	assert.Equal(t, redacted, line["admin_token"])
	assert.Equal(t, redacted, line["Authorization"])
	assert.Equal(t, "j", line[FieldJobID])
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	ctx := WithField(context.Background(), FieldRequestID, "req-9")
	assert.Equal(t, "req-9", RequestID(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Same(t, GetDefault(), FromContext(nil)) //nolint:staticcheck
}
