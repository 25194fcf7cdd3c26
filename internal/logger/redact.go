package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

const redacted = "[redacted]"

// sensitiveKeys never reach the log output in clear text.
var sensitiveKeys = []string{"token", "authorization", "secret", "private_key", "password"}

// redactHook masks credential-bearing fields before formatting.
type redactHook struct{}

func (redactHook) Levels() []logrus.Level { return logrus.AllLevels }

func (redactHook) Fire(e *logrus.Entry) error {
	for key, val := range e.Data {
		if s, ok := val.(string); ok && s != "" && isSensitive(key) {
			e.Data[key] = redacted
		}
	}
	return nil
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
