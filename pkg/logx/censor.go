// Package logx wraps github.com/seekerror/logw with a redaction sink that
// keeps the job server API key out of logs, matching the original client's
// log filter behavior.
package logx

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/seekerror/logw"
)

var (
	mu  sync.RWMutex
	key string
)

// SetAPIKey installs the key to redact from every subsequent log message.
// Call once at startup, before the supervisor and workers begin logging.
func SetAPIKey(k string) {
	mu.Lock()
	defer mu.Unlock()
	key = k
}

func censor(msg string) string {
	mu.RLock()
	k := key
	mu.RUnlock()

	if k == "" {
		return msg
	}
	return strings.ReplaceAll(msg, k, strings.Repeat("*", len(k)))
}

func Infof(ctx context.Context, format string, args ...interface{}) {
	logw.Infof(ctx, "%v", censor(fmt.Sprintf(format, args...)))
}

func Debugf(ctx context.Context, format string, args ...interface{}) {
	logw.Debugf(ctx, "%v", censor(fmt.Sprintf(format, args...)))
}

func Warningf(ctx context.Context, format string, args ...interface{}) {
	logw.Warningf(ctx, "%v", censor(fmt.Sprintf(format, args...)))
}

func Errorf(ctx context.Context, format string, args ...interface{}) {
	logw.Errorf(ctx, "%v", censor(fmt.Sprintf(format, args...)))
}

func Exitf(ctx context.Context, format string, args ...interface{}) {
	logw.Exitf(ctx, "%v", censor(fmt.Sprintf(format, args...)))
}
