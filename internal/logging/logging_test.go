package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		debug     bool
		wantDebug bool
	}{
		{debug: false, wantDebug: false},
		{debug: true, wantDebug: true},
	}
	for _, tc := range cases {
		logger, err := New(tc.debug)
		if err != nil {
			t.Fatalf("new(debug=%v): %v", tc.debug, err)
		}
		if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.wantDebug {
			t.Fatalf("debug=%v: debug level enabled = %v", tc.debug, got)
		}
		if !logger.Core().Enabled(zapcore.InfoLevel) {
			t.Fatalf("debug=%v: info level must be enabled", tc.debug)
		}
	}
}
