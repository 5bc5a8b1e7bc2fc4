package logging

import (
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		debug     bool
		wantDebug bool
		wantWarn  bool
	}{
		{debug: true, wantDebug: true, wantWarn: true},
		{debug: false, wantDebug: false, wantWarn: true},
	}
	for _, tc := range tests {
		log, err := New(tc.debug)
		if err != nil {
			t.Fatalf("New(%v): %v", tc.debug, err)
		}
		core := log.Desugar().Core()
		if got := core.Enabled(zap.DebugLevel); got != tc.wantDebug {
			t.Errorf("New(%v) debug enabled = %v, want %v", tc.debug, got, tc.wantDebug)
		}
		if got := core.Enabled(zap.WarnLevel); got != tc.wantWarn {
			t.Errorf("New(%v) warn enabled = %v, want %v", tc.debug, got, tc.wantWarn)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	log.Infow("ignored", "k", "v")
	if log.Desugar().Core().Enabled(zap.ErrorLevel) {
		t.Fatal("nop logger should not enable any level")
	}
}
