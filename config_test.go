package taskpool

import "testing"

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid minimal", Config{ThreadCount: 1, MaxContexts: 1}, false},
		{"zero threads", Config{ThreadCount: 0, MaxContexts: 1}, true},
		{"negative threads", Config{ThreadCount: -1, MaxContexts: 1}, true},
		{"zero max contexts", Config{ThreadCount: 1, MaxContexts: 0}, true},
		{"fully populated", Config{
			ThreadCount:        8,
			MaxContexts:        16,
			GlobalQueueSize:    100,
			LocalQueueSize:     10,
			EnableWorkStealing: true,
			IdleThreshold:      2,
			DynamicSizing:      true,
			MemoryLimitMB:      64,
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err != ErrInvalidConfig {
				t.Errorf("validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
