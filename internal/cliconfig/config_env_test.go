package cliconfig

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"CRASHPROBE_BACKEND":                 "mmap-pages",
				"CRASHPROBE_DATA_DIR":                "/env/data",
				"CRASHPROBE_REPORT":                  "/env/report.json",
				"CRASHPROBE_TIMES_TO_KILL":           "50",
				"CRASHPROBE_SEED":                    "-12",
				"CRASHPROBE_MAX_KILL_DELAY":          "40ms",
				"CRASHPROBE_MAX_WARMUP_REQUESTS":     "5",
				"CRASHPROBE_MAX_WRITE_SIZE":          "8192",
				"CRASHPROBE_MAX_STRESS_REQUESTS":     "100",
				"CRASHPROBE_ACCEPT_PAGE_TEARS":       "true",
				"CRASHPROBE_MAX_CAPACITY":            "65536",
				"CRASHPROBE_PAGE_SIZE":               "8192",
				"CRASHPROBE_ENFORCE_PER_PAGE_WRITES": "1",
				"CRASHPROBE_MMAP_WRITE_MODE":         "bytewise",
				"CRASHPROBE_DEBUG":                   "true",
			},
			changed: map[string]bool{},
			expected: Config{
				Backend:              "mmap-pages",
				DataDir:              "/env/data",
				ReportPath:           "/env/report.json",
				TimesToKill:          50,
				Seed:                 -12,
				MaxKillDelay:         40 * time.Millisecond,
				MaxWarmupRequests:    5,
				MaxWriteSize:         8192,
				MaxStressRequests:    100,
				AcceptPageTears:      true,
				MaxCapacity:          65536,
				PageSize:             8192,
				EnforcePerPageWrites: true,
				MmapWriteMode:        "bytewise",
				Debug:                true,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"CRASHPROBE_BACKEND":       "channel",
				"CRASHPROBE_TIMES_TO_KILL": "3",
			},
			changed:  map[string]bool{"backend": true},
			initial:  Config{Backend: "durable"},
			expected: Config{Backend: "durable", TimesToKill: 3},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"CRASHPROBE_MAX_KILL_DELAY": "soon"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"CRASHPROBE_PAGE_SIZE": "big"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid seed",
			envVars: map[string]string{"CRASHPROBE_SEED": "0x10"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"CRASHPROBE_ACCEPT_PAGE_TEARS": "false"},
			changed:  map[string]bool{},
			initial:  Config{AcceptPageTears: true},
			expected: Config{AcceptPageTears: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr && err == nil {
				t.Error("ApplyEnvConfig() expected error but got nil")
				return
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ApplyEnvConfig() unexpected error: %v", err)
				return
			}
			if !tt.wantErr && cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestApplyEnvConfig_Precedence(t *testing.T) {
	// defaults < env < flags
	t.Setenv("CRASHPROBE_TIMES_TO_KILL", "77")
	t.Setenv("CRASHPROBE_PAGE_SIZE", "16384")

	cfg := DefaultConfig()
	cfg.PageSize = 8192 // as if set by --page-size
	changed := map[string]bool{"page-size": true}

	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}
	if cfg.TimesToKill != 77 {
		t.Errorf("TimesToKill = %v, want 77", cfg.TimesToKill)
	}
	if cfg.PageSize != 8192 {
		t.Errorf("PageSize = %v, want 8192 (flag wins)", cfg.PageSize)
	}
	if cfg.MaxCapacity != DefaultConfig().MaxCapacity {
		t.Errorf("MaxCapacity = %v, want default", cfg.MaxCapacity)
	}
}
