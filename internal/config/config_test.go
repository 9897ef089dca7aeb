package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	tests := []struct {
		name   string
		limit  int
		period time.Duration
	}{
		{CommandExploit, 5, 24 * time.Hour},
		{CommandQuiz, 3, 24 * time.Hour},
		{CommandSpam, 2, 24 * time.Hour},
		{CommandCryptoHack, 5, 24 * time.Hour},
		{CommandBoost, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, ok := c.Command(tt.name)
			if !ok {
				t.Fatalf("command %q missing", tt.name)
			}
			if cmd.Limit != tt.limit || cmd.Period != tt.period {
				t.Fatalf("got limit=%d period=%v, want %d/%v", cmd.Limit, cmd.Period, tt.limit, tt.period)
			}
		})
	}
}

func TestCommandCost(t *testing.T) {
	c, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}

	exploit, _ := c.Command(CommandExploit)
	if got := exploit.Cost(1); got != 50 {
		t.Errorf("exploit cost = %d, want 50", got)
	}
	spam, _ := c.Command(CommandSpam)
	if got := spam.Cost(7); got != 35 {
		t.Errorf("spam cost for 7 = %d, want 35", got)
	}
	boost, _ := c.Command(CommandBoost)
	if got := boost.Cost(1000); got != 100 {
		t.Errorf("boost cost for 1000 = %d, want 100", got)
	}
	if got := boost.Cost(15); got != 1 {
		t.Errorf("boost cost for 15 = %d, want 1", got)
	}
}

func TestParseCatalogRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing command",
			yaml:    "commands:\n  exploit:\n    limit: 1\n    period: 1h\n",
			wantErr: "нет команды",
		},
		{
			name: "limited without period",
			yaml: `commands:
  exploit: {limit: 5}
  quiz: {limit: 3, period: 24h}
  spam: {limit: 2, period: 24h}
  cryptohack: {limit: 5, period: 24h}
  boost: {price_divisor: 10}
`,
			wantErr: "period",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseInt64CSV(t *testing.T) {
	got, err := parseInt64CSV(" 1, 2 ,,3 ")
	if err != nil {
		t.Fatalf("parseInt64CSV: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("got %v", got)
	}
	if _, err := parseInt64CSV("1,x"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			BotMaxInflight:          1,
			BotUpdateTimeoutSeconds: 1,
			DBMaxConns:              2,
			DBMinConns:              1,
			StorageTimeout:          time.Second,
			RetryAttempts:           3,
			RetryBaseDelay:          time.Millisecond,
			QuotaBackend:            QuotaBackendPostgres,
			AntifloodRPS:            1,
			AntifloodBurst:          1,
			LogFormat:               "text",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := valid()
	cfg.QuotaBackend = QuotaBackendRedis
	if err := cfg.Validate(); err == nil {
		t.Fatal("redis backend without REDIS_URL accepted")
	}
	cfg.RedisURL = "redis://localhost:6379/0"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("redis backend rejected: %v", err)
	}

	cfg = valid()
	cfg.StorageTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero STORAGE_TIMEOUT accepted")
	}
}
