package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadRatioDefaults(t *testing.T) {
	t.Setenv("ESTIMATED_COST_RATIO", "")
	t.Setenv("OPERATIONAL_COST_RATIO", "")

	cfg := Load()
	if cfg.EstimatedCostRatio != 0.75 {
		t.Fatalf("expected default cost ratio 0.75, got %v", cfg.EstimatedCostRatio)
	}
	if cfg.OperationalCostRatio != 0.05 {
		t.Fatalf("expected default opex ratio 0.05, got %v", cfg.OperationalCostRatio)
	}
}

func TestLoadRejectsOutOfRangeRatios(t *testing.T) {
	t.Setenv("ESTIMATED_COST_RATIO", "1.5")
	t.Setenv("OPERATIONAL_COST_RATIO", "-0.2")

	cfg := Load()
	if cfg.EstimatedCostRatio != 0.75 {
		t.Fatalf("expected out-of-range cost ratio replaced with 0.75, got %v", cfg.EstimatedCostRatio)
	}
	if cfg.OperationalCostRatio != 0.05 {
		t.Fatalf("expected out-of-range opex ratio replaced with 0.05, got %v", cfg.OperationalCostRatio)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TIMEZONE", "Asia/Makassar")
	t.Setenv("REPORT_TTL_SECONDS", "120")
	t.Setenv("MONTHLY_SALES_TARGET", "25000000")

	cfg := Load()
	if cfg.Port != "9090" || cfg.Address() != ":9090" {
		t.Fatalf("unexpected port config: %+v", cfg)
	}
	if cfg.Timezone != "Asia/Makassar" {
		t.Fatalf("expected timezone override, got %q", cfg.Timezone)
	}
	if cfg.ReportTTLSeconds != 120 {
		t.Fatalf("expected report TTL 120, got %d", cfg.ReportTTLSeconds)
	}
	if cfg.MonthlyTarget != 25000000 {
		t.Fatalf("expected monthly target 25000000, got %v", cfg.MonthlyTarget)
	}
}

func TestLoadBadNumericsFallBack(t *testing.T) {
	t.Setenv("REPORT_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg := Load()
	if cfg.ReportTTLSeconds != 30 {
		t.Fatalf("expected TTL fallback 30, got %d", cfg.ReportTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}
