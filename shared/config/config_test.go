package config

import "testing"

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestParseAnyCSV(t *testing.T) {
	raw := []any{"x", " ", "y"}
	got := parseAnyCSV(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0] != "x" || got[1] != "y" {
		t.Fatalf("unexpected values: %#v", got)
	}
}

func TestLoadSimulationKeys(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SIM_TICK_MS", "250")
	t.Setenv("SIM_SUBSCRIBER_QUEUE_SIZE", "4")
	t.Setenv("GEN_HUB_COUNT", "6")
	t.Setenv("GEN_SEED", "42")

	cfg, _ := Load("engine", 8080)
	if cfg.SimTickMS != 250 {
		t.Fatalf("expected tick 250, got %d", cfg.SimTickMS)
	}
	if cfg.SimQueueSize != 4 {
		t.Fatalf("expected queue size 4, got %d", cfg.SimQueueSize)
	}
	if cfg.GenHubCount != 6 {
		t.Fatalf("expected hub count 6, got %d", cfg.GenHubCount)
	}
	if cfg.GenSeed != 42 {
		t.Fatalf("expected seed 42, got %d", cfg.GenSeed)
	}
}

func TestLoadTrafficFactorBounds(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("SIM_TRAFFIC_FACTOR_MIN", "0.9")
	t.Setenv("SIM_TRAFFIC_FACTOR_MAX", "0.5")

	cfg, problems := Load("engine", 8080)
	found := false
	for _, p := range problems {
		if p.Field == "SIM_TRAFFIC_FACTOR_MAX" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected problem for inverted traffic factor bounds, got %#v", problems)
	}
	if cfg.TrafficFactorMax != cfg.TrafficFactorMin {
		t.Fatalf("expected max clamped to min, got min=%v max=%v", cfg.TrafficFactorMin, cfg.TrafficFactorMax)
	}
}
