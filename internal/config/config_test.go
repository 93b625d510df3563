package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Service.DefaultArea != "shibuya" {
		t.Fatalf("default area = %q", cfg.Service.DefaultArea)
	}
	if _, ok := cfg.TimeTables["fullday"]; !ok {
		t.Fatal("fullday time table missing")
	}
}

func TestResolveArea(t *testing.T) {
	cfg := Default()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"shibuya", "shibuya", true},
		{"Shibuya", "shibuya", true},
		{"渋谷", "shibuya", true},
		{"東京都", "tokyo", true},
		{"mars", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		key, _, ok := cfg.ResolveArea(tc.in)
		if ok != tc.ok || key != tc.want {
			t.Errorf("ResolveArea(%q) = %q,%v want %q,%v", tc.in, key, ok, tc.want, tc.ok)
		}
	}
}

func TestStationFor(t *testing.T) {
	cfg := Default()
	if s := cfg.StationFor("shibuya", "渋谷"); s.Name != "渋谷駅" || s.Exit != "ハチ公口" {
		t.Fatalf("shibuya station = %+v", s)
	}
	if s := cfg.StationFor("", "恵比寿駅"); s.Name != "恵比寿駅" || s.Exit != "改札" {
		t.Fatalf("explicit station = %+v", s)
	}
	if s := cfg.StationFor("nowhere", "謎エリア"); s.Name != "謎エリア駅" {
		t.Fatalf("fallback station = %+v", s)
	}
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Areas) == 0 {
		t.Fatal("expected embedded default areas")
	}
}

func TestFromYAMLRejectsBrokenConfig(t *testing.T) {
	if _, err := FromYAML([]byte("service:\n  name: dateai\n")); err == nil {
		t.Fatal("expected validation error for config without areas")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	custom := GenerateDefault()
	if err := os.WriteFile(filepath.Join(dir, "dateai.yml"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Budgets["high"].Dinner != "5000-10000" {
		t.Fatalf("high dinner = %q", cfg.Budgets["high"].Dinner)
	}
}
