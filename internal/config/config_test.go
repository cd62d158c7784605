package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewUsesDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cfg.Project.DefaultEnvironment != "dev" {
		t.Errorf("default environment = %q", cfg.Project.DefaultEnvironment)
	}
	if cfg.Project.Cache.Backend != "memory" || cfg.Project.Cache.Capacity != 128 {
		t.Errorf("cache defaults = %+v", cfg.Project.Cache)
	}
	if cfg.Project.Pipeline.ComplianceMaxIterations != 2 {
		t.Errorf("compliance iterations = %d", cfg.Project.Pipeline.ComplianceMaxIterations)
	}
	if cfg.Project.Capability.Timeout().Seconds() != 45 {
		t.Errorf("timeout = %v", cfg.Project.Capability.Timeout())
	}
}

func TestInitWorkspaceCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	if err := InitWorkspace(dir); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, sub := range []string{"policies", "cache", "logs", "out"} {
		if _, err := os.Stat(filepath.Join(dir, WorkspaceDir, sub)); err != nil {
			t.Errorf("missing %s: %v", sub, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, WorkspaceDir, configFile)); err != nil {
		t.Errorf("missing config.yaml: %v", err)
	}

	// A second init must not clobber an edited config.
	path := filepath.Join(dir, WorkspaceDir, configFile)
	if err := os.WriteFile(path, []byte("version: 1\ndefault_environment: prod\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := InitWorkspace(dir); err != nil {
		t.Fatalf("re-init: %v", err)
	}
	cfg, err := New(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if cfg.Project.DefaultEnvironment != "prod" {
		t.Errorf("environment = %q, want edited value kept", cfg.Project.DefaultEnvironment)
	}
	// Unset fields fall back to defaults.
	if cfg.Project.Cache.Capacity != 128 {
		t.Errorf("capacity = %d, want default", cfg.Project.Cache.Capacity)
	}
}

func TestNewRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown environment", "default_environment: production\n"},
		{"unknown backend", "cache:\n  backend: redis\n"},
		{"negative capacity", "cache:\n  capacity: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			workspace := filepath.Join(dir, WorkspaceDir)
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(filepath.Join(workspace, configFile), []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := New(dir); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidEnvironment(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod", " Prod "} {
		if !ValidEnvironment(env) {
			t.Errorf("%q rejected", env)
		}
	}
	for _, env := range []string{"", "production", "test"} {
		if ValidEnvironment(env) {
			t.Errorf("%q accepted", env)
		}
	}
}
