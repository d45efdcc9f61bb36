package config

import (
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Agent.QueryURL != "http://127.0.0.1:5000/agentsql" {
		t.Fatalf("unexpected query url: %s", cfg.Agent.QueryURL)
	}
	if cfg.Agent.ReplyContract != ReplyContractJSON {
		t.Fatalf("unexpected contract: %s", cfg.Agent.ReplyContract)
	}
	if cfg.Agent.Timeout != 120*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Agent.Timeout)
	}
	if cfg.Server.SessionGrace != 30*time.Second {
		t.Fatalf("unexpected session grace: %s", cfg.Server.SessionGrace)
	}
	if cfg.Auth.AnyProvider() {
		t.Fatal("no provider should be enabled by default")
	}
}

func TestLoadFromProviders(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"GOOGLE_CLIENT_ID":       "gid",
		"GOOGLE_CLIENT_SECRET":   "gsecret",
		"AZURE_AD_CLIENT_ID":     "aid",
		"AZURE_AD_CLIENT_SECRET": "asecret",
		"AZURE_AD_TENANT_ID":     "tenant",
		"PORT":                   "127.0.0.1:9000",
		"AGENT_REPLY_CONTRACT":   "TEXT",
	})
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}

	if !cfg.Auth.Google.Enabled() || cfg.Auth.Google.ClientID != "gid" {
		t.Fatalf("google provider not parsed: %+v", cfg.Auth.Google)
	}
	if cfg.Auth.AzureAD.TenantID != "tenant" {
		t.Fatalf("azure tenant not parsed: %+v", cfg.Auth.AzureAD)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.Agent.ReplyContract != ReplyContractText {
		t.Fatalf("contract should be normalized, got %s", cfg.Agent.ReplyContract)
	}
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"port":     {"PORT": "80 80"},
		"contract": {"AGENT_REPLY_CONTRACT": "xml"},
		"url":      {"AGENT_QUERY_URL": "not a url"},
		"tenant":   {"AZURE_AD_CLIENT_ID": "a", "AZURE_AD_CLIENT_SECRET": "b"},
		"timeout":  {"AGENT_TIMEOUT": "soon"},
		"grace":    {"CHAT_SESSION_GRACE": "-1s"},
	}

	for name, vars := range cases {
		if _, err := LoadFrom(vars); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
