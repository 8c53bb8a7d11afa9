package schema

import "testing"

func TestNormalizeClientID(t *testing.T) {
	cases := []struct {
		name   string
		client ClientID
		want   ClientID
		valid  bool
	}{
		{"simple", "agent-1", "agent-1", true},
		{"trimmed", "  agent-1 ", "agent-1", true},
		{"uuid", "8b7c1f2e-93c1-4b59-9f39-1b4b0c7e2d11", "8b7c1f2e-93c1-4b59-9f39-1b4b0c7e2d11", true},
		{"empty", "", "", false},
		{"blank", "   ", "", false},
		{"inner-space", "agent 1", "", false},
		{"tab", "agent\t1", "", false},
	}

	for _, tc := range cases {
		got, err := NormalizeClientID(tc.client)
		if tc.valid && err != nil {
			t.Fatalf("case %q expected valid, got error: %v", tc.name, err)
		}
		if !tc.valid && err == nil {
			t.Fatalf("case %q expected error, got nil", tc.name)
		}
		if got != tc.want {
			t.Fatalf("case %q expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeChannelIDDefaultsToTerminal(t *testing.T) {
	if got := NormalizeChannelID(""); got != ChannelTerminal {
		t.Fatalf("expected terminal channel, got %q", got)
	}
	if got := NormalizeChannelID(" custom "); got != "custom" {
		t.Fatalf("expected trimmed channel id, got %q", got)
	}
}

func TestTerminalEventNames(t *testing.T) {
	if got := TerminalDataEvent("t-1"); got != "terminal:t-1:data" {
		t.Fatalf("unexpected data event %q", got)
	}
	if got := TerminalCloseEvent("t-1"); got != "terminal:t-1:close" {
		t.Fatalf("unexpected close event %q", got)
	}
}
