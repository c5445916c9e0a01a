package config

import "testing"

func TestHolder_UpdateIsVisible(t *testing.T) {
	c1 := DefaultConfig()
	h := NewHolder(c1, "/tmp/config.toml")

	if h.Config() != c1 {
		t.Fatalf("expected initial config")
	}

	c2 := DefaultConfig()
	h.Update(c2)

	if h.Config() != c2 {
		t.Fatalf("expected updated config after Update")
	}

	if h.Path() != "/tmp/config.toml" {
		t.Fatalf("expected stable path")
	}
}
