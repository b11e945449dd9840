package store

import (
	"math/big"
	"testing"
)

func TestKey(t *testing.T) {
	serial := big.NewInt(0x1a2b3c)
	got := Key("ocsp_proxy_", []byte{0xde, 0xad, 0xbe, 0xef}, serial)
	want := "ocsp_proxy_deadbeef_1a2b3c"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestKey_NoLeadingZeroPadding(t *testing.T) {
	got := Key("", []byte{0x01}, big.NewInt(0x0f))
	want := "01_f"
	if got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestEntry_Valid(t *testing.T) {
	cases := []struct {
		name  string
		entry *Entry
		want  bool
	}{
		{"nil", nil, false},
		{"complete", &Entry{Request: []byte("r"), Response: []byte("s"), OCSPResponder: "host", ThisUpdate: 1}, true},
		{"missing request", &Entry{Response: []byte("s"), OCSPResponder: "host", ThisUpdate: 1}, false},
		{"missing response", &Entry{Request: []byte("r"), OCSPResponder: "host", ThisUpdate: 1}, false},
		{"missing responder", &Entry{Request: []byte("r"), Response: []byte("s"), ThisUpdate: 1}, false},
		{"zero thisupdate", &Entry{Request: []byte("r"), Response: []byte("s"), OCSPResponder: "host"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.entry.Valid(); got != c.want {
				t.Errorf("Valid() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestEntry_Fresh(t *testing.T) {
	base := &Entry{Request: []byte("r"), Response: []byte("s"), ThisUpdate: 100, NextUpdate: 200}
	if !base.Fresh(150) {
		t.Error("expected entry with nextUpdate in the future to be fresh")
	}
	if base.Fresh(200) {
		t.Error("expected entry at exactly nextUpdate to not be fresh")
	}
	if base.Fresh(250) {
		t.Error("expected entry past nextUpdate to not be fresh")
	}
}

func TestEntry_Cacheable(t *testing.T) {
	if (&Entry{NonceCount: 0}).Cacheable() != true {
		t.Error("expected NonceCount 0 to be cacheable")
	}
	if (&Entry{NonceCount: 1}).Cacheable() != false {
		t.Error("expected a nonced response to be uncacheable")
	}
}
