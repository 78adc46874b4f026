package fixedzone

import (
	"strings"
	"testing"
)

const testZone = `
$ORIGIN tun.warren.internal.
status.tun.warren.internal.  60  IN  A      127.0.0.1
status.tun.warren.internal.  60  IN  TXT    "ok"
`

func TestLoad(t *testing.T) {
	rrs, err := Load(strings.NewReader(testZone), "tun.warren.internal.", "test.zone")
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 2 {
		t.Fatalf("expected 2 RRs, got %d", len(rrs))
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	_, err := Load(strings.NewReader("this is not a zone file {{{"), "tun.warren.internal.", "bad.zone")
	if err == nil {
		t.Fatal("expected an error for a malformed zone file")
	}
}

func TestByName(t *testing.T) {
	rrs, err := Load(strings.NewReader(testZone), "tun.warren.internal.", "test.zone")
	if err != nil {
		t.Fatal(err)
	}
	byName := ByName(rrs)
	recs, ok := byName["status.tun.warren.internal."]
	if !ok {
		t.Fatal("expected a lookup entry for status.tun.warren.internal.")
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records for the name, got %d", len(recs))
	}
}
