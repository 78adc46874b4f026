package query

import "testing"

const zone = "tun.warren.internal."

func TestParseBegin(t *testing.T) {
	v := Parse("x.begin."+zone, zone)
	b, ok := v.(Begin)
	if !ok {
		t.Fatalf("expected Begin, got %#v", v)
	}
	if b.Prefix != "x" {
		t.Error("expected prefix x, got", b.Prefix)
	}
}

func TestParseBeginMissingPrefix(t *testing.T) {
	v := Parse("begin."+zone, zone)
	if _, ok := v.(Failure); !ok {
		t.Fatalf("expected Failure, got %#v", v)
	}
}

func TestParseContinue(t *testing.T) {
	v := Parse("d2.d1.5.T1234567.continue."+zone, zone)
	c, ok := v.(Continue)
	if !ok {
		t.Fatalf("expected Continue, got %#v", v)
	}
	if c.Data != "d2d1" {
		t.Error("expected data d2d1, got", c.Data)
	}
	if c.Index != 5 {
		t.Error("expected index 5, got", c.Index)
	}
	if c.ID != "T1234567" {
		t.Error("expected id T1234567, got", c.ID)
	}
}

func TestParseContinueTooFewLabels(t *testing.T) {
	v := Parse("5.T1234567.continue."+zone, zone)
	if _, ok := v.(Failure); !ok {
		t.Fatalf("expected Failure, got %#v", v)
	}
}

func TestParseContinueBadIndex(t *testing.T) {
	v := Parse("data.notanumber.T1234567.continue."+zone, zone)
	if _, ok := v.(Failure); !ok {
		t.Fatalf("expected Failure, got %#v", v)
	}
}

func TestParseEnd(t *testing.T) {
	v := Parse("3.T1234567.end."+zone, zone)
	e, ok := v.(End)
	if !ok {
		t.Fatalf("expected End, got %#v", v)
	}
	if e.Length != 3 {
		t.Error("expected length 3, got", e.Length)
	}
	if e.ID != "T1234567" {
		t.Error("expected id T1234567, got", e.ID)
	}
}

func TestParseEndTooFewLabels(t *testing.T) {
	v := Parse("T1234567.end."+zone, zone)
	if _, ok := v.(Failure); !ok {
		t.Fatalf("expected Failure, got %#v", v)
	}
}

func TestParseOther(t *testing.T) {
	v := Parse("foo.bar."+zone, zone)
	o, ok := v.(Other)
	if !ok {
		t.Fatalf("expected Other, got %#v", v)
	}
	if o.Name != "foo.bar."+zone {
		t.Error("expected name echoed back, got", o.Name)
	}
}

func TestParseOutsideZone(t *testing.T) {
	v := Parse("x.begin.example.com.", zone)
	if _, ok := v.(Failure); !ok {
		t.Fatalf("expected Failure for name outside zone, got %#v", v)
	}
}
