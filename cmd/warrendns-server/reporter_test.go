package main

import (
	"os"
	"strings"
	"testing"
	"time"
)

const expect1 = "req=3 ok=2 (1/1) al=0.750 errs=1 (1) Concurrency=0"

func TestReporter(t *testing.T) {
	mainInit(os.Stdout, os.Stderr) // Make sure cfg is initialized
	s := &server{stdout: stdout, listenAddress: "127.0.0.1"}
	name := s.Name()
	if !strings.Contains(name, "Listener") {
		t.Error("Name does not contain 'Listener'", name)
	}
	rep1 := s.Report(false)
	if !strings.Contains(rep1, "127.0.0.1") {
		t.Error("Report does not contain listen address 127.0.0.1", rep1)
	}

	var evs events
	s.addSuccessStats(time.Second, evs)
	rep2 := s.Report(true)
	if rep2 == rep1 {
		t.Error("Report should have changed with counter updates", rep1, rep2)
	}
	rep2 = s.Report(false)
	if rep2 != rep1 {
		t.Error("Reset Counters report should equal initial report", rep1, rep2)
	}

	evs[evNXDomain] = true
	s.addSuccessStats(time.Second, evs)
	var evs2 events
	evs2[evFixed] = true
	s.addSuccessStats(time.Millisecond*500, evs2) // ok=2 (this one and the evNXDomain one above; the pre-reset one is gone), al=1.5/2 = 0.750
	s.addFailureStats(serWriteFailed, events{})    // errs=1

	rep1 = s.Report(false)
	rep2 = s.Report(false)

	if rep1 != rep2 {
		t.Error("Report should not have reset", rep1, rep2)
	}
	if !strings.Contains(rep1, expect1) {
		t.Error("Report should match. Expected:", expect1, "Got:", rep1)
	}
}
