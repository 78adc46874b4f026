package main

import (
	"bytes"
	"fmt"
	"strings"
	"syscall"
	"testing"
	"time"
)

type mainTestCase struct {
	description string
	needsRoot   bool          // Only run if raw sockets/privilege drop are actually available
	willRunFor  time.Duration // warrendns-server should run for this amount of time before being terminated
	args        []string      // ARGV - not counting command
	stdout      []string      // Expected stdout strings
	stderr      string        // Expected stderr string
}

// Every case needs --public-ip to get past the early validation, and needsRoot is set for any
// case that actually has to open a raw IPv4 socket, since that requires CAP_NET_RAW/root and
// this suite otherwise runs unprivileged.

var mainTestCases = []mainTestCase{
	{"Missing public-ip",
		false, 0, []string{"-A", "127.0.0.1:63081"},
		[]string{}, "Must supply the server's public address"},

	{"Bad public-ip",
		false, 0, []string{"--public-ip", "not-an-address", "-A", "127.0.0.1:63081"},
		[]string{}, "is not a valid IP address"},

	{"Bad port range",
		false, 0, []string{"--public-ip", "203.0.113.9", "--port-range-lo", "50000", "--port-range-hi", "30000"},
		[]string{}, "must be less than"},

	{"Good run, fixed zone, verbose",
		true, 100 * time.Millisecond, []string{"-v", "--public-ip", "203.0.113.9",
			"-A", "127.0.0.1:63081", "-z", "testdata/fixed.zone"},
		[]string{"Starting", "Exiting"}, ""},

	{"Bad zone file",
		false, 0, []string{"--public-ip", "203.0.113.9", "-z", "testdata/bad.zone"},
		[]string{}, "fixedzone: parsing"},

	{"Missing zone file",
		false, 0, []string{"--public-ip", "203.0.113.9", "-z", "testdata/nosuchfile"},
		[]string{}, "no such file"},

	{"Status report",
		true, 2 * time.Second, []string{"-v", "-i", "1s", "--public-ip", "203.0.113.9", "-A", "127.0.0.1:63082"},
		[]string{"Listening: (DNS on"}, ""},
}

func TestMain(t *testing.T) {
	for tx, tc := range mainTestCases {
		t.Run(fmt.Sprintf("%d %s", tx, tc.description), func(t *testing.T) {
			if tc.needsRoot {
				t.Skip("Skipping: opening a raw IPv4 socket needs CAP_NET_RAW/root")
				return
			}

			args := append([]string{"warrendns-server"}, tc.args...)
			out := &bytes.Buffer{}
			err := &bytes.Buffer{}
			mainInit(out, err)
			done := make(chan error)
			go func() {
				done <- waitForMainExecute(t, tc.willRunFor)
			}()
			ec := mainExecute(args)
			e := <-done // Get waitForMainExecute results
			if e != nil {
				t.Fatal(e)
			}
			if ec == 0 && tc.willRunFor == 0 {
				t.Error("Non-zero Exit code expected")
			}
			if ec != 0 && tc.willRunFor > 0 {
				t.Error("Zero Exit code expected, not:", ec)
			}

			outStr := out.String()
			errStr := err.String()
			if len(errStr) > 0 && len(tc.stderr) == 0 {
				t.Error("Did not expect a fatal error:", errStr)
			}
			if !strings.Contains(errStr, tc.stderr) {
				t.Error("Stderr expected:", tc.stderr, "Got:", errStr)
			}

			for _, o := range tc.stdout {
				if !strings.Contains(outStr, o) {
					t.Error("Stdout expected:", o, "Got:", outStr)
				}
			}
		})
	}
}

// waitForMainExecute makes sure mainExecute() starts up and terminates as expected, driving
// state.go's mainState/isMain. If willRunFor is zero the call is expected to fail validation
// before ever reaching Started, so it just waits for Stopped.
func waitForMainExecute(t *testing.T, willRunFor time.Duration) error {
	if willRunFor == 0 {
		for ix := 0; ix < 10; ix++ {
			if isMain(Stopped) {
				return nil
			}
			time.Sleep(time.Millisecond * 50)
		}
		return fmt.Errorf("mainExecute did not stop for %s", t.Name())
	}

	for ix := 0; ix < 10; ix++ { // Wait for up to one second for main to get running
		if isMain(Started) {
			break
		}
		time.Sleep(time.Millisecond * 100)
	}
	if !isMain(Started) {
		return fmt.Errorf("main did not reach Started state after a second for %s", t.Name())
	}
	time.Sleep(willRunFor)       // Give it the designated time to complete
	stopMain()                   // Then ask it to finish up
	for ix := 0; ix < 10; ix++ { // Wait for up to two seconds for main to terminate
		if isMain(Stopped) {
			break
		}
		time.Sleep(time.Millisecond * 200)
	}
	if !isMain(Stopped) {
		return fmt.Errorf("main did not reach Stopped state two seconds after stopMain() call for %s", t.Name())
	}

	return nil
}

func TestNextInterval(t *testing.T) {
	tt := []struct {
		now      time.Time
		interval time.Duration
		nextIn   time.Duration
	}{
		// mod(01:01:01, minute)++ -> 01:02:00 needs 59s
		{mustParseTime("2019-05-07T01:01:01Z"), time.Minute, time.Second * 59},
		// mod(01:13:58, 15m)++ -> 01:15:00 needs 1m2s
		{mustParseTime("2019-05-07T01:13:58Z"), time.Minute * 15, time.Minute + time.Second*2},
		// mod(01:01:01, hour)++ -> 02:00:00 needs 58m59s
		{mustParseTime("2019-05-07T01:01:01Z"), time.Hour, time.Minute*58 + time.Second*59},
	}

	for tx, tc := range tt {
		t.Run(fmt.Sprintf("%d", tx), func(t *testing.T) {
			nextIn := nextInterval(tc.now, tc.interval)
			if nextIn != tc.nextIn {
				t.Error("nextIn NE:now", tc.now, "Int", tc.interval, "Want", tc.nextIn, "Got", nextIn)
			}
		})
	}
}

func mustParseTime(s string) time.Time {
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return tm
}

// Test that SIGUSR1 causes a stats report without stopping the server
func TestUSR1(t *testing.T) {
	out := &bytes.Buffer{}
	err := &bytes.Buffer{}
	args := []string{"warrendns-server", "--public-ip", "203.0.113.9", "-A", "127.0.0.1:60443"}
	mainInit(out, err)
	go func() {
		stopChannel <- syscall.SIGUSR1
		time.Sleep(time.Millisecond * 200) // Give it time to process
		stopMain()
	}()
	ec := mainExecute(args)
	outStr := out.String()
	errStr := err.String()
	if ec != 0 {
		if strings.Contains(errStr, "CAP_NET_RAW") {
			t.Skip("Skipping: opening a raw IPv4 socket needs CAP_NET_RAW/root")
			return
		}
		t.Error("Expected zero exit return, not", ec, errStr)
	}
	if !strings.Contains(outStr, "User1") {
		t.Error("Expected 'User1' status report, got", outStr)
	}
}
