package main

import (
	"time"

	"github.com/warrendns/warrendns/internal/flagutil"
)

// config collects every command-line-settable value. Argument parsing itself is
// treated as an external collaborator's concern; this struct is simply the boundary
// the flag package populates before the core ever sees a value.
type config struct {
	help    bool
	verbose bool
	version bool
	gops    bool

	listenAddresses flagutil.StringValue // DNS listen addresses; both UDP and TCP are bound on each

	zone      string
	zoneFiles flagutil.StringValue // RFC 1035 zone files of fixed records served verbatim

	publicIP    string // server's public source address stamped onto spoofed outbound packets
	portRangeLo int
	portRangeHi int

	forwarderWindow  time.Duration
	maxPending       int
	maxResponseBatch int

	statusInterval time.Duration

	logAll     bool // Turns on all other --log-* options
	logQueryIn bool // Compact qname-tail print of every inbound query

	cpuprofile, memprofile string

	setuidName, setgidName, chrootDir string // Process constraint settings
}
