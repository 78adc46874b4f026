package main

import (
	"fmt"
	"io"
	"text/template"
	"time"
)

// The "flag" package is not tty aware so we've arbitrarily picked 100 columns as a conservative tty
// width for the usage output.

const usageMessageTemplate = `
NAME
          {{.ServerProgramName}} -- a DNS-tunneled IP proxy server

SYNOPSIS
          {{.ServerProgramName}} [options]

DESCRIPTION
          {{.ServerProgramName}} is an authoritative DNS server for a single zone ({{.DefaultZone}}
          by default) that uses DNS query names and TXT answers as a transport for a chunked,
          duplicate-tolerant message protocol. Assembled messages drive a NAT-like packet forwarder
          that spoofs source ports on outbound raw IP packets, captures matching replies, and queues
          them for retrieval by a later query. The wildcard interface address and port 53 are used
          if no listen addresses are given.

FIXED RECORDS
          Any number of RFC 1035 zone files may be supplied with -z; the resource records they
          contain are served verbatim, without transmission-layer processing, whenever a query name
          matches one exactly.

RAW NETWORK
          Forwarding requires the ability to send and receive raw IPv4 packets with a spoofed source
          address, which typically requires CAP_NET_RAW or root. --public-ip must be set to the
          address the server is reachable at so replies can be routed back here.

OPTIONS
          [-hv] [--version] [--gops]
          [-A listen Address[:port] ...]

          [--zone domain-suffix]
          [-z zone-file] ...

          [--public-ip address]
          [--port-range-lo port] [--port-range-hi port]
          [--forwarder-window duration] [--max-pending packets]
          [--max-response-batch bytes]

          [-i status-report-interval]

          [--log-query-in] [--log-all]

          [--cpu-profile file] [--mem-profile file]

          [--user userName] [--group groupName] [--chroot directory]

`

func usage(out io.Writer) {
	tmpl, err := template.New("usage").Parse(usageMessageTemplate)
	if err != nil {
		panic(err) // We've messed up our template
	}
	err = tmpl.Execute(out, consts)
	if err != nil {
		panic(err) // We've messed up our template
	}
	flagSet.SetOutput(out) // This is permanent so we assume an exit summarily
	flagSet.PrintDefaults()
	fmt.Fprintln(out, "\nVersion:", consts.Version)
}

// parseCommandLine sets up the flags-to-config mapping and parses the supplied command line
// arguments. It starts from scratch each time to make it easier for test wrappers to use.
func parseCommandLine(args []string) error {
	flagSet.BoolVar(&cfg.help, "h", false, "Print usage message to Stdout then exit(0)")
	flagSet.BoolVar(&cfg.verbose, "v", false, "Verbose status and stats - otherwise only errors are output")
	flagSet.BoolVar(&cfg.version, "version", false, "Print version and exit")
	flagSet.BoolVar(&cfg.gops, "gops", false, "Start github.com/google/gops agent")

	flagSet.Var(&cfg.listenAddresses, "A",
		"Listen `address` to accept DNS queries on (default "+defaultListenAddress+")")

	flagSet.StringVar(&cfg.zone, "zone", consts.DefaultZone, "Authoritative `zone` served by the transmission API")
	flagSet.Var(&cfg.zoneFiles, "z", "RFC 1035 zone `file` of fixed records, served verbatim")

	flagSet.StringVar(&cfg.publicIP, "public-ip", "", "Public source `address` stamped on spoofed outbound packets")
	flagSet.IntVar(&cfg.portRangeLo, "port-range-lo", consts.DefaultPortRangeLo, "Inclusive low `port` of the spoofable source port pool")
	flagSet.IntVar(&cfg.portRangeHi, "port-range-hi", consts.DefaultPortRangeHi, "Exclusive high `port` of the spoofable source port pool")

	flagSet.DurationVar(&cfg.forwarderWindow, "forwarder-window", consts.ForwarderWindow,
		"Reply-capture `window` per forwarded packet")
	flagSet.IntVar(&cfg.maxPending, "max-pending", consts.MaxPendingPackets,
		"High-water `mark` of packets queued per session before the oldest is dropped")
	flagSet.IntVar(&cfg.maxResponseBatch, "max-response-batch", consts.MaxResponseBatch,
		"Soft `byte` budget per 'r' session request")

	flagSet.DurationVar(&cfg.statusInterval, "i", time.Minute*15, "Periodic Status Report `interval` (needs -v set)")

	flagSet.BoolVar(&cfg.logAll, "log-all", false, "Turns on all other --log-* options")
	flagSet.BoolVar(&cfg.logQueryIn, "log-query-in", false, "Compact print of the tail of every inbound qname")

	flagSet.StringVar(&cfg.cpuprofile, "cpu-profile", "", "write cpu profile to `file`")
	flagSet.StringVar(&cfg.memprofile, "mem-profile", "", "write mem profile to `file`")

	flagSet.StringVar(&cfg.setuidName, "user", "", "setuid `username` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.setgidName, "group", "", "setgid `groupname` to constrain process after start-up (disabled for Linux)")
	flagSet.StringVar(&cfg.chrootDir, "chroot", "", "chroot `directory` to constrain process after start-up")

	return flagSet.Parse(args[1:])
}
