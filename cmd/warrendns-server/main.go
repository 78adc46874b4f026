// Listen for inbound DNS queries against ZONE and drive the Transmission/Session layers
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/miekg/dns"

	"github.com/warrendns/warrendns/internal/constants"
	"github.com/warrendns/warrendns/internal/fixedzone"
	"github.com/warrendns/warrendns/internal/forwarder"
	"github.com/warrendns/warrendns/internal/osutil"
	"github.com/warrendns/warrendns/internal/portpool"
	"github.com/warrendns/warrendns/internal/reporter"
	"github.com/warrendns/warrendns/internal/resolver"
	"github.com/warrendns/warrendns/internal/sessionproto"
	"github.com/warrendns/warrendns/internal/sessionstore"
	"github.com/warrendns/warrendns/internal/transmission"
)

// Program-wide variables
var (
	consts               = constants.Get()
	cfg                  *config
	defaultListenAddress = ":" + consts.DefaultDNSPort

	stdout io.Writer // All I/O goes via these writers
	stderr io.Writer

	startTime   = time.Now()
	stopChannel chan os.Signal
	flagSet     *flag.FlagSet
)

//////////////////////////////////////////////////////////////////////

func fatal(args ...interface{}) int {
	fmt.Fprint(stderr, "Fatal: ", consts.ServerProgramName, ": ")
	fmt.Fprintln(stderr, args...)

	return 1
}

func stopMain() {
	stopChannel <- syscall.SIGINT
}

//////////////////////////////////////////////////////////////////////
// main wrappers make it easy for test programs
//////////////////////////////////////////////////////////////////////

// mainInit resets everything such that mainExecute() can be called multiple times in one program
// execution. stopChannel is buffered as the reader may disappear if there is a fatal error and
// multiple writers may try to write to the channel and we don't want those writers to stall forever.
func mainInit(out io.Writer, err io.Writer) {
	cfg = &config{}
	stdout = out
	stderr = err
	mainState(Initial)
	stopChannel = make(chan os.Signal, 4) // All reasonable signals cause us to quit or stats report
	osutil.SignalNotify(stopChannel)
}

func main() {
	mainInit(os.Stdout, os.Stderr)
	os.Exit(mainExecute(os.Args))
}

func mainExecute(args []string) int {
	defer mainState(Stopped) // Tell testers we've stopped even on error returns
	flagSet = flag.NewFlagSet(args[0], flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	err := parseCommandLine(args)
	if err != nil {
		return 1 // Error already printed by the flag package
	}
	if cfg.help {
		usage(stdout)
		return 0
	}
	if cfg.version {
		fmt.Fprintln(stdout, consts.ServerProgramName, "Version:", consts.Version)
		return 0
	}

	if flagSet.NArg() > 0 {
		return fatal("Unexpected parameters on the command line", strings.Join(flagSet.Args(), " "))
	}

	if cfg.logAll {
		cfg.logQueryIn = true
	}

	if len(cfg.publicIP) == 0 {
		return fatal("Must supply the server's public address with --public-ip")
	}
	publicIP := net.ParseIP(cfg.publicIP)
	if publicIP == nil {
		return fatal("--public-ip", cfg.publicIP, "is not a valid IP address")
	}

	if cfg.portRangeLo >= cfg.portRangeHi {
		return fatal("--port-range-lo", cfg.portRangeLo, "must be less than --port-range-hi", cfg.portRangeHi)
	}

	if cfg.gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fatal("gops:", err)
		}
		defer agent.Close()
	}

	// Load fixed records. Zone-file parsing is an external collaborator's job; we
	// only ask github.com/miekg/dns's own zone parser for the RRs it finds.

	var fixedRRs []dns.RR
	for _, fname := range cfg.zoneFiles.Args() {
		f, err := os.Open(fname)
		if err != nil {
			return fatal(err)
		}
		rrs, err := fixedzone.Load(f, cfg.zone, fname)
		f.Close()
		if err != nil {
			return fatal(err)
		}
		fixedRRs = append(fixedRRs, rrs...)
	}

	// Build the core: Transmission Store + Response Cache, Port Allocator, Packet
	// Forwarder over a raw IPv4 socket per transport, Session Store + Session
	// Message Handler, and finally the Resolver Front-End that ties fixed records
	// and the Transmission API together.

	store := transmission.NewStore(consts.MaxTransmissions)
	cache := transmission.NewCache(consts.ResponseCacheTTL, consts.ResponseCacheMaxLen)

	ports := portpool.New(cfg.portRangeLo, cfg.portRangeHi)

	tcpTransport, err := forwarder.NewRawTransport("tcp")
	if err != nil {
		return fatal("opening raw TCP transport (needs CAP_NET_RAW/root):", err)
	}
	udpTransport, err := forwarder.NewRawTransport("udp")
	if err != nil {
		return fatal("opening raw UDP transport (needs CAP_NET_RAW/root):", err)
	}

	logf := func(string, ...interface{}) {}
	if cfg.verbose {
		logf = func(format string, a ...interface{}) { fmt.Fprintf(stdout, format+"\n", a...) }
	}

	fwd := forwarder.New(publicIP, ports, tcpTransport, udpTransport, cfg.forwarderWindow, cfg.maxPending, logf)

	sessions := sessionstore.New()
	sessionHandler := sessionproto.New(sessions, fwd, consts.DomainSafeChars, cfg.maxResponseBatch)

	logQueryIn := func(string) {}
	if cfg.logQueryIn {
		logQueryIn = func(tail string) { fmt.Fprintln(stdout, "SI: ..."+tail) }
	}

	res := resolver.New(resolver.Config{
		Zone:       dns.Fqdn(cfg.zone),
		TTL:        consts.DNSAnswerTTL,
		MaxSegment: consts.MaxTXTSegmentBytes,
		Fixed:      fixedzone.ByName(fixedRRs),
		Store:      store,
		Cache:      cache,
		Session:    sessionHandler,
		LogQueryIn: logQueryIn,
	})

	var reporters []reporter.Reporter // Track of all reportables for periodic reporting
	var servers []*server             // Track of all servers so we can shut them down

	reporters = append(reporters, res, store, sessions, ports, fwd)

	if cfg.listenAddresses.NArg() == 0 { // Use wildcard if none supplied
		cfg.listenAddresses.Set(defaultListenAddress)
	}

	// Start CPU profiling now that most error checking is complete

	if len(cfg.cpuprofile) > 0 {
		f, err := os.Create(cfg.cpuprofile)
		if err != nil {
			return fatal(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	// Memory profile is triggered at the end of the program but we open the output file and
	// hold it open prior to any possible chroot/setuid/setgid action.

	var memProfileFile *os.File
	if len(cfg.memprofile) > 0 {
		memProfileFile, err = os.Create(cfg.memprofile)
		if err != nil {
			return fatal(err)
		}
		defer memProfileFile.Close()
	}

	if cfg.verbose {
		fmt.Fprintln(stdout, consts.ServerProgramName, consts.Version, "Starting")
		fmt.Fprintln(stdout, "Zone:", cfg.zone, "PublicIP:", publicIP, "Ports:", cfg.portRangeLo, "-", cfg.portRangeHi)
	}

	errorChannel := make(chan error, cfg.listenAddresses.NArg())
	wg := &sync.WaitGroup{} // Wait on all servers

	for _, addr := range cfg.listenAddresses.Args() {
		ip := net.ParseIP(addr) // We have to wrap unadorned ipv6 addresses so we can append port
		if ip != nil && ip.To16() != nil && ip.To4() == nil {
			addr = "[" + addr + "]" // It's naked, so wrap it
		}

		// If addr is neither v4addr:port, [v6addr]:port or host:port, append the default port
		if !(strings.LastIndex(addr, ":") > strings.LastIndex(addr, "]")) {
			addr += ":" + consts.DefaultDNSPort
		}

		s := &server{stdout: stdout, handler: res, listenAddress: addr}
		s.start(errorChannel, wg)
		if cfg.verbose {
			fmt.Fprintln(stdout, "Listening:", s.listenName())
		}
		reporters = append(reporters, s)
		servers = append(servers, s)
	}

	// Constrain the process via setuid/setgid/chroot. This is a no-op call if all parameters
	// are empty strings.
	//
	// We've already opened the raw sockets and the DNS listeners by this point, so the only
	// remaining privileged resource is whatever the constraint call itself needs. Constrain
	// runs in a goroutine after a short delay rather than stall the main goroutine, which
	// needs to select for errors and signals.

	go func(setuidName, setgidName, chrootDir string, verbose bool, stdout io.Writer) {
		time.Sleep(3 * time.Second)
		err := osutil.Constrain(setuidName, setgidName, chrootDir)
		if err != nil {
			errorChannel <- err // Force main goroutine to exit
			return
		}
		if verbose {
			fmt.Fprintf(stdout, "Constraints: %s\n", osutil.ConstraintReport())
		}
	}(cfg.setuidName, cfg.setgidName, cfg.chrootDir, cfg.verbose, stdout)

	// Loop forever giving periodic status reports and checking for a termination event.

	mainState(Started) // Tell testers we're up and running
	nextStatusIn := nextInterval(time.Now(), cfg.statusInterval)

Running:
	for {
		select {
		case s := <-stopChannel:
			if osutil.IsSignalUSR1(s) {
				statusReport("User1", false, reporters)
				break
			}
			if cfg.verbose {
				fmt.Fprintln(stdout, "\nSignal", s)
			}
			break Running // All signals bar USR1 cause loop exit

		case err := <-errorChannel:
			return fatal(err) // No cleanup if we get a server startup error

		case <-time.After(nextStatusIn):
			if cfg.verbose {
				statusReport("Status", true, reporters)
			}
			nextStatusIn = nextInterval(time.Now(), cfg.statusInterval)
		}
	}

	// Shutting down

	for _, s := range servers {
		s.stop()
	}
	mainState(Stopped) // Tell testers we've stopped accepting requests
	wg.Wait()           // Wait for all servers to completely shut down

	tcpTransport.Close()
	udpTransport.Close()

	if cfg.verbose {
		statusReport("Status", true, reporters) // One last report prior to exiting
		fmt.Fprintln(stdout, consts.ServerProgramName, consts.Version, "Exiting after", uptime())
	}

	// Memory profile is written at the end of the program

	if memProfileFile != nil {
		runtime.GC() // get up-to-date statistics
		err := pprof.WriteHeapProfile(memProfileFile)
		if err != nil {
			return fatal(err)
		}
	}

	return 0
}

// nextInterval calculates the duration to now+modulo interval. If now is 00:01:17 and the interval
// is 15m then the returned duration is 13m43s which is the distance to 00:15:00. The idea is to
// provide a wait/sleep value which gets the caller to the next interval tick-over.
func nextInterval(now time.Time, interval time.Duration) time.Duration {
	return now.Truncate(interval).Add(interval).Sub(now)
}

// uptime calculates how long this server has been running and returns a log-friendly,
// granularity-appropriate representation of that duration.
func uptime() string {
	return time.Now().Sub(startTime).Truncate(time.Second).String()
}

// statusReport prints stats about the server and all known reporters
func statusReport(what string, resetCounters bool, reporters []reporter.Reporter) {
	fmt.Fprintln(stdout, "Status Up:", consts.ServerProgramName, consts.Version, uptime())
	for _, r := range reporters {
		reps := strings.Split(r.Report(resetCounters), "\n")
		for _, s := range reps {
			if len(s) > 0 {
				fmt.Fprintf(stdout, "%s %s: %s\n", what, r.Name(), s)
			}
		}
	}
}
