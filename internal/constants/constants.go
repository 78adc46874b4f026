/*
Package constants provides common values used across all warrendns packages. Usage is to call the
global Get() function which returns the Constants by value ensuring that any modifications made
(accidental or otherwise) will not affect other modules when they call Get().

Typically usage:

    consts := constants.Get()
    fmt.Println("I am", consts.ServerProgramName, "serving", consts.DefaultZone)

The primary reason for making this a constructed struct rather than the more typical const () block
is so that it can be fed directly into templating packages for printing usage messages.
*/
package constants

import "time"

// Constants contains the system-wide constants
type Constants struct {
	ServerProgramName string
	Version           string
	PackageName       string
	PackageURL        string

	DefaultZone        string // Authoritative suffix served by the transmission API
	DefaultDNSPort     string
	DNSAnswerTTL       uint32 // TTL stamped on every TXT/fixed answer
	MaxTXTSegmentBytes int    // RFC1464 character-string limit per TXT segment

	TransmissionIDHexLen int // Length of a transmission/session id
	MaxTransmissions     int // Implementation-defined upper bound on live transmissions
	ResponseCacheTTL     time.Duration
	ResponseCacheMaxLen  int

	DefaultPortRangeLo int // Inclusive spoofable source port range
	DefaultPortRangeHi int // Exclusive

	ForwarderWindow   time.Duration // Reply-capture window per forwarded packet
	MaxPendingPackets int           // High-water mark before the oldest queued packet is dropped
	MaxResponseBatch  int           // "r" command soft byte budget target

	DomainSafeChars string // match-all charset a session reply is permitted to use
}

var readOnlyConstants *Constants

// createReadOnlyConstants creates a read-only copy of the Constants which is copied whenever a
// caller asks for the constants set.
func createReadOnlyConstants() {
	readOnlyConstants = &Constants{
		ServerProgramName: "warrendns-server",
		Version:           "v0.1.0",
		PackageName:       "warrendns",
		PackageURL:        "https://github.com/warrendns/warrendns",

		DefaultZone:        "tun.warren.internal.",
		DefaultDNSPort:     "53",
		DNSAnswerTTL:       60,
		MaxTXTSegmentBytes: 250,

		TransmissionIDHexLen: 8,
		MaxTransmissions:     4096,
		ResponseCacheTTL:     70 * time.Second,
		ResponseCacheMaxLen:  100000,

		DefaultPortRangeLo: 30000,
		DefaultPortRangeHi: 50000,

		ForwarderWindow:   60 * time.Second,
		MaxPendingPackets: 512,
		MaxResponseBatch:  8000,

		DomainSafeChars: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-+/",
	}
}

func init() {
	createReadOnlyConstants()
}

// Get returns a copy of the Constant struct. Return by value so internal values cannot be
// inadvertently changed by callers.
func Get() Constants {
	return *readOnlyConstants
}
