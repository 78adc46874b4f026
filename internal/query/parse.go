// Package query decodes a DNS query name, with the configured zone suffix already
// verified against it, into one of the five Transmission API variants the Resolver
// Front-End dispatches on.
package query

import (
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// Variant is implemented by Begin, Continue, End, Other and Failure. Callers must
// dispatch with a type switch; there is deliberately no Tag()/String() method to
// compare against, so stringly-typed dispatch can't creep in.
type Variant interface {
	variant()
}

// Begin is produced by "<prefix>.begin.ZONE" and starts a new transmission.
type Begin struct {
	Prefix string
}

// Continue is produced by "<data-labels>.<index>.<id>.continue.ZONE" and appends one
// fragment to an in-flight transmission.
type Continue struct {
	Data  string
	Index int
	ID    string
}

// End is produced by "<length>.<id>.end.ZONE" and finalizes a transmission.
type End struct {
	Length int
	ID     string
}

// Other is any well-formed name under ZONE that doesn't match begin/continue/end.
type Other struct {
	Name string
}

// Failure is a malformed begin/continue/end request: missing labels, or a label that
// should parse as a non-negative integer but doesn't.
type Failure struct {
	Name string
}

func (Begin) variant()    {}
func (Continue) variant() {}
func (End) variant()      {}
func (Other) variant()    {}
func (Failure) variant()  {}

// Parse strips zone from name and classifies the remaining labels. The caller (the
// Resolver Front-End) is responsible for having already established that name is a
// subdomain of zone; Parse returns Failure if that isn't actually the case.
func Parse(name, zone string) Variant {
	if !dns.IsSubDomain(zone, name) {
		return Failure{Name: name}
	}

	all := dns.SplitDomainName(name)
	zoneLabels := dns.SplitDomainName(zone)
	prefix := all[:len(all)-len(zoneLabels)]

	if len(prefix) == 0 {
		return Other{Name: name}
	}

	switch prefix[len(prefix)-1] {
	case "begin":
		if len(prefix) < 2 {
			return Failure{Name: name}
		}
		return Begin{Prefix: prefix[len(prefix)-2]}

	case "continue":
		rem := prefix[:len(prefix)-1]
		if len(rem) < 3 {
			return Failure{Name: name}
		}
		id := rem[len(rem)-1]
		index, err := strconv.Atoi(rem[len(rem)-2])
		if err != nil || index < 0 {
			return Failure{Name: name}
		}
		data := strings.Join(rem[:len(rem)-2], "")
		return Continue{Data: data, Index: index, ID: id}

	case "end":
		rem := prefix[:len(prefix)-1]
		if len(rem) < 2 {
			return Failure{Name: name}
		}
		id := rem[len(rem)-1]
		length, err := strconv.Atoi(rem[len(rem)-2])
		if err != nil || length < 0 {
			return Failure{Name: name}
		}
		return End{Length: length, ID: id}

	default:
		return Other{Name: name}
	}
}
