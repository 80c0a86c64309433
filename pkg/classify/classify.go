// Package classify labels aircraft as military or civilian.
//
// The classification is a heuristic built from two configurable lists:
// blocks of ICAO 24-bit addresses allocated to military operators, and
// callsign prefixes used by military flights. It is not ground truth.
// Civil aircraft on government business and military aircraft flying
// with civil callsigns and addresses are both expected.
package classify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/brunoga/deep"
)

// HexRange is an inclusive range of ICAO 24-bit addresses.
type HexRange struct {
	Start uint32
	End   uint32
}

// Contains reports whether addr falls inside the range.
func (r HexRange) Contains(addr uint32) bool {
	return addr >= r.Start && addr <= r.End
}

func (r HexRange) String() string {
	return fmt.Sprintf("%06X-%06X", r.Start, r.End)
}

// ParseHexRange parses "ADF7C8-AFFFFF" (or a single address) into a HexRange.
func ParseHexRange(s string) (HexRange, error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		hi = lo
	}
	start, err := strconv.ParseUint(strings.TrimSpace(lo), 16, 32)
	if err != nil {
		return HexRange{}, fmt.Errorf("invalid range start %q: %w", lo, err)
	}
	end, err := strconv.ParseUint(strings.TrimSpace(hi), 16, 32)
	if err != nil {
		return HexRange{}, fmt.Errorf("invalid range end %q: %w", hi, err)
	}
	if end < start {
		return HexRange{}, fmt.Errorf("range %q ends before it starts", s)
	}
	return HexRange{Start: uint32(start), End: uint32(end)}, nil
}

// ParseHexRanges parses every entry, failing on the first malformed one.
func ParseHexRanges(specs []string) ([]HexRange, error) {
	ranges := make([]HexRange, 0, len(specs))
	for _, s := range specs {
		r, err := ParseHexRange(s)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// Classifier is immutable once built, so it is safe for concurrent use.
type Classifier struct {
	ranges   []HexRange
	prefixes []string
}

// New builds a classifier. The inputs are copied; prefixes are
// normalized to upper case.
func New(ranges []HexRange, prefixes []string) *Classifier {
	c := &Classifier{
		ranges:   deep.MustCopy(ranges),
		prefixes: make([]string, 0, len(prefixes)),
	}
	for _, p := range prefixes {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			c.prefixes = append(c.prefixes, p)
		}
	}
	return c
}

// IsMilitary returns true when id parses as hex inside a military range,
// or when the trimmed, upper-cased callsign starts with a military prefix.
func (c *Classifier) IsMilitary(id, callsign string) bool {
	if c == nil {
		return false
	}
	if addr, err := strconv.ParseUint(strings.TrimSpace(id), 16, 32); err == nil {
		for _, r := range c.ranges {
			if r.Contains(uint32(addr)) {
				return true
			}
		}
	}

	cs := strings.ToUpper(strings.TrimSpace(callsign))
	if cs == "" {
		return false
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(cs, p) {
			return true
		}
	}
	return false
}

// Ranges returns a copy of the configured address ranges.
func (c *Classifier) Ranges() []HexRange {
	return deep.MustCopy(c.ranges)
}

// Prefixes returns a copy of the configured callsign prefixes.
func (c *Classifier) Prefixes() []string {
	return deep.MustCopy(c.prefixes)
}
