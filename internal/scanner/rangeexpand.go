package scanner

import (
	"net/netip"
	"slices"
	"strings"
)

// MaxRangeSize caps the number of distinct addresses a range may expand to.
const MaxRangeSize = 65536

// HostRangeMinPrefix is the shortest prefix length for which a CIDR block is
// expanded in full. Blocks with a shorter prefix (more than two addresses)
// drop their network and broadcast addresses; /31 and /32 keep every address.
const HostRangeMinPrefix = 31

// ExpandRange turns a range specification into the ascending, deduplicated
// list of IPv4 addresses it covers. Accepted forms, optionally combined as a
// comma-separated list:
//
//	192.168.1.0/24          CIDR block (usable hosts, see HostRangeMinPrefix)
//	10.0.0.10-10.0.0.20     inclusive start-end
//	10.0.0.7                single address
func ExpandRange(spec string) ([]netip.Addr, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, invalid("range", "range is empty")
	}

	seen := make(map[uint32]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, invalid("range", "empty element in %q", spec)
		}
		lo, hi, err := parseSpan(part)
		if err != nil {
			return nil, err
		}
		if uint64(hi)-uint64(lo)+1 > MaxRangeSize {
			return nil, invalid("range", "%q is too large (max %d addresses)", part, MaxRangeSize)
		}
		for v := uint64(lo); v <= uint64(hi); v++ {
			seen[uint32(v)] = struct{}{}
		}
		if len(seen) > MaxRangeSize {
			return nil, invalid("range", "range is too large (max %d addresses)", MaxRangeSize)
		}
	}
	if len(seen) == 0 {
		return nil, invalid("range", "%q contains no addresses", spec)
	}

	keys := make([]uint32, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]netip.Addr, len(keys))
	for i, k := range keys {
		out[i] = addrFromUint32(k)
	}
	return out, nil
}

// parseSpan returns the inclusive numeric bounds of a single range element.
// On success lo <= hi.
func parseSpan(part string) (lo, hi uint32, err error) {
	switch {
	case strings.Contains(part, "/"):
		prefix, perr := netip.ParsePrefix(part)
		if perr != nil || !prefix.Addr().Is4() {
			return 0, 0, invalid("range", "%q is not an IPv4 CIDR block", part)
		}
		prefix = prefix.Masked()
		bits := prefix.Bits()
		// A /16 is the largest block that fits MaxRangeSize.
		if bits < 16 {
			return 0, 0, invalid("range", "%q is too large (max %d addresses)", part, MaxRangeSize)
		}
		first := addrToUint32(prefix.Addr())
		last := first | uint32(uint64(1)<<(32-bits)-1)
		if bits < HostRangeMinPrefix {
			first++
			last--
		}
		return first, last, nil

	case strings.Contains(part, "-"):
		startStr, endStr, _ := strings.Cut(part, "-")
		start, serr := parseIPv4(strings.TrimSpace(startStr))
		if serr != nil {
			return 0, 0, serr
		}
		end, eerr := parseIPv4(strings.TrimSpace(endStr))
		if eerr != nil {
			return 0, 0, eerr
		}
		if end < start {
			return 0, 0, invalid("range", "start %s is after end %s", addrFromUint32(start), addrFromUint32(end))
		}
		return start, end, nil

	default:
		v, perr := parseIPv4(part)
		if perr != nil {
			return 0, 0, perr
		}
		return v, v, nil
	}
}

func parseIPv4(s string) (uint32, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return 0, invalid("range", "%q is not an IPv4 address", s)
	}
	return addrToUint32(addr), nil
}

func addrToUint32(a netip.Addr) uint32 {
	b := a.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func addrFromUint32(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// compareAddrStrings orders two dotted-quad strings numerically. Unparseable
// values sort after valid ones, lexically.
func compareAddrStrings(a, b string) int {
	aa, aerr := netip.ParseAddr(a)
	bb, berr := netip.ParseAddr(b)
	switch {
	case aerr == nil && berr == nil:
		return aa.Compare(bb)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
