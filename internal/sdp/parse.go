package sdp

import (
	"net"
	"strconv"
	"strings"

	"github.com/aes67bridge/aes67bridge/internal/aerr"
	"github.com/aes67bridge/aes67bridge/internal/rtpcodec"
)

// Parse parses an SDP body into a Descriptor. Lines beginning with
// <letter>= are typed records; other lines are ignored. Accepts both
// Windows and Unix line endings (spec §4.2).
func Parse(data []byte) (*Descriptor, error) {
	const op = "sdp.Parse"

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	lines := strings.Split(text, "\n")

	d := &Descriptor{PTPDomain: -1}
	haveConnection := false
	haveMedia := false
	seenVersion := false

	for _, line := range lines {
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		key, value := line[0], line[2:]

		switch key {
		case 'v':
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
			}
			if v != 0 {
				return nil, aerr.NewSDPParseError(op, aerr.KindUnknownVer, nil)
			}
			seenVersion = true

		case 'o':
			if err := parseOrigin(d, value); err != nil {
				return nil, aerr.NewSDPParseError(op, aerr.KindMalformedLine, err)
			}

		case 's':
			d.SessionName = value

		case 'i':
			d.SessionInfo = value

		case 'c':
			addr, ttl, err := parseConnection(value)
			if err != nil {
				return nil, aerr.NewSDPParseError(op, aerr.KindMalformedLine, err)
			}
			d.ConnectionAddress = addr
			d.TTL = ttl
			haveConnection = true

		case 'm':
			if err := parseMedia(d, value); err != nil {
				return nil, err
			}
			haveMedia = true

		case 'a':
			if err := parseAttribute(d, value); err != nil {
				return nil, err
			}
		}
	}

	if !seenVersion {
		return nil, aerr.NewSDPMissingField(op, "v")
	}
	if !haveConnection {
		return nil, aerr.NewSDPMissingField(op, "c")
	}
	if !haveMedia {
		return nil, aerr.NewSDPMissingField(op, "m")
	}

	if err := validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

func parseOrigin(d *Descriptor, value string) error {
	parts := strings.Fields(value)
	if len(parts) < 6 {
		return errShortFields("o", 6, len(parts))
	}
	d.OriginUsername = parts[0]
	d.OriginSessID = parts[1]
	d.OriginSessVer = parts[2]
	d.OriginAddress = parts[5]
	return nil
}

func parseConnection(value string) (addr string, ttl int, err error) {
	parts := strings.Fields(value)
	if len(parts) < 3 {
		return "", 0, errShortFields("c", 3, len(parts))
	}
	addr = parts[2]
	if idx := strings.Index(addr, "/"); idx >= 0 {
		ttlStr := addr[idx+1:]
		addr = addr[:idx]
		ttl, err = strconv.Atoi(ttlStr)
		if err != nil {
			return "", 0, errBadValue("connection ttl", ttlStr)
		}
	}
	if net.ParseIP(addr) == nil {
		return "", 0, errBadValue("connection address", addr)
	}
	return addr, ttl, nil
}

func parseMedia(d *Descriptor, value string) error {
	const op = "sdp.parseMedia"
	parts := strings.Fields(value)
	if len(parts) < 4 {
		return aerr.NewSDPParseError(op, aerr.KindMalformedLine, errShortFields("m", 4, len(parts)))
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
	}
	d.Port = port

	pt, err := strconv.Atoi(parts[3])
	if err != nil {
		return aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
	}
	d.PayloadType = pt
	return nil
}

func parseAttribute(d *Descriptor, attr string) error {
	const op = "sdp.parseAttribute"

	switch {
	case strings.HasPrefix(attr, "rtpmap:"):
		return parseRtpmap(d, attr[len("rtpmap:"):])

	case strings.HasPrefix(attr, "ptime:"):
		v, err := strconv.ParseFloat(attr[len("ptime:"):], 64)
		if err != nil {
			return aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
		}
		d.PtimeMs = v

	case strings.HasPrefix(attr, "framecount:"):
		v, err := strconv.Atoi(attr[len("framecount:"):])
		if err != nil {
			return aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
		}
		d.Framecount = v

	case strings.HasPrefix(attr, "ts-refclk:ptp="):
		rest := attr[len("ts-refclk:ptp="):]
		parseTsRefclk(d, rest)

	case strings.HasPrefix(attr, "mediaclk:"):
		d.MediaClock = attr[len("mediaclk:"):]

	case strings.HasPrefix(attr, "source-filter:"):
		parseSourceFilter(d, attr[len("source-filter:"):])

	case attr == string(DirectionSendOnly):
		d.Direction = DirectionSendOnly
	case attr == string(DirectionRecvOnly):
		d.Direction = DirectionRecvOnly
	case attr == "sendrecv" || attr == "inactive":
		// send_recv is rejected at the descriptor-validation layer, not here
		// (spec §3.1): nothing is recorded, so the direction field stays
		// unset (unless another direction attribute set it) and validate()
		// rejects the descriptor with KindInvalidEncoding.

	default:
		key, value, ok := strings.Cut(attr, ":")
		if !ok {
			key, value = attr, ""
		}
		d.Unknown = append(d.Unknown, UnknownAttr{Key: key, Value: value})
	}
	return nil
}

// parseRtpmap parses "<pt> <encoding>/<rate>[/<channels>]".
func parseRtpmap(d *Descriptor, value string) error {
	const op = "sdp.parseRtpmap"
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return aerr.NewSDPParseError(op, aerr.KindMalformedLine, errBadValue("rtpmap", value))
	}
	encParts := strings.Split(parts[1], "/")
	if len(encParts) < 2 {
		return aerr.NewSDPParseError(op, aerr.KindMalformedLine, errBadValue("rtpmap encoding", parts[1]))
	}
	d.Encoding = rtpcodec.Encoding(encParts[0])

	rate, err := strconv.Atoi(encParts[1])
	if err != nil {
		return aerr.NewSDPParseError(op, aerr.KindBadNumber, err)
	}
	d.SampleRate = rate

	if len(encParts) >= 3 {
		ch, err := strconv.Atoi(encParts[2])
		if err == nil {
			d.NumChannels = ch
		}
	}
	return nil
}

// parseTsRefclk parses "IEEE1588-2008:<mac>:domain-nmbr=<d>".
func parseTsRefclk(d *Descriptor, value string) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return
	}
	// parts[0] == "IEEE1588-2008"
	d.MasterClockID = parts[1]
	for _, p := range parts[2:] {
		if rest, ok := strings.CutPrefix(p, "domain-nmbr="); ok {
			if v, err := strconv.Atoi(rest); err == nil {
				d.PTPDomain = v
			}
		}
	}
}

// parseSourceFilter parses "incl IN IP4 <dst> <src>".
func parseSourceFilter(d *Descriptor, value string) {
	parts := strings.Fields(value)
	if len(parts) >= 5 {
		d.SourceFilterAddr = parts[4]
	}
}

func errShortFields(field string, want, got int) error {
	return &fieldCountError{field: field, want: want, got: got}
}

type fieldCountError struct {
	field    string
	want, got int
}

func (e *fieldCountError) Error() string {
	return "sdp: " + e.field + "= expects at least " + strconv.Itoa(e.want) +
		" fields, got " + strconv.Itoa(e.got)
}

func errBadValue(what, value string) error {
	return &badValueError{what: what, value: value}
}

type badValueError struct{ what, value string }

func (e *badValueError) Error() string {
	return "sdp: invalid " + e.what + " " + strconv.Quote(e.value)
}
