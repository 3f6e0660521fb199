package sdp

import (
	"strconv"
	"strings"
)

// Generate serializes a Descriptor back to SDP text. Attribute order is
// deterministic: version, origin, session fields, connection, timing,
// media, rtpmap, ptime, framecount, direction, source-filter, PTP
// refclock, mediaclk, then unknown attributes in insertion order
// (spec §4.2). Output uses \n line endings regardless of what was parsed.
func Generate(d *Descriptor) []byte {
	var b strings.Builder

	b.WriteString("v=0\n")
	b.WriteString("o=" + d.OriginUsername + " " + d.OriginSessID + " " + d.OriginSessVer +
		" IN IP4 " + d.OriginAddress + "\n")
	b.WriteString("s=" + d.SessionName + "\n")
	if d.SessionInfo != "" {
		b.WriteString("i=" + d.SessionInfo + "\n")
	}
	b.WriteString("c=IN IP4 " + d.ConnectionAddress)
	if d.TTL > 0 {
		b.WriteString("/" + strconv.Itoa(d.TTL))
	}
	b.WriteString("\n")
	b.WriteString("t=0 0\n")
	b.WriteString("m=audio " + strconv.Itoa(d.Port) + " RTP/AVP " + strconv.Itoa(d.PayloadType) + "\n")

	b.WriteString("a=rtpmap:" + strconv.Itoa(d.PayloadType) + " " + string(d.Encoding) + "/" + strconv.Itoa(d.SampleRate))
	if d.NumChannels > 0 {
		b.WriteString("/" + strconv.Itoa(d.NumChannels))
	}
	b.WriteString("\n")

	if d.PtimeMs != 0 {
		b.WriteString("a=ptime:" + formatPtime(d.PtimeMs) + "\n")
	}
	if d.Framecount != 0 {
		b.WriteString("a=framecount:" + strconv.Itoa(d.Framecount) + "\n")
	}

	if d.Direction != "" {
		b.WriteString("a=" + string(d.Direction) + "\n")
	}

	if d.SourceFilterAddr != "" {
		b.WriteString("a=source-filter: incl IN IP4 " + d.ConnectionAddress + " " + d.SourceFilterAddr + "\n")
	}

	if d.MasterClockID != "" {
		b.WriteString("a=ts-refclk:ptp=IEEE1588-2008:" + d.MasterClockID)
		if d.PTPDomain >= 0 {
			b.WriteString(":domain-nmbr=" + strconv.Itoa(d.PTPDomain))
		}
		b.WriteString("\n")
	}

	if d.MediaClock != "" {
		b.WriteString("a=mediaclk:" + d.MediaClock + "\n")
	}

	for _, kv := range d.Unknown {
		if kv.Value == "" {
			b.WriteString("a=" + kv.Key + "\n")
		} else {
			b.WriteString("a=" + kv.Key + ":" + kv.Value + "\n")
		}
	}

	return []byte(b.String())
}

func formatPtime(ms float64) string {
	s := strconv.FormatFloat(ms, 'f', -1, 64)
	return s
}
