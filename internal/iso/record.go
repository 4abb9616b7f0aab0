package iso

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Directory record layout
const (
	recordHeaderLen = 33
	minRecordLen    = recordHeaderLen + 1
	flagDirectory   = 0x02
	flagHidden      = 0x01
)

// record is one decoded directory record
type record struct {
	extent  uint32
	size    uint32
	flags   byte
	modTime time.Time
	ident   []byte // raw identifier bytes
}

func (r record) isDir() bool { return r.flags&flagDirectory != 0 }

// isSpecial reports the "." and ".." entries, encoded as 0x00 and 0x01
func (r record) isSpecial() bool {
	return len(r.ident) == 1 && (r.ident[0] == 0 || r.ident[0] == 1)
}

// parseRecord decodes the record at the start of b. It returns false when
// the record is malformed.
func parseRecord(b []byte) (record, bool) {
	if len(b) < minRecordLen {
		return record{}, false
	}
	length := int(b[0])
	if length < minRecordLen || length > len(b) {
		return record{}, false
	}
	nameLen := int(b[32])
	if recordHeaderLen+nameLen > length {
		return record{}, false
	}

	return record{
		extent:  binary.LittleEndian.Uint32(b[2:6]),
		size:    binary.LittleEndian.Uint32(b[10:14]),
		flags:   b[25],
		modTime: recordTime(b[18:25]),
		ident:   b[recordHeaderLen : recordHeaderLen+nameLen],
	}, true
}

// parseDirectory walks the records of a directory extent in on-disk order.
// Records never straddle a sector: a zero length byte or a malformed
// record ends the current sector.
func parseDirectory(data []byte) []record {
	var out []record
	pos := 0
	for pos < len(data) {
		sectorEnd := (pos/sectorSize + 1) * sectorSize
		if sectorEnd > len(data) {
			sectorEnd = len(data)
		}

		if data[pos] == 0 {
			pos = sectorEnd
			continue
		}

		r, ok := parseRecord(data[pos:sectorEnd])
		if !ok {
			treeLogger.Debug("Malformed record at offset %d, skipping to %d", pos, sectorEnd)
			pos = sectorEnd
			continue
		}
		pos += int(data[pos])

		if !r.isSpecial() {
			out = append(out, r)
		}
	}
	return out
}

// decodeName converts an ISO-8859-1 identifier and drops the ";N" version
// suffix and a trailing dot.
func decodeName(ident []byte) string {
	name := latin1(ident)

	if i := strings.LastIndexByte(name, ';'); i >= 0 {
		name = name[:i]
	}
	if len(name) > 1 {
		name = strings.TrimSuffix(name, ".")
	}
	return name
}

// recordVersion returns the ";N" file version of ident, or 0 when absent
func recordVersion(ident []byte) int {
	i := bytes.LastIndexByte(ident, ';')
	if i < 0 {
		return 0
	}
	v, err := strconv.Atoi(string(ident[i+1:]))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// latin1 decodes ISO-8859-1 bytes
func latin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(charmap.ISO8859_1.DecodeByte(c))
	}
	return sb.String()
}

// recordTime decodes the 7-byte directory record timestamp. The last byte
// is the offset from GMT in 15 minute intervals.
func recordTime(b []byte) time.Time {
	if len(b) < 7 || b[1] == 0 || b[2] == 0 {
		return time.Time{}
	}
	loc := time.FixedZone("", int(int8(b[6]))*15*60)
	return time.Date(1900+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, loc)
}

// volumeTime decodes the 17-byte "YYYYMMDDHHMMSScc" + offset form used in
// the volume descriptor. Unset dates decode to the zero time.
func volumeTime(b []byte) time.Time {
	if len(b) < 17 {
		return time.Time{}
	}
	digits := func(s []byte) (int, bool) {
		n := 0
		for _, c := range s {
			if c < '0' || c > '9' {
				return 0, false
			}
			n = n*10 + int(c-'0')
		}
		return n, true
	}

	var f [7]int
	spans := [][2]int{{0, 4}, {4, 6}, {6, 8}, {8, 10}, {10, 12}, {12, 14}, {14, 16}}
	for i, s := range spans {
		v, ok := digits(b[s[0]:s[1]])
		if !ok {
			return time.Time{}
		}
		f[i] = v
	}
	if f[0] == 0 || f[1] == 0 || f[2] == 0 {
		return time.Time{}
	}

	loc := time.FixedZone("", int(int8(b[16]))*15*60)
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6]*10*int(time.Millisecond), loc)
}
