// Package isotest builds small disc images in memory for tests.
package isotest

import (
	"encoding/binary"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// SectorSize is the ISO9660 logical block size
const SectorSize = 2048

// Builder assembles a minimal ISO9660 image: a primary volume descriptor,
// a terminator and a directory hierarchy with one extent per file.
type Builder struct {
	Label       string
	Publisher   string
	SystemID    string
	Application string
	ModTime     time.Time

	root    *node
	extents map[string][2]uint32
}

type node struct {
	name     string
	dir      bool
	data     []byte
	parent   *node
	children []*node
	extent   uint32
	size     uint32
}

// NewBuilder returns a builder for a volume labelled label.
func NewBuilder(label string) *Builder {
	return &Builder{
		Label:    label,
		SystemID: "PSP GAME",
		ModTime:  time.Date(2006, 3, 14, 12, 30, 45, 0, time.UTC),
		root:     &node{dir: true},
	}
}

// AddDir creates p and any missing parents
func (b *Builder) AddDir(p string) {
	b.walk(p, true)
}

// AddFile stores data at p, creating parent directories
func (b *Builder) AddFile(p string, data []byte) {
	n := b.walk(p, false)
	n.data = data
}

func (b *Builder) walk(p string, dir bool) *node {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	cur := b.root
	for i, part := range parts {
		last := i == len(parts)-1
		var next *node
		for _, c := range cur.children {
			if c.name == part {
				next = c
				break
			}
		}
		if next == nil {
			next = &node{name: part, dir: dir || !last, parent: cur}
			cur.children = append(cur.children, next)
		}
		cur = next
	}
	return cur
}

// Extent returns the start sector and byte size assigned to p by the last
// call to Bytes.
func (b *Builder) Extent(p string) (extent, size uint32, ok bool) {
	e, ok := b.extents[path.Clean("/"+p)]
	return e[0], e[1], ok
}

// Bytes lays out and serialises the image.
func (b *Builder) Bytes() []byte {
	var dirs, files []*node
	var collect func(n *node)
	collect = func(n *node) {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i].name < n.children[j].name })
		if n.dir {
			dirs = append(dirs, n)
		} else {
			files = append(files, n)
		}
		for _, c := range n.children {
			collect(c)
		}
	}
	collect(b.root)

	next := uint32(18)
	for _, d := range dirs {
		d.extent = next
		d.size = dirSectors(d) * SectorSize
		next += d.size / SectorSize
	}
	for _, f := range files {
		f.extent = next
		f.size = uint32(len(f.data))
		next += (f.size + SectorSize - 1) / SectorSize
	}

	img := make([]byte, int(next)*SectorSize)
	b.writePVD(img, next)
	term := img[17*SectorSize:]
	term[0] = 255
	copy(term[1:6], "CD001")
	term[6] = 1

	b.extents = make(map[string][2]uint32)
	for _, d := range dirs {
		b.writeDir(img, d)
		b.extents[nodePath(d)] = [2]uint32{d.extent, d.size}
	}
	for _, f := range files {
		copy(img[int(f.extent)*SectorSize:], f.data)
		b.extents[nodePath(f)] = [2]uint32{f.extent, f.size}
	}
	return img
}

func nodePath(n *node) string {
	if n.parent == nil {
		return "/"
	}
	return path.Join(nodePath(n.parent), n.name)
}

func (n *node) identifier() []byte {
	name := n.name
	if !n.dir {
		name += ";1"
	}
	enc, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		enc = name
	}
	return []byte(enc)
}

func recordLen(nameLen int) int {
	l := 33 + nameLen
	if nameLen%2 == 0 {
		l++
	}
	return l
}

func dirSectors(d *node) uint32 {
	sectors, used := uint32(1), 2*recordLen(1)
	for _, c := range d.children {
		l := recordLen(len(c.identifier()))
		if used+l > SectorSize {
			sectors++
			used = 0
		}
		used += l
	}
	return sectors
}

func (b *Builder) writeDir(img []byte, d *node) {
	parent := d.parent
	if parent == nil {
		parent = d
	}
	base := int(d.extent) * SectorSize
	off := 0
	put := func(id []byte, extent, size uint32, dir bool) {
		l := recordLen(len(id))
		if off%SectorSize+l > SectorSize {
			off += SectorSize - off%SectorSize
		}
		b.writeRecord(img[base+off:base+off+l], id, extent, size, dir)
		off += l
	}
	put([]byte{0}, d.extent, d.size, true)
	put([]byte{1}, parent.extent, parent.size, true)
	for _, c := range d.children {
		put(c.identifier(), c.extent, c.size, c.dir)
	}
}

func (b *Builder) writeRecord(rec, id []byte, extent, size uint32, dir bool) {
	rec[0] = byte(len(rec))
	putBoth32(rec[2:], extent)
	putBoth32(rec[10:], size)
	t := b.ModTime
	rec[18] = byte(t.Year() - 1900)
	rec[19] = byte(t.Month())
	rec[20] = byte(t.Day())
	rec[21] = byte(t.Hour())
	rec[22] = byte(t.Minute())
	rec[23] = byte(t.Second())
	if dir {
		rec[25] = 0x02
	}
	putBoth16(rec[28:], 1)
	rec[32] = byte(len(id))
	copy(rec[33:], id)
}

func (b *Builder) writePVD(img []byte, total uint32) {
	pvd := img[16*SectorSize : 17*SectorSize]
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	pvd[6] = 1
	padded(pvd[8:40], b.SystemID)
	padded(pvd[40:72], b.Label)
	putBoth32(pvd[80:], total)
	putBoth16(pvd[120:], 1)
	putBoth16(pvd[124:], 1)
	putBoth16(pvd[128:], SectorSize)
	b.writeRecord(pvd[156:190], []byte{0}, b.root.extent, b.root.size, true)
	padded(pvd[190:318], "")
	padded(pvd[318:446], b.Publisher)
	padded(pvd[446:574], "")
	padded(pvd[574:702], b.Application)
	t := b.ModTime
	copy(pvd[813:829], fmt.Sprintf("%04d%02d%02d%02d%02d%02d00", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second()))
	pvd[881] = 1
}

func padded(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func putBoth16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
	binary.BigEndian.PutUint16(b[2:], v)
}

func putBoth32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
	binary.BigEndian.PutUint32(b[4:], v)
}
