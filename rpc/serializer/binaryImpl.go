package serializer

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/ValentinKolb/dRate/lib/gossip"
	"github.com/ValentinKolb/dRate/lib/vclock"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and size
func NewBinarySerializer() IRecordSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRecordSerializer using a custom binary format.
//
// Format (big endian):
//
//	1 byte  version
//	4 bytes origin, 4 bytes hops, 8 bytes mean (IEEE 754)
//	4 bytes entity length, entity
//	4 bytes number of choices
//	per choice: 8 bytes value, 4 bytes clock size, per clock entry (sorted by id):
//	4 bytes id length, id, 8 bytes counter
type binarySerializerImpl struct {
}

const binaryVersion byte = 1

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRecordSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(r gossip.Record) ([]byte, error) {
	if len(r.Choices) != len(r.Clocks) {
		return nil, fmt.Errorf("record holds %d choices but %d clocks", len(r.Choices), len(r.Clocks))
	}
	if r.Origin < 0 || r.Hops < 0 {
		return nil, fmt.Errorf("negative origin or hops")
	}

	result := make([]byte, 0, b.sizeBytes(r))
	result = append(result, binaryVersion)
	result = binary.BigEndian.AppendUint32(result, uint32(r.Origin))
	result = binary.BigEndian.AppendUint32(result, uint32(r.Hops))
	result = binary.BigEndian.AppendUint64(result, math.Float64bits(r.Mean))
	result = appendString(result, r.Entity)
	result = binary.BigEndian.AppendUint32(result, uint32(len(r.Choices)))

	for i, choice := range r.Choices {
		result = binary.BigEndian.AppendUint64(result, math.Float64bits(choice))

		clock := r.Clocks[i]
		ids := make([]string, 0, len(clock))
		for id := range clock {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		result = binary.BigEndian.AppendUint32(result, uint32(len(ids)))
		for _, id := range ids {
			result = appendString(result, id)
			result = binary.BigEndian.AppendUint64(result, clock[id])
		}
	}
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, r *gossip.Record) error {
	d := decoder{data: data}

	version := d.readByte()
	if d.err == nil && version != binaryVersion {
		return fmt.Errorf("unsupported record version %d", version)
	}
	origin := d.readUint32()
	hops := d.readUint32()
	mean := math.Float64frombits(d.readUint64())
	entity := d.readString()
	count := d.readCount(8 + 4)

	choices := make([]float64, 0, count)
	clocks := make([]vclock.VectorClock, 0, count)
	for i := 0; i < count && d.err == nil; i++ {
		choices = append(choices, math.Float64frombits(d.readUint64()))
		size := d.readCount(4 + 8)
		clock := make(map[string]uint64, size)
		for j := 0; j < size && d.err == nil; j++ {
			id := d.readString()
			clock[id] = d.readUint64()
		}
		clocks = append(clocks, vclock.FromMap(clock))
	}

	if d.err != nil {
		return d.err
	}
	if d.pos != len(data) {
		return fmt.Errorf("%d trailing bytes after record", len(data)-d.pos)
	}

	*r = gossip.Record{
		Origin:  int(origin),
		Entity:  entity,
		Mean:    mean,
		Choices: choices,
		Clocks:  clocks,
		Hops:    int(hops),
	}
	return nil
}

func (b binarySerializerImpl) ContentType() string {
	return "application/x-drate-record"
}

// sizeBytes returns the exact number of bytes needed to serialize r
func (b binarySerializerImpl) sizeBytes(r gossip.Record) int {
	size := 1 + 4 + 4 + 8 + 4 + len(r.Entity) + 4
	for _, clock := range r.Clocks {
		size += 8 + 4
		for id := range clock {
			size += 4 + len(id) + 8
		}
	}
	return size
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func appendString(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

// decoder reads big endian values and remembers the first error
type decoder struct {
	data []byte
	pos  int
	err  error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || len(d.data)-d.pos < n {
		d.err = fmt.Errorf("data too short: need %d bytes at offset %d, have %d", n, d.pos, len(d.data)-d.pos)
		return false
	}
	return true
}

func (d *decoder) readByte() byte {
	if !d.need(1) {
		return 0
	}
	v := d.data[d.pos]
	d.pos++
	return v
}

func (d *decoder) readUint32() uint32 {
	if !d.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v
}

func (d *decoder) readUint64() uint64 {
	if !d.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v
}

func (d *decoder) readString() string {
	n := int(d.readUint32())
	if !d.need(n) {
		return ""
	}
	s := string(d.data[d.pos : d.pos+n])
	d.pos += n
	return s
}

// count reads an element count and checks it against the remaining data,
// every element needs at least minSize bytes
func (d *decoder) readCount(minSize int) int {
	n := int(d.readUint32())
	if d.err != nil {
		return 0
	}
	if n*minSize > len(d.data)-d.pos {
		d.err = fmt.Errorf("count %d exceeds remaining data", n)
		return 0
	}
	return n
}
