package serializer

import (
	"bytes"
	"encoding/gob"

	"github.com/ValentinKolb/dRate/lib/gossip"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IRecordSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRecordSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRecordSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(r gossip.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, r *gossip.Record) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(r)
}

func (g gobSerializerImpl) ContentType() string {
	return "application/x-gob"
}
