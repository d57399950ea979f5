package serializer

import (
	"github.com/ValentinKolb/dRate/lib/gossip"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRecordSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRecordSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRecordSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(r gossip.Record) ([]byte, error) {
	return json.Marshal(r)
}

func (j jsonSerializerImpl) Deserialize(b []byte, r *gossip.Record) error {
	return json.Unmarshal(b, r)
}

func (j jsonSerializerImpl) ContentType() string {
	return "application/json"
}
