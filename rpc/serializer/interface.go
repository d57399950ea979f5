package serializer

import (
	"fmt"

	"github.com/ValentinKolb/dRate/lib/gossip"
)

// IRecordSerializer is the interface for all gossip record serializers
type IRecordSerializer interface {
	// Serialize serializes a Record into a byte array
	Serialize(r gossip.Record) ([]byte, error)
	// Deserialize deserializes a byte array into the Record r points to
	Deserialize(b []byte, r *gossip.Record) error
	// ContentType returns the media type used when records travel over HTTP
	ContentType() string
}

// New returns the serializer registered under name (json, gob or binary)
func New(name string) (IRecordSerializer, error) {
	switch name {
	case "json", "":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	case "binary":
		return NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q (expected json, gob or binary)", name)
	}
}

// ForContentType returns the serializer producing the given media type
func ForContentType(contentType string) (IRecordSerializer, bool) {
	for _, s := range []IRecordSerializer{NewJSONSerializer(), NewGOBSerializer(), NewBinarySerializer()} {
		if s.ContentType() == contentType {
			return s, true
		}
	}
	return nil, false
}
