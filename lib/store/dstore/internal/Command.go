package internal

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/dRate/lib/db"
	"sort"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTHSet   CommandType = iota // Create a key or update some of its fields.
	CommandTDelete                    // Delete a key with all its fields.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTHSet:
		return "HSet"
	case CommandTDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTHSet:
		return db.FeatureHSet, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log)
type Command struct {
	Type   CommandType
	Key    string
	Fields map[string]string
}

// header: Type + KeyLen + FieldCount
const headerLen = 1 + 4 + 4

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	size := headerLen + len(command.Key)
	for name, value := range command.Fields {
		size += 4 + len(name) + 4 + len(value)
	}
	return size
}

// Serialize serializes a command into a byte array with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian),
// N bytes for key data,
// 4 bytes for the number of fields,
// per field: 4 bytes name length, name, 4 bytes value length, value.
// Fields are written sorted by name so equal commands produce equal bytes.
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)
	binary.BigEndian.PutUint32(result[1:5], uint32(len(command.Key)))
	pos := 5
	pos += copy(result[pos:], command.Key)

	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(command.Fields)))
	pos += 4

	names := make([]string, 0, len(command.Fields))
	for name := range command.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := command.Fields[name]
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(name)))
		pos += 4
		pos += copy(result[pos:], name)
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(value)))
		pos += 4
		pos += copy(result[pos:], value)
	}

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	if len(data) < 5 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])

	key, pos, err := readChunk(data, 1)
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}
	command.Key = key

	if len(data) < pos+4 {
		return fmt.Errorf("data too short for field count")
	}
	count := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	// every field needs at least 8 bytes of length prefixes
	if uint64(count)*8 > uint64(len(data)-pos) {
		return fmt.Errorf("field count %d exceeds data length", count)
	}

	command.Fields = nil
	if count > 0 {
		command.Fields = make(map[string]string, count)
	}
	for i := uint32(0); i < count; i++ {
		var name, value string
		if name, pos, err = readChunk(data, pos); err != nil {
			return fmt.Errorf("field %d name: %w", i, err)
		}
		if value, pos, err = readChunk(data, pos); err != nil {
			return fmt.Errorf("field %d value: %w", i, err)
		}
		command.Fields[name] = value
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after command", len(data)-pos)
	}
	return nil
}

// readChunk reads a length prefixed string starting at pos and returns the position after it
func readChunk(data []byte, pos int) (string, int, error) {
	if len(data) < pos+4 {
		return "", pos, fmt.Errorf("data too short for length prefix")
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || len(data)-pos < n {
		return "", pos, fmt.Errorf("data too short for chunk of length %d", n)
	}
	return string(data[pos : pos+n]), pos + n, nil
}
