package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	headerSize = 8
	// maxFrameSize bounds the payload a peer can make us allocate
	maxFrameSize = 4 << 20
)

// writeFrame writes a frame to the connection with the format:
// - 4 bytes: node (uint32, big endian), the receiver of the record
// - 4 bytes: data length (uint32, big endian)
// - N bytes: serialized record
func writeFrame(conn net.Conn, node uint32, data []byte) error {
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[:4], node)
	binary.BigEndian.PutUint32(header[4:8], uint32(len(data)))

	b := net.Buffers{header}
	if len(data) > 0 {
		b = append(b, data)
	}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from r using the provided buffer.
// If the buffer is too small, it will allocate a new temporary buffer for the data.
func readFrame(r io.Reader, buf []byte) (uint32, []byte, error) {
	if len(buf) < headerSize {
		buf = make([]byte, headerSize)
	}

	// Read header
	if _, err := io.ReadFull(r, buf[:headerSize]); err != nil {
		return 0, nil, err
	}
	node := binary.BigEndian.Uint32(buf[:4])
	contentLength := binary.BigEndian.Uint32(buf[4:8])

	if contentLength > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d", contentLength, maxFrameSize)
	}
	if contentLength == 0 {
		return node, []byte{}, nil
	}

	// Check if buffer is large enough for data
	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}

	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		return 0, nil, err
	}
	return node, buf[:contentLength], nil
}
