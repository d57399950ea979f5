// Package serializer encodes gossip records for the transports that carry them between
// nodes (the HTTP push transport and the redis list queue).
//
//   - jsonSerializerImpl: JSON via json-iterator, human readable, the default.
//   - gobSerializerImpl: Go's gob encoding.
//   - binarySerializerImpl: a compact custom format, clock entries are written sorted
//     so equal records produce equal bytes.
//
// Every serializer announces a media type (ContentType), the HTTP transport sends it as
// Content-Type and the receiving node picks the matching serializer with ForContentType.
// All implementations are stateless and safe for concurrent use.
package serializer
