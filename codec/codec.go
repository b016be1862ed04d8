// Package codec converts cached values to and from the byte payload stored in
// the durable mirror. The in-memory tier holds values as-is and never encodes.
package codec

// Codec encodes/decodes values V to []byte for durable storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
