package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

var errNilProtoCtor = errors.New("codec: protobuf constructor is nil")

// Protobuf encodes proto messages deterministically, so the same message
// always yields the same durable record bytes.
type Protobuf[T proto.Message] struct {
	ctor func() T // fresh, empty message, e.g. func() *pb.Appointment { return &pb.Appointment{} }
}

func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.ctor == nil {
		var zero T
		return zero, errNilProtoCtor
	}
	m := c.ctor()
	err := proto.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(b, m)
	return m, err
}
