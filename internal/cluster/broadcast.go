package cluster

import (
	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/memberlist"
	"github.com/misalcedo/fermentation/breaker"
	"go.uber.org/zap"
)

var handle = &codec.MsgpackHandle{}

func encode(v any) ([]byte, error) {
	var buf []byte
	err := codec.NewEncoderBytes(&buf, handle).Encode(v)
	return buf, err
}

func decode(buf []byte, v any) error {
	return codec.NewDecoderBytes(buf, handle).Decode(v)
}

// StateBroadcast announces a change of a node's breaker state.
type StateBroadcast struct {
	Name  string
	State breaker.State

	logger *zap.Logger
}

func (c StateBroadcast) Invalidates(b memberlist.Broadcast) bool {
	if old, ok := b.(StateBroadcast); ok {
		return c.Name == old.Name
	}

	return false
}

func (c StateBroadcast) Message() []byte {
	bytes, err := encode(&c)
	if err != nil && c.logger != nil {
		c.logger.Error("failed to encode broadcast", zap.Error(err))
	}

	return bytes
}

func (c StateBroadcast) Finished() {
}
