package api

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec lets Connect carry plain Go structs as application/json.
type jsonCodec struct{}

// JSONCodec returns the codec handlers and clients of this package use.
func JSONCodec() connect.Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	// Connect clients may send an empty body for an empty message.
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}
