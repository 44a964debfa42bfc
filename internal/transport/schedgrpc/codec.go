// Package schedgrpc carries InstanceScheduling/ScheduleAck messages between
// the control plane and a worker agent over a gRPC connection. The service
// is defined by hand, with no protoc step: a single method, one
// ServiceDesc, and a JSON encoding.Codec standing in for generated
// protobuf marshaling.
package schedgrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is registered as the gRPC wire subtype, selected via the
// "content-subtype" the client dials with.
const codecName = "json"

// jsonCodec implements encoding.Codec by delegating to encoding/json, so
// InstanceScheduling/ScheduleAck travel as the JSON their struct tags
// define.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("schedgrpc: marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("schedgrpc: unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
