// Package rpcapi carries the wire bindings for the Martin gRPC service.
// The messages ride a JSON codec instead of protobuf, so the bindings are
// maintained by hand and no generated artifacts are checked in.
package rpcapi

import (
	json "github.com/goccy/go-json"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype clients select with
// grpc.CallContentSubtype.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)    { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                     { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
