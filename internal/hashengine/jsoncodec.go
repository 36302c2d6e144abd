// Copyright (c) 2019 The Eacred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hashengine

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the hash engine's gRPC client exchange plain JSON
// messages instead of protobuf-generated types. The driver sidecar is a
// small internal service (spec.md §6.3); a hand-maintained JSON wire
// format avoids pulling a protoc toolchain into this module's build for
// four small RPCs.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
