// Package jsonx pins the codec every persistence path shares. Taskset
// documents and event-log lines must encode byte-identically no matter
// which package writes them, so call sites alias through here instead of
// importing a codec directly.
package jsonx

import "github.com/goccy/go-json"

var (
	Marshal       = json.Marshal
	MarshalIndent = json.MarshalIndent
	Unmarshal     = json.Unmarshal
)

// RawMessage holds fields a document struct does not model, so unknown
// keys survive a load/save round trip untouched.
type RawMessage = json.RawMessage
