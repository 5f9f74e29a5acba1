package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MaxMessageSize bounds one framed message. Grab Screenshot results carry a
// whole PNG.
const MaxMessageSize = 64 << 20

// ErrRemote marks a keyword that failed on the daemon side.
var ErrRemote = errors.New("keyword failed")

// Request is a decoded keyword call.
type Request struct {
	Keyword string
	Args    []string
}

// NewRequestMessage encodes a keyword call as {keyword, args}.
func NewRequestMessage(keyword string, args []string) (*structpb.Struct, error) {
	list := make([]any, len(args))
	for i, a := range args {
		list[i] = a
	}
	return structpb.NewStruct(map[string]any{
		"keyword": keyword,
		"args":    list,
	})
}

// ParseRequest decodes a keyword call. Non-string arguments are rejected.
func ParseRequest(msg *structpb.Struct) (Request, error) {
	fields := msg.GetFields()
	keyword := fields["keyword"].GetStringValue()
	if keyword == "" {
		return Request{}, fmt.Errorf("request has no keyword")
	}

	req := Request{Keyword: keyword}
	for i, v := range fields["args"].GetListValue().GetValues() {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return Request{}, fmt.Errorf("argument %d of %s is not a string", i, keyword)
		}
		req.Args = append(req.Args, s.StringValue)
	}
	return req, nil
}

// NewResponseMessage encodes a keyword outcome as {ok, error, result}.
func NewResponseMessage(result any, err error) (*structpb.Struct, error) {
	if err != nil {
		return structpb.NewStruct(map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
	}
	value, verr := structpb.NewValue(result)
	if verr != nil {
		return nil, fmt.Errorf("failed to encode result: %w", verr)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"ok":     structpb.NewBoolValue(true),
		"result": value,
	}}, nil
}

// ParseResponse decodes a keyword outcome. A failed keyword yields an error
// wrapping ErrRemote. Numbers come back as float64.
func ParseResponse(msg *structpb.Struct) (any, error) {
	fields := msg.GetFields()
	if !fields["ok"].GetBoolValue() {
		return nil, fmt.Errorf("%w: %s", ErrRemote, fields["error"].GetStringValue())
	}
	if v, ok := fields["result"]; ok {
		return v.AsInterface(), nil
	}
	return nil, nil
}

// ReadMessage reads one length-prefixed protobuf message.
func ReadMessage(r io.Reader, msg proto.Message) error {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("failed to read message length: %w", err)
	}
	if length > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds the %d byte limit", length, MaxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read message data: %w", err)
	}

	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return nil
}

// WriteMessage writes one length-prefixed protobuf message.
func WriteMessage(w io.Writer, msg proto.Message) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds the %d byte limit", len(data), MaxMessageSize)
	}

	// Write message length (4 bytes, big endian)
	length := uint32(len(data)) //nolint:gosec // bounded by MaxMessageSize
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}
	return nil
}
