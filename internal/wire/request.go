package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kyleoneill/etch/internal/jsonutil"
)

type Command string

const (
	CommandInsert      Command = "insert"
	CommandRead        Command = "read"
	CommandUpdate      Command = "update"
	CommandDelete      Command = "delete"
	CommandCreateTable Command = "create_table"
	CommandDropTable   Command = "drop_table"
)

var Commands = []Command{
	CommandInsert,
	CommandRead,
	CommandUpdate,
	CommandDelete,
	CommandCreateTable,
	CommandDropTable,
}

func ParseCommand(raw string) (Command, bool) {
	for _, c := range Commands {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

const (
	keyCommand = "command"
	keyTable   = "table"
	keyData    = "data"

	requestKeysCount = 3
)

// Request is a decoded command frame. Data values are kept raw so
// numbers and nested objects reach the disk exactly as the client sent them.
type Request struct {
	Command Command                    `json:"command"`
	Table   string                     `json:"table"`
	Data    map[string]json.RawMessage `json:"data"`
}

// Decode reads one request frame from r.
func Decode(r io.Reader) (*Request, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	return ParseRequest(payload)
}

func DecodeBytes(data []byte) (*Request, error) {
	return Decode(bytes.NewReader(data))
}

// ParseRequest validates a frame payload as a request object.
func ParseRequest(payload []byte) (*Request, error) {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if _, isObject := raw.(map[string]any); !isObject {
		return nil, NewRequestShapeError("top level is not an object")
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(payload, &members); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	for key := range members {
		if key != keyCommand && key != keyTable && key != keyData {
			return nil, NewRequestShapeError("unexpected key %q", key)
		}
	}

	rawCommand, err := stringMember(members, keyCommand)
	if err != nil {
		return nil, err
	}

	command, ok := ParseCommand(rawCommand)
	if !ok {
		return nil, NewRequestShapeError("command %q is not a valid value", rawCommand)
	}

	table, err := stringMember(members, keyTable)
	if err != nil {
		return nil, err
	}

	rawData, exists := members[keyData]
	if !exists {
		return nil, NewRequestShapeError("missing %q key", keyData)
	}

	data, err := DecodeObject(rawData)
	if err != nil {
		return nil, NewRequestShapeError("%q key is not an object", keyData)
	}

	if len(members) != requestKeysCount {
		return nil, NewRequestShapeError("expected exactly %d keys", requestKeysCount)
	}

	return &Request{
		Command: command,
		Table:   table,
		Data:    data,
	}, nil
}

// DecodeObject unmarshals raw into an object, rejecting null and non-objects.
func DecodeObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return obj, nil
}

func stringMember(members map[string]json.RawMessage, key string) (string, error) {
	raw, exists := members[key]
	if !exists {
		return "", NewRequestShapeError("missing %q key", key)
	}

	var s string
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", NewRequestShapeError("%q key is not a string", key)
	}
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return "", NewRequestShapeError("%q key is not a string", key)
	}

	return s, nil
}

// EncodeRequest frames req, used by clients.
func EncodeRequest(req *Request) ([]byte, error) {
	data := req.Data
	if data == nil {
		data = map[string]json.RawMessage{}
	}

	payload, err := jsonutil.Marshal(&Request{
		Command: req.Command,
		Table:   req.Table,
		Data:    data,
	})
	if err != nil {
		return nil, fmt.Errorf("jsonutil.Marshal: %w", err)
	}

	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}
