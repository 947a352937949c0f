package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kyleoneill/etch/internal/jsonutil"
)

// IDField is reserved and always assigned by the server.
const IDField = "_id"

const idSeparator = "."

// Record is a client supplied JSON object. Values stay raw so they
// are written exactly as received.
type Record map[string]json.RawMessage

// NewRecordID builds "{shard}.{uuid}". The prefix locates the shard file,
// the uuid distinguishes the record within and across shards.
func NewRecordID(shardIndex int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("uuid.NewRandom: %w", err)
	}

	return strconv.Itoa(shardIndex) + idSeparator + id.String(), nil
}

// ParseRecordID returns the shard index encoded in id.
func ParseRecordID(id string) (int, error) {
	prefix, _, found := strings.Cut(id, idSeparator)
	if !found {
		return 0, ErrBadIdentifier(id, "no shard separator")
	}

	if prefix == "" {
		return 0, ErrBadIdentifier(id, "empty shard index")
	}

	// strconv.Atoi пропускает знаки, поэтому проверяем цифры явно
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return 0, ErrBadIdentifier(id, "shard index is not a non-negative integer")
		}
	}

	shardIndex, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, ErrBadIdentifier(id, "shard index out of range")
	}

	return shardIndex, nil
}

// NewRecordWithID copies raw and injects id, overwriting any
// client supplied _id.
func NewRecordWithID(raw map[string]json.RawMessage, id string) (Record, error) {
	marshalledID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	record := make(Record, len(raw)+1)
	for key, value := range raw {
		record[key] = value
	}
	record[IDField] = marshalledID

	return record, nil
}

// DecodeRecord parses one element of a shard.
func DecodeRecord(raw json.RawMessage) (Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrRecordNotObject()
	}

	var record Record
	if err := json.Unmarshal(trimmed, &record); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}

	return record, nil
}

func (r Record) ID() (string, error) {
	raw, exists := r[IDField]
	if !exists {
		return "", ErrRecordWithoutID()
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", ErrRecordWithoutID()
	}

	var id string
	if err := json.Unmarshal(trimmed, &id); err != nil {
		return "", ErrRecordWithoutID()
	}

	return id, nil
}

func (r Record) Serialize() ([]byte, error) {
	serialized, err := jsonutil.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("jsonutil.Marshal: %w", err)
	}
	return serialized, nil
}
