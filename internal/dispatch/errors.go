package dispatch

import (
	"context"
	"errors"

	"github.com/kyleoneill/etch/internal/catalog"
	"github.com/kyleoneill/etch/internal/shard"
	"github.com/kyleoneill/etch/internal/table"
	"github.com/kyleoneill/etch/internal/wire"
)

// error kinds sent in the "error" member of a failed response
const (
	KindBadRequest           = "bad_request"
	KindInvalidTableName     = "invalid_table_name"
	KindMalformedIdentifier  = "malformed_identifier"
	KindRecordTooLarge       = "record_too_large"
	KindTableNotFound        = "table_not_found"
	KindRecordNotFound       = "record_not_found"
	KindTableExists          = "table_exists"
	KindCorruptShard         = "corrupt_shard"
	KindInconsistentMetadata = "inconsistent_metadata"
	KindInternal             = "internal"
	KindNotImplemented       = "not_implemented"
	KindTimeout              = "timeout"
	KindUnavailable          = "unavailable"
)

var ErrBadData = errors.New("etch: bad request data")

type errorMapping struct {
	target error
	code   int
	kind   string
}

// порядок важен: первое совпадение побеждает
var errorMappings = []errorMapping{
	{target: ErrBadData, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: wire.ErrFrameHeaderIncomplete, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: wire.ErrInvalidFrameStart, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: wire.ErrFramePayloadIncomplete, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: wire.ErrMalformedPayload, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: wire.ErrMalformedRequestShape, code: wire.CodeBadRequest, kind: KindBadRequest},
	{target: catalog.ErrInvalidTableName, code: wire.CodeBadRequest, kind: KindInvalidTableName},
	{target: table.ErrMalformedIdentifier, code: wire.CodeBadRequest, kind: KindMalformedIdentifier},
	{target: table.ErrRecordTooLarge, code: wire.CodeBadRequest, kind: KindRecordTooLarge},
	{target: table.ErrTableDoesntExist, code: wire.CodeNotFound, kind: KindTableNotFound},
	{target: table.ErrRecordNotFound, code: wire.CodeNotFound, kind: KindRecordNotFound},
	{target: catalog.ErrTableAlreadyExists, code: wire.CodeConflict, kind: KindTableExists},
	{target: shard.ErrCorruptShard, code: wire.CodeInternal, kind: KindCorruptShard},
	{target: shard.ErrInconsistentMetadata, code: wire.CodeInternal, kind: KindInconsistentMetadata},
	{target: context.DeadlineExceeded, code: wire.CodeUnavailable, kind: KindTimeout},
	// запрос прерван остановкой сервера
	{target: context.Canceled, code: wire.CodeUnavailable, kind: KindUnavailable},
}

// ErrorResponse maps err to the response sent to the client.
func ErrorResponse(err error) *wire.Response {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return wire.NewErrorResponse(mapping.code, mapping.kind, err.Error())
		}
	}

	return wire.NewErrorResponse(wire.CodeInternal, KindInternal, err.Error())
}
