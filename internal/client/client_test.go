package client

import (
	"encoding/json"
	"testing"

	"github.com/kyleoneill/etch/internal/wire"
	"github.com/stretchr/testify/assert"
)

func TestCheckCode(t *testing.T) {
	assert.NoError(t, checkCode(&wire.RawResponse{Code: wire.CodeOK, Data: json.RawMessage(`{}`)}, wire.CodeOK))

	err := checkCode(&wire.RawResponse{
		Code: wire.CodeNotFound,
		Data: json.RawMessage(`{"msg": "etch: table does not exist: ghost", "error": "table_not_found"}`),
	}, wire.CodeOK)

	var respErr *ResponseError
	assert.ErrorAs(t, err, &respErr)
	assert.Equal(t, wire.CodeNotFound, respErr.Code)
	assert.Equal(t, "etch: response 404 table_not_found: etch: table does not exist: ghost", err.Error())

	err = checkCode(&wire.RawResponse{Code: wire.CodeInternal, Data: json.RawMessage(`[]`)}, wire.CodeOK)
	assert.EqualError(t, err, "etch: response 500")
}
