package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kyleoneill/etch/internal/jsonutil"
)

// коды ответа в стиле HTTP
const (
	CodeOK             = http.StatusOK
	CodeCreated        = http.StatusCreated
	CodeBadRequest     = http.StatusBadRequest
	CodeNotFound       = http.StatusNotFound
	CodeConflict       = http.StatusConflict
	CodeInternal       = http.StatusInternalServerError
	CodeNotImplemented = http.StatusNotImplemented
	CodeUnavailable    = http.StatusServiceUnavailable
)

type Response struct {
	Code int `json:"code"`
	Data any `json:"data"`
}

// ErrorBody is the data of every non-2xx response.
type ErrorBody struct {
	Msg   string `json:"msg"`
	Error string `json:"error,omitempty"`
}

func NewErrorResponse(code int, kind string, msg string) *Response {
	return &Response{
		Code: code,
		Data: &ErrorBody{Msg: msg, Error: kind},
	}
}

// readEnvelope is what a successful read response adds around a record.
const readEnvelope = `{"code":200,"data":}`

// MaxRecordSize is the largest serialized record that can still be
// returned by a read within one frame.
const MaxRecordSize = MaxPayloadSize - len(readEnvelope)

// Encode serializes resp into a frame.
func Encode(resp *Response) ([]byte, error) {
	data := resp.Data
	if data == nil {
		data = struct{}{}
	}

	payload, err := jsonutil.Marshal(&Response{Code: resp.Code, Data: data})
	if err != nil {
		return nil, fmt.Errorf("jsonutil.Marshal: %w", err)
	}

	return AppendFrame(make([]byte, 0, HeaderSize+len(payload)), payload)
}

// RawResponse is the client side view of a response frame.
type RawResponse struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// DecodeResponse reads one response frame from r.
func DecodeResponse(r io.Reader) (*RawResponse, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}

	var resp RawResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	return &resp, nil
}

// DecodeError decodes the error body of a non-2xx response.
func (r *RawResponse) DecodeError() (*ErrorBody, error) {
	var body ErrorBody
	if err := json.Unmarshal(r.Data, &body); err != nil {
		return nil, fmt.Errorf("json.Unmarshal: %w", err)
	}
	return &body, nil
}
