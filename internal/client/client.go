package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kyleoneill/etch/internal/wire"
)

// ResponseError is returned by the typed helpers for non-2xx responses.
type ResponseError struct {
	Code int
	Body *wire.ErrorBody
}

func (e *ResponseError) Error() string {
	if e.Body == nil {
		return fmt.Sprintf("etch: response %d", e.Code)
	}
	return fmt.Sprintf("etch: response %d %s: %s", e.Code, e.Body.Error, e.Body.Msg)
}

// Client holds one connection. Requests on it are sent one at a time.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to addr. timeout bounds every round trip, 0 disables it.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: time.Minute}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.Dial: %w", err)
	}

	return &Client{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Do sends req and waits for its response.
func (c *Client) Do(req *wire.Request) (*wire.RawResponse, error) {
	frame, err := wire.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("wire.EncodeRequest: %w", err)
	}

	return c.SendFrame(frame)
}

// SendFrame writes an already framed request as is. It exists for
// tooling that needs to send requests the encoder would refuse.
func (c *Client) SendFrame(frame []byte) (*wire.RawResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("net.Conn.SetDeadline: %w", err)
		}
	}

	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("net.Conn.Write: %w", err)
	}

	resp, err := wire.DecodeResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("wire.DecodeResponse: %w", err)
	}

	return resp, nil
}

// CreateTable creates a table. recordsPerShard <= 0 leaves the server default.
func (c *Client) CreateTable(table string, recordsPerShard int) error {
	data := map[string]json.RawMessage{}
	if recordsPerShard > 0 {
		data["records_per_shard"] = json.RawMessage(fmt.Sprint(recordsPerShard))
	}

	resp, err := c.Do(&wire.Request{Command: wire.CommandCreateTable, Table: table, Data: data})
	if err != nil {
		return err
	}

	return checkCode(resp, wire.CodeCreated)
}

// Insert stores record and returns its identifier.
func (c *Client) Insert(table string, record map[string]json.RawMessage) (string, error) {
	resp, err := c.Do(&wire.Request{Command: wire.CommandInsert, Table: table, Data: record})
	if err != nil {
		return "", err
	}

	if err := checkCode(resp, wire.CodeCreated); err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &created); err != nil {
		return "", fmt.Errorf("json.Unmarshal: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("etch: insert response has no id")
	}

	return created.ID, nil
}

// Read fetches the record with the given identifier.
func (c *Client) Read(table string, id string) (map[string]json.RawMessage, error) {
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	resp, err := c.Do(&wire.Request{
		Command: wire.CommandRead,
		Table:   table,
		Data:    map[string]json.RawMessage{"_id": rawID},
	})
	if err != nil {
		return nil, err
	}

	if err := checkCode(resp, wire.CodeOK); err != nil {
		return nil, err
	}

	record, err := wire.DecodeObject(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("wire.DecodeObject: %w", err)
	}

	return record, nil
}

func checkCode(resp *wire.RawResponse, expected int) error {
	if resp.Code == expected {
		return nil
	}

	body, err := resp.DecodeError()
	if err != nil {
		return &ResponseError{Code: resp.Code}
	}

	return &ResponseError{Code: resp.Code, Body: body}
}
