package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kyleoneill/etch/internal/client"
	"github.com/kyleoneill/etch/internal/dispatch"
	"github.com/kyleoneill/etch/internal/jsonutil"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/table"
	"github.com/kyleoneill/etch/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func startServer(t *testing.T, opts ...Opt) (*Server, string) {
	t.Helper()

	tableManager, err := table.InitTableManager(t.TempDir())
	require.NoError(t, err)

	log := logger.NewNopLogger()
	srv := NewServer(log, dispatch.NewDispatcher(tableManager, log), opts...)
	t.Cleanup(func() { srv.Close() })

	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)

	return srv, addr.String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()

	c, err := client.Dial(context.Background(), addr, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c
}

func dialRaw(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, testTimeout)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(testTimeout)))
	t.Cleanup(func() { conn.Close() })

	return conn
}

func requireErrorKind(t *testing.T, resp *wire.RawResponse, code int, kind string) {
	t.Helper()

	require.Equal(t, code, resp.Code)
	body, err := resp.DecodeError()
	require.NoError(t, err)
	assert.Equal(t, kind, body.Error)
}

func TestServer_EndToEnd(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	require.NoError(t, c.CreateTable("users", 1000))

	id, err := c.Insert("users", map[string]json.RawMessage{"name": json.RawMessage(`"Ada"`)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "0."), id)

	record, err := c.Read("users", id)
	require.NoError(t, err)
	assert.Equal(t, `"Ada"`, string(record["name"]))

	var readID string
	require.NoError(t, json.Unmarshal(record["_id"], &readID))
	assert.Equal(t, id, readID)

	err = c.CreateTable("users", 0)
	var respErr *client.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, wire.CodeConflict, respErr.Code)
	assert.Equal(t, dispatch.KindTableExists, respErr.Body.Error)
}

func TestServer_PayloadErrorsKeepConnection(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	require.NoError(t, c.CreateTable("users", 0))

	payloads := []string{
		`{not json`,
		`[1, 2, 3]`,
		`{"command": "upsert", "table": "users", "data": {}}`,
		`{"command": "insert", "table": "users"}`,
		`{"command": "insert", "table": "users", "data": {}, "ttl": 5}`,
	}

	for _, payload := range payloads {
		frame, err := wire.AppendFrame(nil, []byte(payload))
		require.NoError(t, err)

		resp, err := c.SendFrame(frame)
		require.NoError(t, err, payload)
		requireErrorKind(t, resp, wire.CodeBadRequest, dispatch.KindBadRequest)
	}

	for _, command := range []wire.Command{wire.CommandUpdate, wire.CommandDelete, wire.CommandDropTable} {
		resp, err := c.Do(&wire.Request{Command: command, Table: "users"})
		require.NoError(t, err)
		requireErrorKind(t, resp, wire.CodeNotImplemented, dispatch.KindNotImplemented)
	}

	_, err := c.Insert("users", map[string]json.RawMessage{"a": json.RawMessage(`1`)})
	require.NoError(t, err)
}

func TestServer_FramingErrorsCloseConnection(t *testing.T) {
	_, addr := startServer(t)

	t.Run("payload shorter than declared", func(t *testing.T) {
		conn := dialRaw(t, addr)

		_, err := conn.Write([]byte{wire.StartMarker, 0, 10, '{', '"', 'a', '"', ':'})
		require.NoError(t, err)
		require.NoError(t, conn.(*net.TCPConn).CloseWrite())

		resp, err := wire.DecodeResponse(conn)
		require.NoError(t, err)
		requireErrorKind(t, resp, wire.CodeBadRequest, dispatch.KindBadRequest)

		_, err = conn.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("invalid start byte", func(t *testing.T) {
		conn := dialRaw(t, addr)

		_, err := conn.Write([]byte{7, 0, 2})
		require.NoError(t, err)

		resp, err := wire.DecodeResponse(conn)
		require.NoError(t, err)
		requireErrorKind(t, resp, wire.CodeBadRequest, dispatch.KindBadRequest)

		_, err = conn.Read(make([]byte, 1))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("other connections keep working", func(t *testing.T) {
		c := dial(t, addr)
		require.NoError(t, c.CreateTable("still_alive", 0))
	})
}

// oversizedHandler answers reads with data that cannot fit in a frame.
type oversizedHandler struct {
	Handler
}

func (h *oversizedHandler) Dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	if req.Command == wire.CommandRead {
		return &wire.Response{Code: wire.CodeOK, Data: strings.Repeat("x", wire.MaxPayloadSize)}
	}
	return h.Handler.Dispatch(ctx, req)
}

func TestServer_ResponseTooLarge(t *testing.T) {
	tableManager, err := table.InitTableManager(t.TempDir())
	require.NoError(t, err)

	log := logger.NewNopLogger()
	srv := NewServer(log, &oversizedHandler{Handler: dispatch.NewDispatcher(tableManager, log)})
	t.Cleanup(func() { srv.Close() })

	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)

	c := dial(t, addr.String())
	require.NoError(t, c.CreateTable("blobs", 0))

	_, err = c.Read("blobs", "0.x")
	var respErr *client.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, wire.CodeInternal, respErr.Code)
	assert.Equal(t, dispatch.KindInternal, respErr.Body.Error)
	assert.Equal(t, responseTooLargeMsg, respErr.Body.Msg)

	// соединение живо
	require.NoError(t, c.CreateTable("after", 0))
}

func TestServer_RecordTooLarge(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	require.NoError(t, c.CreateTable("blobs", 0))

	// запрос влезает во фрейм, а ответ на чтение с _id уже нет
	value, err := json.Marshal(strings.Repeat("x", 65480))
	require.NoError(t, err)

	_, err = c.Insert("blobs", map[string]json.RawMessage{"v": value})
	var respErr *client.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, wire.CodeBadRequest, respErr.Code)
	assert.Equal(t, dispatch.KindRecordTooLarge, respErr.Body.Error)

	// соединение живо
	require.NoError(t, c.CreateTable("after", 0))
}

func TestServer_HTMLCharactersRoundTrip(t *testing.T) {
	_, addr := startServer(t)
	c := dial(t, addr)

	require.NoError(t, c.CreateTable("pages", 0))

	// с экранированием \u003c такой запрос не влез бы во фрейм
	text := strings.Repeat("<a href=\"x\">&</a>", 3000)
	value, err := jsonutil.Marshal(text)
	require.NoError(t, err)

	id, err := c.Insert("pages", map[string]json.RawMessage{"html": value})
	require.NoError(t, err)

	record, err := c.Read("pages", id)
	require.NoError(t, err)

	var stored string
	require.NoError(t, json.Unmarshal(record["html"], &stored))
	assert.Equal(t, text, stored)
}

func TestServer_ConcurrentClients(t *testing.T) {
	_, addr := startServer(t)

	require.NoError(t, dial(t, addr).CreateTable("events", 5))

	const (
		clients          = 8
		insertsPerClient = 10
	)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]struct{}, clients*insertsPerClient)
	)

	for i := 0; i < clients; i++ {
		c := dial(t, addr)

		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < insertsPerClient; j++ {
				id, err := c.Insert("events", map[string]json.RawMessage{"j": json.RawMessage(`1`)})
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				ids[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, clients*insertsPerClient)
}

func TestServer_ReadTimeoutClosesIdleConnection(t *testing.T) {
	_, addr := startServer(t, &ReadTimeoutOpt{Timeout: 50 * time.Millisecond})
	conn := dialRaw(t, addr)

	_, err := conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestServer_Close(t *testing.T) {
	srv, addr := startServer(t)
	c := dial(t, addr)

	require.NoError(t, c.CreateTable("users", 0))
	require.NoError(t, srv.Close())

	_, err := c.Insert("users", map[string]json.RawMessage{})
	assert.Error(t, err)

	_, err = srv.Listen("127.0.0.1:0")
	assert.ErrorIs(t, err, ErrServerClosed)
}

func TestServer_ListenDuplicate(t *testing.T) {
	srv, _ := startServer(t)

	_, err := srv.Listen("127.0.0.1:0")
	assert.ErrorIs(t, err, ErrAddressDuplicated)
}
