package main

import (
	"bytes"
	"context"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/kyleoneill/etch/internal/client"
	"github.com/kyleoneill/etch/internal/dispatch"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/server"
	"github.com/kyleoneill/etch/internal/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()

	tableManager, err := table.InitTableManager(t.TempDir())
	require.NoError(t, err)

	log := logger.NewNopLogger()
	srv := server.NewServer(log, dispatch.NewDispatcher(tableManager, log))
	t.Cleanup(func() { srv.Close() })

	addr, err := srv.Listen("127.0.0.1:0")
	require.NoError(t, err)

	c, err := client.Dial(context.Background(), addr.String(), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	out := &bytes.Buffer{}
	return &REPL{client: c, out: out}, out
}

func TestREPL_Execute(t *testing.T) {
	repl, out := newTestREPL(t)

	require.NoError(t, repl.Execute("create users 2"))
	assert.Equal(t, "201 {\"table\":\"users\"}\n", out.String())
	out.Reset()

	require.NoError(t, repl.Execute(`insert users {"name": "Ada"}`))
	match := regexp.MustCompile(`^201 \{"id":"(0\.[0-9a-f-]{36})"\}\n$`).FindStringSubmatch(out.String())
	require.Len(t, match, 2, out.String())
	out.Reset()

	require.NoError(t, repl.Execute("read users "+match[1]))
	assert.Contains(t, out.String(), `"name":"Ada"`)
	assert.Contains(t, out.String(), "200 ")
	out.Reset()

	require.NoError(t, repl.Execute(`send drop_table users {}`))
	assert.Contains(t, out.String(), "501 ")
	out.Reset()

	require.NoError(t, repl.Execute(`read ghost 0.x`))
	assert.Contains(t, out.String(), `"error":"table_not_found"`)
}

func TestREPL_ExecuteErrors(t *testing.T) {
	repl, out := newTestREPL(t)

	for _, line := range []string{
		"create",
		"create users many",
		"read users",
		"insert users [1]",
		"send upsert users {}",
		"frobnicate",
	} {
		assert.ErrorIs(t, repl.Execute(line), ErrUsage, line)
	}
	assert.Empty(t, out.String())

	assert.NoError(t, repl.Execute("   "))
	assert.ErrorIs(t, repl.Execute("exit"), io.EOF)

	require.NoError(t, repl.Execute("help"))
	assert.Equal(t, help, out.String())
}
