package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/kyleoneill/etch/internal/catalog"
	"github.com/kyleoneill/etch/internal/logger"
	"github.com/kyleoneill/etch/internal/table"
	"github.com/kyleoneill/etch/internal/wire"
)

// members of create_table data
const (
	keyFields          = "fields"
	keyConstraints     = "constraints"
	keyRecordsPerShard = "records_per_shard"
)

// Engine is the part of the storage engine the dispatcher drives.
type Engine interface {
	CreateNewTable(name string, schema *catalog.Schema, recordsPerShard int) (*catalog.Table, error)
	Insert(tableName string, rawRecord map[string]json.RawMessage) (string, error)
	FindByID(tableName string, id string) (table.Record, error)
}

type Dispatcher struct {
	engine Engine
	log    logger.Logger
}

func NewDispatcher(engine Engine, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		engine: engine,
		log:    log,
	}
}

// Dispatch executes one request. It never returns nil; failures are
// turned into error responses.
//
// The engine call itself is not interruptible. If ctx expires first the
// client gets a timeout response and the call finishes in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	startedAt := time.Now()

	resp := d.dispatch(ctx, req)

	command := string(req.Command)
	RequestsTotal.WithLabelValues(command, strconv.Itoa(resp.Code)).Inc()
	RequestDuration.WithLabelValues(command).Observe(time.Since(startedAt).Seconds())

	if resp.Code >= wire.CodeInternal && resp.Code != wire.CodeNotImplemented {
		d.log.ErrorCtx(ctx, "dispatch: request failed", "command", command, "table", req.Table, "code", resp.Code, "data", resp.Data)
	} else {
		d.log.DebugCtx(ctx, "dispatch: request served", "command", command, "table", req.Table, "code", resp.Code)
	}

	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *wire.Request) *wire.Response {
	if err := ctx.Err(); err != nil {
		return ErrorResponse(err)
	}

	var call func() *wire.Response

	switch req.Command {
	case wire.CommandCreateTable:
		call = func() *wire.Response { return d.createTable(req) }
	case wire.CommandInsert:
		call = func() *wire.Response { return d.insert(req) }
	case wire.CommandRead:
		call = func() *wire.Response { return d.read(req) }
	case wire.CommandUpdate, wire.CommandDelete, wire.CommandDropTable:
		return wire.NewErrorResponse(
			wire.CodeNotImplemented,
			KindNotImplemented,
			fmt.Sprintf("command %s is not implemented", req.Command),
		)
	default:
		return wire.NewErrorResponse(
			wire.CodeBadRequest,
			KindBadRequest,
			fmt.Sprintf("unknown command %q", req.Command),
		)
	}

	done := make(chan *wire.Response, 1)
	go func() {
		done <- call()
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		return ErrorResponse(ctx.Err())
	}
}

func (d *Dispatcher) createTable(req *wire.Request) *wire.Response {
	schema, recordsPerShard, err := parseCreateTable(req.Data)
	if err != nil {
		return ErrorResponse(err)
	}

	created, err := d.engine.CreateNewTable(req.Table, schema, recordsPerShard)
	if err != nil {
		return ErrorResponse(err)
	}

	return &wire.Response{
		Code: wire.CodeCreated,
		Data: map[string]string{"table": created.Name},
	}
}

func (d *Dispatcher) insert(req *wire.Request) *wire.Response {
	id, err := d.engine.Insert(req.Table, req.Data)
	if err != nil {
		return ErrorResponse(err)
	}

	return &wire.Response{
		Code: wire.CodeCreated,
		Data: map[string]string{"id": id},
	}
}

func (d *Dispatcher) read(req *wire.Request) *wire.Response {
	rawID, exists := req.Data[table.IDField]
	if !exists {
		return ErrorResponse(fmt.Errorf("%w: read requires %s", ErrBadData, table.IDField))
	}

	var id string
	if err := json.Unmarshal(rawID, &id); err != nil {
		return ErrorResponse(fmt.Errorf("%w: %s must be a string", ErrBadData, table.IDField))
	}

	record, err := d.engine.FindByID(req.Table, id)
	if err != nil {
		return ErrorResponse(err)
	}

	return &wire.Response{
		Code: wire.CodeOK,
		Data: record,
	}
}

// parseCreateTable reads the optional schema and capacity of a new table.
func parseCreateTable(data map[string]json.RawMessage) (*catalog.Schema, int, error) {
	schema := &catalog.Schema{
		Fields:      []*catalog.Field{},
		Constraints: []*catalog.Constraint{},
	}

	if raw, exists := data[keyFields]; exists && !isNull(raw) {
		if err := json.Unmarshal(raw, &schema.Fields); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %s", ErrBadData, keyFields, err)
		}
		for _, field := range schema.Fields {
			if field == nil || field.Name == "" {
				return nil, 0, fmt.Errorf("%w: %s: field without name", ErrBadData, keyFields)
			}
		}
	}

	if raw, exists := data[keyConstraints]; exists && !isNull(raw) {
		if err := json.Unmarshal(raw, &schema.Constraints); err != nil {
			return nil, 0, fmt.Errorf("%w: %s: %s", ErrBadData, keyConstraints, err)
		}
	}

	var recordsPerShard int
	if raw, exists := data[keyRecordsPerShard]; exists && !isNull(raw) {
		if err := json.Unmarshal(raw, &recordsPerShard); err != nil || recordsPerShard <= 0 {
			return nil, 0, fmt.Errorf("%w: %s must be a positive integer", ErrBadData, keyRecordsPerShard)
		}
	}

	return schema, recordsPerShard, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
