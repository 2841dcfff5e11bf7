package connfsm

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/akz4ol/histgate/internal/pgerr"
	"github.com/akz4ol/histgate/internal/wire"
)

// preparedStatement is a client's Parse'd statement text. The gateway's
// dialect never infers parameter types from placeholders, so the statement
// is resolved (fetched/executed) at most once, the first time a Describe or
// Execute needs its shape or its rows, and the result is cached for any
// later Describe/Execute against the same statement or a portal bound to it
// (spec §4.2's "D"/"E" states; DescribeStatement Open Question — see
// DESIGN.md — resolved towards eager re-execution rather than static schema
// derivation, since virtual-column-driven result shapes cannot be derived
// without actually running the query).
type preparedStatement struct {
	sql      string
	tag      string
	res      *execResult
	resolved bool
	err      error
}

// portal is a Bind'd statement; the gateway does not support real bind
// parameters (the dialect's predicates are always literal SQL text), so a
// portal is simply a named alias for its statement's eventual result.
type portal struct {
	stmt *preparedStatement
}

// handleParse implements spec §4.2's "P": store the statement text, never
// validate it eagerly (validation happens at the first Describe/Execute).
func (c *conn) handleParse(m *pgproto3.Parse) {
	if c.aborted {
		return
	}
	c.prepared[m.Name] = &preparedStatement{sql: m.Query}
	_ = c.send(wire.ParseComplete())
}

// handleBind implements spec §4.2's "B". Bind parameters are not
// interpolated into the statement text: the dialect has no placeholder
// syntax, so any parameters a client supplies are accepted and ignored.
func (c *conn) handleBind(m *pgproto3.Bind) {
	if c.aborted {
		return
	}
	ps, ok := c.prepared[m.PreparedStatement]
	if !ok {
		c.abortExtended(pgerr.New(pgerr.UndefinedTable, "unknown prepared statement %q", m.PreparedStatement))
		return
	}
	c.portals[m.DestinationPortal] = &portal{stmt: ps}
	_ = c.send(wire.BindComplete())
}

// ensureResolved runs ps's statement the first time it is needed and caches
// the outcome; later callers reuse the cached tag/result/error.
func (c *conn) ensureResolved(ctx context.Context, ps *preparedStatement) error {
	if ps.resolved {
		return ps.err
	}
	if c.record != nil {
		c.server.sessions.StartQuery(c.record.ConnectionID, ps.sql)
	}
	tag, res, err := c.classifyAndRun(ctx, ps.sql)
	if c.record != nil {
		c.server.sessions.EndQuery(c.record.ConnectionID)
	}
	ps.tag, ps.res, ps.err, ps.resolved = tag, res, err, true
	return err
}

// handleDescribe implements spec §4.2's "D" for both statement ('S') and
// portal ('P') targets.
func (c *conn) handleDescribe(ctx context.Context, m *pgproto3.Describe) {
	if c.aborted {
		return
	}
	ps, err := c.lookupDescribeTarget(m)
	if err != nil {
		c.abortExtended(err)
		return
	}
	if err := c.ensureResolved(ctx, ps); err != nil {
		c.abortExtended(err)
		return
	}

	var msgs []pgproto3.BackendMessage
	if m.ObjectType == 'S' {
		msgs = append(msgs, wire.ParameterDescription(0))
	}
	if ps.res == nil {
		msgs = append(msgs, wire.NoData())
	} else {
		msgs = append(msgs, wire.RowDescriptionFromColumns(ps.res.Columns))
	}
	_ = c.send(msgs...)
}

func (c *conn) lookupDescribeTarget(m *pgproto3.Describe) (*preparedStatement, error) {
	switch m.ObjectType {
	case 'S':
		ps, ok := c.prepared[m.Name]
		if !ok {
			return nil, pgerr.New(pgerr.UndefinedTable, "unknown prepared statement %q", m.Name)
		}
		return ps, nil
	case 'P':
		p, ok := c.portals[m.Name]
		if !ok {
			return nil, pgerr.New(pgerr.UndefinedTable, "unknown portal %q", m.Name)
		}
		return p.stmt, nil
	default:
		return nil, pgerr.New(pgerr.ProtocolViolation, "unknown Describe target %q", string(m.ObjectType))
	}
}

// handleExecute implements spec §4.2's "E": max_rows is ignored, the whole
// result set is always sent in one burst (the gateway never opens cursors).
func (c *conn) handleExecute(ctx context.Context, m *pgproto3.Execute) {
	if c.aborted {
		return
	}
	p, ok := c.portals[m.Portal]
	if !ok {
		c.abortExtended(pgerr.New(pgerr.UndefinedTable, "unknown portal %q", m.Portal))
		return
	}
	if err := c.ensureResolved(ctx, p.stmt); err != nil {
		c.abortExtended(err)
		return
	}

	if p.stmt.res == nil {
		_ = c.send(wire.CommandComplete(p.stmt.tag, 0))
		return
	}
	var msgs []pgproto3.BackendMessage
	for _, row := range p.stmt.res.Rows {
		msgs = append(msgs, wire.DataRowFromValues(row))
	}
	msgs = append(msgs, wire.CommandComplete(p.stmt.tag, len(p.stmt.res.Rows)))
	_ = c.send(msgs...)
}

// handleSync implements spec §4.2's "S": acknowledge and clear any aborted
// extended-query batch.
func (c *conn) handleSync() {
	c.aborted = false
	_ = c.send(wire.ReadyForQuery())
}

// handleClose implements spec §4.2's "C".
func (c *conn) handleClose(m *pgproto3.Close) {
	switch m.ObjectType {
	case 'S':
		delete(c.prepared, m.Name)
	case 'P':
		delete(c.portals, m.Name)
	}
	_ = c.send(wire.CloseComplete())
}

// abortExtended sends the error and marks the extended-query batch aborted,
// so subsequent P/B/D/E are ignored until the next Sync (spec §4.2).
func (c *conn) abortExtended(err error) {
	c.aborted = true
	_ = c.send(wire.ErrorResponse(err))
}
