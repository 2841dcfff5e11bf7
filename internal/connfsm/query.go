package connfsm

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"go.opentelemetry.io/otel/trace"

	"github.com/akz4ol/histgate/internal/catalog"
	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/engine"
	"github.com/akz4ol/histgate/internal/fetch"
	"github.com/akz4ol/histgate/internal/pgerr"
	"github.com/akz4ol/histgate/internal/planner"
	"github.com/akz4ol/histgate/internal/wire"
)

// execResult is a ready-to-encode result set: the RowDescription columns and
// the rows in the same positional order, regardless of whether they came
// from a single virtual table or an arbitrary engine projection.
type execResult struct {
	Columns []wire.ColumnDesc
	Rows    [][]columnar.Value
}

// showDefaults answers the handful of session parameters clients commonly
// probe with SHOW; anything else echoes back an empty string rather than
// failing the query outright.
var showDefaults = map[string]string{
	"SERVER_VERSION":            serverVersion,
	"SERVER_ENCODING":           "UTF8",
	"CLIENT_ENCODING":           "UTF8",
	"DATESTYLE":                 "ISO, MDY",
	"TIMEZONE":                  "UTC",
	"TRANSACTION_ISOLATION":     "read committed",
	"STANDARD_CONFORMING_STRINGS": "on",
	"INTEGER_DATETIMES":         "on",
}

var showArgPattern = regexp.MustCompile(`(?is)^SHOW\s+(.+?);?\s*$`)

func showParameter(sql string) (name, value string) {
	m := showArgPattern.FindStringSubmatch(strings.TrimSpace(sql))
	if m == nil {
		return "unknown", ""
	}
	raw := strings.Trim(m[1], `"'`)
	return raw, showDefaults[strings.ToUpper(raw)]
}

// fromlessPattern recognises the two FROM-less probe queries real drivers
// send ("SELECT 1" and "SELECT version()"), which are answered directly
// without the embedded engine (spec §4.6).
// "select 1" additionally triggers a backend extend_session call as a
// keep-alive side effect, mirroring the reference implementation's
// simple_server.rs treatment of connection-validation queries.
var fromlessPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(1|version\(\))\s*;?\s*$`)

func (c *conn) tryFromless(ctx context.Context, sql string) (*execResult, bool) {
	m := fromlessPattern.FindStringSubmatch(sql)
	if m == nil {
		return nil, false
	}
	if strings.EqualFold(m[1], "1") {
		if c.handle != nil {
			go func() {
				extCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_, _, _ = c.handle.Client().ExtendSession(extCtx)
			}()
		}
		return &execResult{
			Columns: []wire.ColumnDesc{{Name: "?column?", OID: 20}},
			Rows:    [][]columnar.Value{{{Kind: columnar.Integer, Int: 1}}},
		}, true
	}
	return &execResult{
		Columns: []wire.ColumnDesc{{Name: "version", OID: 25}},
		Rows:    [][]columnar.Value{{{Kind: columnar.Text, Text: serverVersion + " (histgate wire gateway)"}}},
	}, true
}

// catalogHintPattern matches every name that refers to a catalog relation rather than a
// historian-backed one, used to decide whether a query that the single-table
// planner cannot parse (typically because it joins several catalog
// relations) should still run by registering every catalog batch directly.
var catalogHintPattern = regexp.MustCompile(`(?i)\bpg_(catalog|namespace|class|proc|type|constraint|stat_activity)\b|\binformation_schema\b`)

// runSelectOrSet is the shared engine-execution path for both the Simple and
// Extended query flows. It classifies sql into one of three execution
// strategies (spec §4.4-§4.7):
//
//  1. FROM-less probe queries, answered directly.
//  2. A single-table plan the hand-rolled planner can parse: dispatch the
//     plan's filters to the right remote call (user tables) or register
//     every catalog batch (any other table), then run the literal SQL
//     through the embedded engine.
//  3. A query the planner rejects but that only references catalog
//     relations (typically a join across them, which the planner's
//     single-table grammar cannot express): register every catalog batch at
//     once and run the literal SQL directly, since assembling "all catalog
//     tables, passed through the same execution engine" is exactly how the
//     gateway already serves joins over pg_catalog (spec §4.7).
func (c *conn) runSelectOrSet(ctx context.Context, sql string) (string, *execResult, error) {
	if res, ok := c.tryFromless(ctx, sql); ok {
		return "SELECT", res, nil
	}

	stmt, err := planner.Parse(sql, c.logger)
	if err != nil {
		if catalogHintPattern.MatchString(sql) {
			res, runErr := c.runCatalogQuery(ctx, sql)
			return "SELECT", res, runErr
		}
		return "", nil, err
	}
	if stmt.IsSet {
		return "SET", nil, nil
	}

	plan := stmt.Select
	eng, err := engine.New()
	if err != nil {
		return "", nil, err
	}
	defer eng.Close()

	start := time.Now()
	switch {
	case plan.Table.IsUserTable():
		if c.handle != nil && !c.handle.Valid() {
			return "", nil, pgerr.New(pgerr.InvalidAuthSpec, "backend session is no longer valid; reconnect to re-authenticate")
		}
		fetcher := fetch.NewFetcher(c.handle.Client(), c.server.cache, c.logger)
		batch, err := fetcher.Execute(ctx, plan)
		if err != nil {
			return "", nil, err
		}
		graphqlMs := time.Since(start).Milliseconds()
		if err := eng.RegisterBatch(ctx, plan.Table.Name(), batch); err != nil {
			return "", nil, err
		}
		return c.runEngineQuery(ctx, eng, sql, graphqlMs)
	default:
		if err := c.registerCatalogBatches(ctx, eng); err != nil {
			return "", nil, err
		}
		return c.runEngineQuery(ctx, eng, sql, 0)
	}
}

// runCatalogQuery handles a query the single-table planner could not parse
// but that only references catalog relations (spec §4.7, "arbitrary SQL
// including joins").
func (c *conn) runCatalogQuery(ctx context.Context, sql string) (*execResult, error) {
	eng, err := engine.New()
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	if err := c.registerCatalogBatches(ctx, eng); err != nil {
		return nil, err
	}
	_, res, err := c.runEngineQuery(ctx, eng, sql, 0)
	return res, err
}

// registerCatalogBatches loads every system-catalog relation plus the
// external pre-loaded catalog (if configured) into eng, so a query
// referencing any combination of them — including joins — resolves.
func (c *conn) registerCatalogBatches(ctx context.Context, eng *engine.Engine) error {
	if err := eng.RegisterBatch(ctx, "pg_namespace", catalog.PgNamespaceBatch()); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "pg_class", catalog.PgClassBatch()); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "pg_proc", catalog.PgProcBatch()); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "pg_type", catalog.PgTypeBatch()); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "pg_constraint", catalog.PgConstraintBatch()); err != nil {
		return err
	}
	snapshots := c.connectionSnapshots()
	if err := eng.RegisterBatch(ctx, "pg_stat_activity", catalog.PgStatActivityBatch(snapshots)); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "tables", catalog.InformationSchemaTablesBatch()); err != nil {
		return err
	}
	if err := eng.RegisterBatch(ctx, "columns", catalog.InformationSchemaColumnsBatch()); err != nil {
		return err
	}
	dual := columnar.NewBatch(catalog.Dual.Schema())
	dual.AppendRow(map[string]columnar.Value{"dummy": {Kind: columnar.Text, Text: "X"}})
	if err := eng.RegisterBatch(ctx, "dual", dual); err != nil {
		return err
	}
	if ec := c.server.externalCatalog; ec != nil && ec.Path() != "" {
		if err := eng.AttachExternalCatalog(ctx, "ext", ec.Path(), ec.Tables()); err != nil {
			return err
		}
	}
	return nil
}

// connectionSnapshots converts the session registry's live connections into
// catalog.ConnectionSnapshot rows for pg_stat_activity (spec §4.7).
func (c *conn) connectionSnapshots() []catalog.ConnectionSnapshot {
	conns := c.server.sessions.GetConnections()
	out := make([]catalog.ConnectionSnapshot, len(conns))
	for i, rec := range conns {
		out[i] = catalog.ConnectionSnapshot{
			ConnectionID:     rec.ConnectionID,
			PeerAddress:      rec.PeerAddress,
			ApplicationName:  rec.ApplicationName,
			DatabaseName:     rec.DatabaseName,
			Username:         rec.Username,
			State:            string(rec.State()),
			LastQuery:        rec.LastQuery(),
			BackendStartTime: rec.BackendStartTime,
			QueryStart:       rec.QueryStart(),
		}
	}
	return out
}

// runEngineQuery runs the literal SQL text through eng and records the
// connection's timing metrics (spec §4.8's graphql_time_ms/datafusion_time_ms).
func (c *conn) runEngineQuery(ctx context.Context, eng *engine.Engine, sql string, graphqlMs int64) (string, *execResult, error) {
	if c.server.telemetry != nil {
		var span trace.Span
		ctx, span = c.server.telemetry.StartQuerySpan(ctx, sql)
		defer span.End()
	}

	start := time.Now()
	result, err := eng.Query(ctx, sql)
	if err != nil {
		if c.server.telemetry != nil {
			c.server.telemetry.RecordQuery("SELECT", graphqlMs, time.Since(start).Milliseconds(), graphqlMs+time.Since(start).Milliseconds(), pgerr.AsError(err).Code)
		}
		return "", nil, err
	}
	datafusionMs := time.Since(start).Milliseconds()

	if c.record != nil {
		c.server.sessions.SetTimings(c.record.ConnectionID, graphqlMs, datafusionMs, graphqlMs+datafusionMs)
	}
	if c.server.telemetry != nil {
		c.server.telemetry.RecordQuery("SELECT", graphqlMs, datafusionMs, graphqlMs+datafusionMs, "")
	}

	cols := make([]wire.ColumnDesc, len(result.Columns))
	for i, cd := range result.Columns {
		cols[i] = wire.ColumnDesc{Name: cd.Name, OID: cd.OID}
	}
	return "SELECT", &execResult{Columns: cols, Rows: result.Rows}, nil
}

// handleSimpleQuery implements the Simple Query sub-FSM (spec §4.2, "Q"):
// run the statement, stream RowDescription/DataRow*/CommandComplete (or
// EmptyQueryResponse, or ErrorResponse), then always end with ReadyForQuery.
func (c *conn) handleSimpleQuery(ctx context.Context, sql string) {
	if strings.TrimSpace(sql) == "" {
		_ = c.send(wire.EmptyQueryResponse(), wire.ReadyForQuery())
		return
	}

	if c.record != nil {
		c.server.sessions.StartQuery(c.record.ConnectionID, sql)
	}
	tag, res, err := c.classifyAndRun(ctx, sql)
	if c.record != nil {
		c.server.sessions.EndQuery(c.record.ConnectionID)
	}

	if err != nil {
		c.logger.Warn().Err(err).Str("sql", sql).Msg("query failed")
		_ = c.send(wire.ErrorResponse(err), wire.ReadyForQuery())
		return
	}

	var msgs []pgproto3.BackendMessage
	if res == nil {
		msgs = append(msgs, wire.CommandComplete(tag, 0))
	} else {
		msgs = append(msgs, wire.RowDescriptionFromColumns(res.Columns))
		for _, row := range res.Rows {
			msgs = append(msgs, wire.DataRowFromValues(row))
		}
		msgs = append(msgs, wire.CommandComplete(tag, len(res.Rows)))
	}
	msgs = append(msgs, wire.ReadyForQuery())
	if err := c.send(msgs...); err != nil {
		c.logger.Debug().Err(err).Msg("writing simple query response")
	}
}
