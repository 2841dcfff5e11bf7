// Package wire is the PostgreSQL v3 wire-protocol codec (spec §4.1): it
// turns QueryResult / error values into the pgproto3 message sequences a
// client driver expects, and is the one place that knows about
// RowDescription/DataRow/CommandComplete/ErrorResponse framing.
package wire

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/pgerr"
)

// TxStatus is the byte ReadyForQuery reports; the gateway never opens real
// transactions, so it is always idle (spec §4.2, "no transaction support").
const TxStatus = byte('I')

// RowDescription builds a RowDescription message for a schema's selectable
// columns, in text format (spec §4.1, minimum OID set).
func RowDescription(schema columnar.Schema) *pgproto3.RowDescription {
	sel := schema.Selectable()
	fields := make([]pgproto3.FieldDescription, len(sel))
	for i, c := range sel {
		fields[i] = pgproto3.FieldDescription{
			Name:                 []byte(c.Name),
			TableOID:             0,
			TableAttributeNumber: uint16(i + 1),
			DataTypeOID:          c.Type.OID(),
			DataTypeSize:         c.Type.Size(),
			TypeModifier:         -1,
			Format:               0,
		}
	}
	return &pgproto3.RowDescription{Fields: fields}
}

// DataRow encodes one row of values in the order given by schema.Selectable().
func DataRow(schema columnar.Schema, row map[string]columnar.Value) *pgproto3.DataRow {
	sel := schema.Selectable()
	values := make([][]byte, len(sel))
	for i, c := range sel {
		v := row[c.Name]
		if v.Kind == columnar.Null {
			values[i] = nil
			continue
		}
		values[i] = []byte(v.String())
	}
	return &pgproto3.DataRow{Values: values}
}

// ColumnDesc is a minimal (name, type OID) pair used to build a
// RowDescription for a result set that didn't come from a fixed
// columnar.Schema — e.g. the embedded engine's query output, whose column
// list depends on the client's own SELECT list and any aggregates in it.
type ColumnDesc struct {
	Name string
	OID  uint32
}

// RowDescriptionFromColumns builds a RowDescription for an arbitrary engine
// result set (spec §4.6): every field is reported in text format with the
// type's natural size, and no table/attribute association since these
// columns may be computed expressions with no backing column.
func RowDescriptionFromColumns(cols []ColumnDesc) *pgproto3.RowDescription {
	fields := make([]pgproto3.FieldDescription, len(cols))
	for i, c := range cols {
		fields[i] = pgproto3.FieldDescription{
			Name:         []byte(c.Name),
			DataTypeOID:  c.OID,
			DataTypeSize: oidSize(c.OID),
			TypeModifier: -1,
			Format:       0,
		}
	}
	return &pgproto3.RowDescription{Fields: fields}
}

// DataRowFromValues encodes one engine result row, given in the same
// positional order as RowDescriptionFromColumns.
func DataRowFromValues(values []columnar.Value) *pgproto3.DataRow {
	out := make([][]byte, len(values))
	for i, v := range values {
		if v.Kind == columnar.Null {
			out[i] = nil
			continue
		}
		out[i] = []byte(v.String())
	}
	return &pgproto3.DataRow{Values: out}
}

func oidSize(oid uint32) int16 {
	switch oid {
	case 16:
		return 1
	case 21:
		return 2
	case 23:
		return 4
	case 20, 701, 1114:
		return 8
	case 700:
		return 4
	default:
		return -1
	}
}

// CommandComplete builds the command tag for a completed statement: "SELECT n"
// carries the row count, every other tag (SET, BEGIN, SHOW, ...) is sent bare.
func CommandComplete(tag string, rows int) *pgproto3.CommandComplete {
	if tag != "SELECT" {
		return &pgproto3.CommandComplete{CommandTag: []byte(tag)}
	}
	return &pgproto3.CommandComplete{CommandTag: []byte(fmt.Sprintf("%s %d", tag, rows))}
}

// ReadyForQuery reports idle transaction status; the gateway has no
// transaction block concept (spec Non-goals).
func ReadyForQuery() *pgproto3.ReadyForQuery {
	return &pgproto3.ReadyForQuery{TxStatus: TxStatus}
}

// ErrorResponse translates a pgerr.Error (or a generic error, mapped to
// internal_error) into the wire ErrorResponse shape (spec §7).
func ErrorResponse(err error) *pgproto3.ErrorResponse {
	pe := pgerr.AsError(err)
	return &pgproto3.ErrorResponse{
		Severity: pe.Severity,
		Code:     pe.Code,
		Message:  pe.Message,
		Detail:   pe.Detail,
	}
}

// NoticeResponse is used for non-fatal warnings, e.g. a truncated result set.
func NoticeResponse(severity, message string) *pgproto3.NoticeResponse {
	return &pgproto3.NoticeResponse{Severity: severity, Message: message}
}

// AuthenticationOk signals successful authentication.
func AuthenticationOk() *pgproto3.AuthenticationOk {
	return &pgproto3.AuthenticationOk{}
}

// ParameterStatus reports a server parameter, including the harmless
// server_keepalive probe used by the keep-alive scheduler (spec §4.9).
func ParameterStatus(name, value string) *pgproto3.ParameterStatus {
	return &pgproto3.ParameterStatus{Name: name, Value: value}
}

// BackendKeyData carries the process/secret pair used for CancelRequest.
func BackendKeyData(pid, secret uint32) *pgproto3.BackendKeyData {
	return &pgproto3.BackendKeyData{ProcessID: pid, SecretKey: secret}
}

// StartupParameters is the fixed set of ParameterStatus messages sent right
// after authentication succeeds, matching what real PostgreSQL sends so
// drivers that inspect server_version/client_encoding behave normally.
func StartupParameters(serverVersion string) []*pgproto3.ParameterStatus {
	return []*pgproto3.ParameterStatus{
		ParameterStatus("server_version", serverVersion),
		ParameterStatus("server_encoding", "UTF8"),
		ParameterStatus("client_encoding", "UTF8"),
		ParameterStatus("DateStyle", "ISO, MDY"),
		ParameterStatus("TimeZone", "UTC"),
		ParameterStatus("integer_datetimes", "on"),
	}
}

// EmptyQueryResponse is sent for a zero-length Simple Query string.
func EmptyQueryResponse() *pgproto3.EmptyQueryResponse {
	return &pgproto3.EmptyQueryResponse{}
}

// ParseComplete / BindComplete / NoData / ParameterDescription /
// PortalSuspended / CloseComplete are the remaining Extended Query
// protocol acknowledgements (spec §4.2).
func ParseComplete() *pgproto3.ParseComplete   { return &pgproto3.ParseComplete{} }
func BindComplete() *pgproto3.BindComplete     { return &pgproto3.BindComplete{} }
func NoData() *pgproto3.NoData                 { return &pgproto3.NoData{} }
func CloseComplete() *pgproto3.CloseComplete   { return &pgproto3.CloseComplete{} }
func PortalSuspended() *pgproto3.PortalSuspended { return &pgproto3.PortalSuspended{} }

// ParameterDescription reports the OIDs of a prepared statement's
// placeholders; the gateway's dialect never infers placeholder types beyond
// "unknown", so every entry is 0 (spec §4.2, DescribeStatement).
func ParameterDescription(n int) *pgproto3.ParameterDescription {
	oids := make([]uint32, n)
	return &pgproto3.ParameterDescription{ParameterOIDs: oids}
}
