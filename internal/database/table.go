package database

import (
	"fmt"
	"regexp"
	"strings"

	"chunkdb/internal/chunk"
	"chunkdb/internal/model"
)

// Dialect captures the SQL differences between the supported engines.
type Dialect struct {
	Name     string
	KeyType  string
	TextType string
	TimeType string
	IntType  string
	BlobType string
}

var (
	// SQLite is the dialect of github.com/mattn/go-sqlite3.
	SQLite = Dialect{
		Name:     "sqlite3",
		KeyType:  "TEXT",
		TextType: "TEXT",
		TimeType: "DATETIME",
		IntType:  "INTEGER",
		BlobType: "BLOB",
	}

	// MySQL is the dialect of github.com/go-sql-driver/mysql.
	MySQL = Dialect{
		Name:     "mysql",
		KeyType:  "VARCHAR(64)",
		TextType: "VARCHAR(1024)",
		TimeType: "DATETIME(6)",
		IntType:  "BIGINT",
		BlobType: "LONGBLOB",
	}
)

// DefaultTableName is the chunk table created by the embedded migrations.
const DefaultTableName = "file_chunks"

// Column maps an extra field of a row type to a table column.
type Column[T chunk.Entity] struct {
	Name   string
	Type   string         // SQL type used by CreateTable
	Value  func(row T) any // value to insert
	Target func(row T) any // pointer to scan into
}

// Table describes a chunk table: its name, how to make an empty row, and any
// columns the row type carries beyond the chunk fields.
type Table[T chunk.Entity] struct {
	Name    string
	New     func() T
	Columns []Column[T]
}

// DefaultTable is the migrated file_chunks table holding plain chunk rows.
func DefaultTable() Table[*model.ChunkRow] {
	return Table[*model.ChunkRow]{Name: DefaultTableName, New: model.NewChunkRow}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t Table[T]) validate() error {
	if !identifierPattern.MatchString(t.Name) {
		return fmt.Errorf("invalid table name: %q", t.Name)
	}
	if t.New == nil {
		return fmt.Errorf("table %s has no row factory", t.Name)
	}
	for _, c := range t.Columns {
		if !identifierPattern.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q in table %s", c.Name, t.Name)
		}
		if c.Value == nil || c.Target == nil {
			return fmt.Errorf("column %s of table %s needs Value and Target", c.Name, t.Name)
		}
	}
	return nil
}

// baseColumns are the chunk fields, in the order used by every query.
var baseColumns = []string{
	"id", "file_id", "name", "mime_type", "time_stamp", "next_id",
	"start_offset", "chunk_bytes_length", "total_bytes_length", "data", "hash",
}

// infoColumns is the projection used for metadata lookups.
const infoColumns = "id, name, mime_type, time_stamp, total_bytes_length"

func (t Table[T]) columnNames() []string {
	names := append([]string{}, baseColumns...)
	for _, c := range t.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (t Table[T]) selectList() string {
	return strings.Join(t.columnNames(), ", ")
}

func (t Table[T]) insertSQL() string {
	names := t.columnNames()
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(names, ", "), marks)
}

func (t Table[T]) createSQL(d Dialect) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	fmt.Fprintf(&b, "\tid %s NOT NULL PRIMARY KEY,\n", d.KeyType)
	fmt.Fprintf(&b, "\tfile_id %s NOT NULL,\n", d.KeyType)
	fmt.Fprintf(&b, "\tname %s NOT NULL,\n", d.TextType)
	fmt.Fprintf(&b, "\tmime_type %s NOT NULL,\n", d.TextType)
	fmt.Fprintf(&b, "\ttime_stamp %s NOT NULL,\n", d.TimeType)
	fmt.Fprintf(&b, "\tnext_id %s NULL,\n", d.KeyType)
	fmt.Fprintf(&b, "\tstart_offset %s NOT NULL DEFAULT 0,\n", d.IntType)
	fmt.Fprintf(&b, "\tchunk_bytes_length %s NOT NULL,\n", d.IntType)
	fmt.Fprintf(&b, "\ttotal_bytes_length %s NOT NULL,\n", d.IntType)
	fmt.Fprintf(&b, "\tdata %s NOT NULL,\n", d.BlobType)
	fmt.Fprintf(&b, "\thash %s NULL", d.TextType)
	for _, c := range t.Columns {
		fmt.Fprintf(&b, ",\n\t%s %s", c.Name, c.Type)
	}

	index := fmt.Sprintf("idx_%s_file_id", t.Name)
	if d.Name == MySQL.Name {
		// MySQL has no CREATE INDEX IF NOT EXISTS.
		fmt.Fprintf(&b, ",\n\tINDEX %s (file_id)\n)", index)
		return []string{b.String()}
	}
	b.WriteString("\n)")
	return []string{
		b.String(),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (file_id)", index, t.Name),
	}
}
