package odx

// TableRow is one case of a table: a key value and the sub-structure
// (or plain DOP) that occupies the payload when the key is selected.
type TableRow struct {
	ShortName string
	Key       any
	// Exactly one of Structure and DOP is set.
	Structure *Structure
	DOP       *DataObjectProperty
}

// Table maps key values to rows. The key is coded through KeyDOP by a
// table-key parameter; the selected row's structure is coded by a
// table-struct parameter.
type Table struct {
	ShortName string
	KeyDOP    *DataObjectProperty
	Rows      []*TableRow
	// DefaultRow, when set, is selected for key values matching no row.
	DefaultRow *TableRow
}

// RowByKey returns the row whose key equals v, or the default row, or
// nil.
func (t *Table) RowByKey(v any) *TableRow {
	for _, r := range t.Rows {
		if physicalEqual(r.Key, v) {
			return r
		}
	}
	return t.DefaultRow
}

// RowByName returns the row with the given short name, or nil.
func (t *Table) RowByName(name string) *TableRow {
	for _, r := range t.Rows {
		if r.ShortName == name {
			return r
		}
	}
	return nil
}
