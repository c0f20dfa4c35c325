package core

// structure.go implements the structural gate run before any transformation.
//
// The check is all-or-nothing: a table with missing required columns or no
// rows has no defined meaning downstream, so the run halts. Column names
// are compared through a locally normalized copy (trimmed, lower-cased);
// the caller's table is never modified.

// StructureReport describes a table that passed the structural check.
type StructureReport struct {
	Rows int

	// DuplicateIDs counts rows whose transaction id repeats an earlier row.
	// Duplicates are not a structural failure; the last occurrence wins
	// when rows are upserted.
	DuplicateIDs int
}

// ValidateStructure checks table's column set and row count against c.
// It returns a *StructuralError naming every missing column.
func ValidateStructure(table RawTable, c *Contract) (StructureReport, error) {
	idx := MakeHeaderIndex(table.Columns)

	var missing []string
	for _, col := range c.RequiredColumns {
		if _, ok := idx[NormalizeColumn(col)]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 || len(table.Rows) == 0 {
		return StructureReport{}, &StructuralError{
			Missing: missing,
			NoRows:  len(table.Rows) == 0,
		}
	}

	return StructureReport{
		Rows:         len(table.Rows),
		DuplicateIDs: countDuplicateIDs(table, idx),
	}, nil
}

func countDuplicateIDs(table RawTable, idx HeaderIndex) int {
	pos, ok := idx[ColTransactionID]
	if !ok {
		return 0
	}

	seen := make(map[string]struct{}, len(table.Rows))
	dups := 0
	for _, row := range table.Rows {
		id := normalizeID(row.Cell(pos))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			dups++
			continue
		}
		seen[id] = struct{}{}
	}
	return dups
}
