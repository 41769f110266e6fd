package dining

import (
	"context"
	"errors"
)

// ListTablesWithStatus derives occupancy from ACTIVE sessions on every call; nothing is cached.
func (s *Service) ListTablesWithStatus(ctx context.Context) ([]TableWithStatus, error) {
	var out []TableWithStatus
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		tables, err := tx.ListTables(ctx)
		if err != nil {
			return err
		}
		active, err := tx.ListActiveSessions(ctx)
		if err != nil {
			return err
		}
		byTable := make(map[int64]int64, len(active))
		for _, sess := range active {
			byTable[sess.TableID] = sess.ID
		}

		out = make([]TableWithStatus, 0, len(tables))
		for _, t := range tables {
			row := TableWithStatus{Table: t, Occupancy: TableFree}
			if sessionID, ok := byTable[t.ID]; ok {
				row.Occupancy = TableOccupied
				row.ActiveSessionID = int64Ptr(sessionID)
			}
			out = append(out, row)
		}
		return nil
	})
	return out, err
}

func (s *Service) CreateTable(ctx context.Context, number int32) (Table, error) {
	if number < 1 {
		return Table{}, ValidationError("INVALID_TABLE_NUMBER", "Table number must be at least 1")
	}
	table := Table{Number: number}
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertTable(ctx, &table); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return ConflictError("TABLE_EXISTS", "Table number already exists")
			}
			return err
		}
		return nil
	})
	return table, err
}
