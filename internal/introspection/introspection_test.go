package introspection

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"salesql/internal/sqltype"
)

func TestTableExists(t *testing.T) {
	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		expected    bool
		expectError bool
	}{
		{
			name: "table present",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.tables").
					WithArgs("public", "tbl_primary").
					WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
			},
			expected: true,
		},
		{
			name: "table missing",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.tables").
					WithArgs("public", "tbl_primary").
					WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
			},
			expected: false,
		},
		{
			name: "catalog failure",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("FROM information_schema.tables").
					WillReturnError(sql.ErrConnDone)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock db: %v", err)
			}
			defer db.Close()

			tt.setupMock(mock)

			got, err := New(db, "").TableExists(context.Background(), "tbl_primary")
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.expected {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestColumns_OrderedAndClassified(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("sales", "tbl_primary").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "ordinal_position"}).
			AddRow("distributor_name", "character varying", 1).
			AddRow("sales_order_date", "date", 2).
			AddRow("invoiced_total_quantity", "numeric", 3))

	cols, err := New(db, "sales").Columns(context.Background(), "tbl_primary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	if cols[0].Name != "distributor_name" || cols[0].Category != sqltype.Text {
		t.Errorf("unexpected first column: %+v", cols[0])
	}
	if !cols[1].IsTemporal() {
		t.Errorf("expected sales_order_date to be temporal, got %s", cols[1].Category)
	}
	if !cols[2].IsNumeric() {
		t.Errorf("expected invoiced_total_quantity to be numeric, got %s", cols[2].Category)
	}
}

func TestColumns_MissingTableIsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "ordinal_position"}))

	cols, err := New(db, "").Columns(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cols == nil || len(cols) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", cols)
	}
}

func TestSnapshot_SkipsMissingTablesAndLoadsForeignKeys(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "tbl_primary").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "ordinal_position"}).
			AddRow("product_id", "integer", 1).
			AddRow("invoice_value", "numeric", 2))
	mock.ExpectQuery("FOREIGN KEY").
		WithArgs("public", "tbl_primary").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name", "constraint_name", "ordinal_position"}).
			AddRow("product_id", "tbl_product_master", "product_id", "fk_primary_product", 1))
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "tbl_shipment").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "ordinal_position"}))
	mock.ExpectQuery("FROM information_schema.columns").
		WithArgs("public", "tbl_product_master").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "ordinal_position"}).
			AddRow("product_id", "integer", 1).
			AddRow("product_name", "text", 2))
	mock.ExpectQuery("FOREIGN KEY").
		WithArgs("public", "tbl_product_master").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "table_name", "column_name", "constraint_name", "ordinal_position"}))

	snap, err := New(db, "").Snapshot(context.Background(), []string{"tbl_primary", "tbl_shipment", "tbl_primary", "tbl_product_master"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := snap.TableNames(); len(got) != 2 || got[0] != "tbl_primary" || got[1] != "tbl_product_master" {
		t.Fatalf("unexpected tables: %v", got)
	}
	if snap.HasTable("tbl_shipment") {
		t.Error("missing table should not appear in snapshot")
	}

	factCol, dimCol, ok := snap.DirectJoin("tbl_primary", "tbl_product_master")
	if !ok || factCol != "product_id" || dimCol != "product_id" {
		t.Errorf("expected product_id join from foreign key, got %q %q %v", factCol, dimCol, ok)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("table_type IN").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("tbl_primary").AddRow("tbl_shipment"))

	tables, err := New(db, "").ListTables(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tables) != 2 || tables[0] != "tbl_primary" {
		t.Errorf("unexpected tables: %v", tables)
	}
}

func TestSnapshotRetain_DropsEdges(t *testing.T) {
	snap := NewSnapshot("public",
		Table{Name: "tbl_primary", Columns: []Column{{Name: "product_id"}}, ForeignKeys: []ForeignKey{
			{ColumnName: "product_id", ReferencedTable: "tbl_product_master", ReferencedColumn: "product_id", ConstraintName: "fk"},
		}},
		Table{Name: "tbl_product_master", Columns: []Column{{Name: "product_id"}}},
	)
	if len(snap.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(snap.Edges))
	}

	snap.Retain(func(table string) bool { return table != "tbl_product_master" })
	if snap.HasTable("tbl_product_master") {
		t.Error("expected product master to be dropped")
	}
	if len(snap.Edges) != 0 {
		t.Errorf("expected dangling edge to be dropped, got %v", snap.Edges)
	}
}

func TestTableHelpers(t *testing.T) {
	table := &Table{Name: "tbl_primary", Columns: []Column{{Name: "bill_date"}, {Name: "sales_order_date"}}}

	first, ok := table.FirstPresent("invoice_date", "sales_order_date", "bill_date")
	if !ok || first != "sales_order_date" {
		t.Errorf("expected sales_order_date, got %q", first)
	}
	if _, ok := table.FirstPresent("nope"); ok {
		t.Error("expected no match")
	}
	if got := table.AllPresent("bill_date", "nope", "sales_order_date"); len(got) != 2 || got[0] != "bill_date" {
		t.Errorf("unexpected AllPresent result: %v", got)
	}
	var nilTable *Table
	if nilTable.HasColumn("x") {
		t.Error("nil table should have no columns")
	}
}
