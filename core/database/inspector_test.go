package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestGetTableColumnsMySQL(t *testing.T) {
	db, mock := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
		AddRow("External_ID", "VARCHAR(64)", "NO", "UNI", nil, "").
		AddRow("amount", "DECIMAL(12,2)", "NO", "", nil, "")

	mock.ExpectQuery("SHOW COLUMNS FROM `transfers`").WillReturnRows(rows)

	columns, err := GetTableColumns(db, "transfers")
	require.NoError(t, err)
	require.Len(t, columns, 2)

	// Field and type names are normalized to lower case.
	assert.Equal(t, "external_id", columns[0].Field)
	assert.Equal(t, "varchar(64)", columns[0].Type)
	assert.Equal(t, "decimal(12,2)", columns[1].Type)
}

func TestGetTableColumnsQueryError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("SHOW COLUMNS FROM `missing`").
		WillReturnError(assert.AnError)

	_, err := GetTableColumns(db, "missing")
	assert.Error(t, err)
}
