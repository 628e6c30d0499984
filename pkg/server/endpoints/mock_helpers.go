package endpoints

import (
	"database/sql"
	"io"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/charmbracelet/log"

	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/metrics"
	"github.com/doodlesbykumbi/opsagent/pkg/server"
	gormstore "github.com/doodlesbykumbi/opsagent/pkg/server/store/gorm"
)

// MockDB wraps sqlmock for easier test setup
type MockDB struct {
	DB     *sql.DB
	Mock   sqlmock.Sqlmock
	GormDB *gorm.DB
}

// NewMockDB creates a new mock database connection
func NewMockDB() (*MockDB, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 db,
			PreferSimpleProtocol: true,
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &MockDB{
		DB:     db,
		Mock:   mock,
		GormDB: gormDB,
	}, nil
}

// Close closes the mock database
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectHealthCheck sets up expectation for the connectivity probe
func (m *MockDB) ExpectHealthCheck(err error) {
	exp := m.Mock.ExpectExec(`SELECT 1`)
	if err != nil {
		exp.WillReturnError(err)
		return
	}
	exp.WillReturnResult(sqlmock.NewResult(0, 0))
}

// NewMockTestServer creates a server backed by GORM stores over a mocked
// database. Agent is left for the caller to set.
func NewMockTestServer(cfg *config.Config, agent server.Agent) (*server.Server, *MockDB, error) {
	mockDB, err := NewMockDB()
	if err != nil {
		return nil, nil, err
	}

	s, err := server.NewServer(
		cfg,
		agent,
		gormstore.NewSessionStore(mockDB.GormDB),
		gormstore.NewHealthStore(mockDB.GormDB),
		metrics.New(),
		log.New(io.Discard),
	)
	if err != nil {
		_ = mockDB.Close()
		return nil, nil, err
	}
	return s, mockDB, nil
}
