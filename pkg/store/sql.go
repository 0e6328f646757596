// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/abcxyz/directory-sync/pkg/dirsync"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Ensure we conform to the interface.
var _ dirsync.MembershipStore = (*SQLStore)(nil)

// memberRecord is one row of the snapshot: one user in one group of one
// directory.
type memberRecord struct {
	bun.BaseModel `bun:"table:directory_group_members,alias:dgm"`

	DirectoryID string `bun:"directory_id,pk"`
	GroupID     string `bun:"group_id,pk"`
	UserID      string `bun:"user_id,pk"`
}

// SQLStore keeps the snapshot in a SQL database through bun.
type SQLStore struct {
	db *bun.DB
}

// NewSQLStore creates a SQLStore on an existing bun database.
func NewSQLStore(db *bun.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("bun db is required")
	}
	return &SQLStore{db: db}, nil
}

// Open connects to the database with the given driver and DSN. Supported
// drivers are DriverSQLite and DriverPostgres.
func Open(driver, dsn string) (*SQLStore, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	var db *bun.DB
	switch driver {
	case DriverSQLite:
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		db = bun.NewDB(sqlDB, sqlitedialect.New())
	case DriverPostgres:
		db = bun.NewDB(sqlDB, pgdialect.New())
	default:
		_ = sqlDB.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	return NewSQLStore(db)
}

// DB returns the underlying database.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateSchema creates the snapshot table and its lookup index if they do not
// exist.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*memberRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create members table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*memberRecord)(nil)).
		Index("directory_group_members_directory_idx").
		Column("directory_id", "group_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create members index: %w", err)
	}
	return nil
}

// Members returns the stored member IDs of a group.
func (s *SQLStore) Members(ctx context.Context, directoryID, groupID string) (dirsync.MemberIDSet, error) {
	var ids []string
	if err := s.db.NewSelect().
		Model((*memberRecord)(nil)).
		Column("user_id").
		Where("?TableAlias.directory_id = ?", directoryID).
		Where("?TableAlias.group_id = ?", groupID).
		Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("failed to select members of group %s: %w", groupID, err)
	}
	return dirsync.NewMemberIDSet(ids...), nil
}

// SetMembers replaces the stored member IDs of a group in one transaction.
func (s *SQLStore) SetMembers(ctx context.Context, directoryID, groupID string, ids dirsync.MemberIDSet) error {
	records := make([]*memberRecord, 0, len(ids))
	for _, id := range ids.Sorted() {
		records = append(records, &memberRecord{
			DirectoryID: directoryID,
			GroupID:     groupID,
			UserID:      id,
		})
	}

	if err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*memberRecord)(nil)).
			Where("directory_id = ?", directoryID).
			Where("group_id = ?", groupID).
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to delete members: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&records).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert members: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to store members of group %s: %w", groupID, err)
	}
	return nil
}

// Groups returns the sorted IDs of groups with stored members.
func (s *SQLStore) Groups(ctx context.Context, directoryID string) ([]string, error) {
	groups := make([]string, 0)
	if err := s.db.NewSelect().
		Model((*memberRecord)(nil)).
		ColumnExpr("DISTINCT ?TableAlias.group_id").
		Where("?TableAlias.directory_id = ?", directoryID).
		OrderExpr("?TableAlias.group_id ASC").
		Scan(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to select groups of directory %s: %w", directoryID, err)
	}
	return groups, nil
}
