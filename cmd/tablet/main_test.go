package main

import (
	"testing"

	"github.com/dreamware/vshard/internal/storage/pgadapter"
	"github.com/dreamware/vshard/internal/storage/sqliteadapter"
)

func TestBuildAdapterSQLite(t *testing.T) {
	adapter, err := buildAdapter(&tabletFlags{dialect: "sqlite", url: "file::memory:"})
	if err != nil {
		t.Fatalf("buildAdapter: %v", err)
	}
	if _, ok := adapter.(*sqliteadapter.Adapter); !ok {
		t.Fatalf("expected *sqliteadapter.Adapter, got %T", adapter)
	}
}

func TestBuildAdapterDefaultsToSQLite(t *testing.T) {
	adapter, err := buildAdapter(&tabletFlags{url: "file::memory:"})
	if err != nil {
		t.Fatalf("buildAdapter: %v", err)
	}
	if _, ok := adapter.(*sqliteadapter.Adapter); !ok {
		t.Fatalf("expected *sqliteadapter.Adapter, got %T", adapter)
	}
}

func TestBuildAdapterPostgres(t *testing.T) {
	adapter, err := buildAdapter(&tabletFlags{dialect: "postgres", pgHost: "localhost", pgPort: 5432, pgDatabase: "vshard", pgUser: "vshard"})
	if err != nil {
		t.Fatalf("buildAdapter: %v", err)
	}
	if _, ok := adapter.(*pgadapter.Adapter); !ok {
		t.Fatalf("expected *pgadapter.Adapter, got %T", adapter)
	}
}

func TestBuildAdapterRejectsUnknownDialect(t *testing.T) {
	if _, err := buildAdapter(&tabletFlags{dialect: "oracle"}); err == nil {
		t.Fatal("expected an error for an unsupported dialect")
	}
}
