package db

import (
	"path/filepath"
	"testing"

	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/daryaKuto/glowrange/internal/models"
)

func TestDSN(t *testing.T) {
	cfg := config.DBConfig{User: "root", Host: "127.0.0.1", Port: 3306, Database: "glowrange"}
	want := "root@tcp(127.0.0.1:3306)/glowrange?parseTime=true"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestDSN_WithPassword(t *testing.T) {
	cfg := config.DBConfig{User: "glow", Password: "pw", Host: "db", Port: 3307, Database: "range"}
	want := "glow:pw@tcp(db:3307)/range?parseTime=true"
	if got := DSN(cfg); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect(config.DBConfig{Driver: "postgres"})
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestConnect_SQLiteCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	gdb, err := Connect(config.DBConfig{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
}

func TestAutoMigrate_InMemory(t *testing.T) {
	gdb, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	rec := models.SessionRecord{GameID: "GM-1"}
	if err := gdb.Create(&rec).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var count int64
	gdb.Model(&models.SessionRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
