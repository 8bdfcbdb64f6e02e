package postgres

import (
	"strings"
	"testing"

	"github.com/trade-hub/trade-hub/internal/infrastructure/postgres/migrations"
)

func TestUpSection(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	got := strings.TrimSpace(upSection(content))
	if got != "CREATE TABLE a (id INT);" {
		t.Fatalf("unexpected up section %q", got)
	}
	if upSection("SELECT 1;") != "SELECT 1;" {
		t.Fatal("expected content without markers to be returned as is")
	}
}

func TestEmbeddedMigrationsHaveUpSections(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, e := range entries {
		data, err := migrations.FS.ReadFile(e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		up := upSection(string(data))
		if strings.Contains(up, "DROP TABLE") {
			t.Fatalf("%s: up section contains down statements", e.Name())
		}
		if !strings.Contains(up, "CREATE TABLE") {
			t.Fatalf("%s: up section creates nothing", e.Name())
		}
	}
}
