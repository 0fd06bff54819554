package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"testing"
)

var migrationName = regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)

func readMigrationsDir(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join("..", "..", "db", "migrations"))
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	return entries
}

func TestEveryMigrationHasUpAndDown(t *testing.T) {
	directions := map[string]map[string]bool{}
	for _, entry := range readMigrationsDir(t) {
		if entry.IsDir() {
			continue
		}
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Errorf("migration file %q does not match NNNN_name.{up,down}.sql", entry.Name())
			continue
		}
		version, direction := match[1], match[2]
		if directions[version] == nil {
			directions[version] = map[string]bool{}
		}
		if directions[version][direction] {
			t.Errorf("version %s has more than one %s file", version, direction)
		}
		directions[version][direction] = true
	}
	if len(directions) == 0 {
		t.Fatal("no migrations found")
	}
	for version, dirs := range directions {
		if !dirs["up"] || !dirs["down"] {
			t.Errorf("version %s is missing its up or down file", version)
		}
	}
}

func TestMigrationVersionsAreSequential(t *testing.T) {
	seen := map[string]bool{}
	for _, entry := range readMigrationsDir(t) {
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil || match[2] != "up" {
			continue
		}
		seen[match[1]] = true
	}

	versions := make([]string, 0, len(seen))
	for version := range seen {
		versions = append(versions, version)
	}
	sort.Strings(versions)
	for i, version := range versions {
		want := fmt.Sprintf("%04d", i+1)
		if version != want {
			t.Fatalf("expected version %s at index %d, got %s", want, i, version)
		}
	}
}

func TestInitMigrationCreatesCoreTables(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "db", "migrations", "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	sql := string(raw)
	for _, table := range []string{"users", "boards", "board_members", "lists", "tasks", "task_assignees", "activities"} {
		if !strings.Contains(sql, "CREATE TABLE "+table+" (") {
			t.Errorf("init migration does not create table %s", table)
		}
	}
}
