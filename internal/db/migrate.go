package db

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type migrationFile struct {
	name string
	data []byte
}

// RunMigrations executes migrations from the given directory, falling back to
// the embedded files when dir is empty. Statements are idempotent, so rerunning
// on an existing database is safe.
func RunMigrations(db *sqlx.DB, migrationsDir string) error {
	files, err := loadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	for _, mf := range files {
		if len(mf.data) == 0 {
			continue
		}
		if _, err := db.Exec(string(mf.data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", mf.name, err)
		}
	}
	return nil
}

func loadMigrations(dir string) ([]migrationFile, error) {
	var files []migrationFile
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read migrations dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
			}
			files = append(files, migrationFile{name: e.Name(), data: data})
		}
	} else {
		entries, err := embeddedMigrations.ReadDir("migrations")
		if err != nil {
			return nil, fmt.Errorf("read embedded migrations: %w", err)
		}
		for _, e := range entries {
			data, err := embeddedMigrations.ReadFile("migrations/" + e.Name())
			if err != nil {
				return nil, fmt.Errorf("read embedded migration %s: %w", e.Name(), err)
			}
			files = append(files, migrationFile{name: e.Name(), data: data})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}
