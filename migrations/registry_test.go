package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	scoring "github.com/goliatone/go-interview-scoring"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	found := map[string]bool{}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		found[entry.Dialect] = true
	}
	if !found[DialectPostgres] || !found[DialectSQLite] {
		t.Fatalf("expected postgres and sqlite filesystems, got %v", found)
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
	if reg.SourceLabel != "go-interview-scoring" {
		t.Fatalf("unexpected source label %q", reg.SourceLabel)
	}
}

func TestRegister_CustomFilesystemsAndLabel(t *testing.T) {
	extra := fstest.MapFS{
		"00002_extra.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	var labels []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, fsys fs.FS) error {
		if dialect != DialectSQLite {
			t.Fatalf("unexpected dialect %q", dialect)
		}
		if _, err := fs.Stat(fsys, "00002_extra.up.sql"); err != nil {
			t.Fatalf("expected custom filesystem: %v", err)
		}
		labels = append(labels, label)
		return nil
	},
		WithFilesystems(FilesystemSpec{Dialect: " SQLite ", Path: "extra", FS: extra}, FilesystemSpec{Dialect: "", FS: extra}),
		WithDialectSourceLabel("scoring-tests"),
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(labels) != 1 || labels[0] != "scoring-tests" {
		t.Fatalf("expected one registration labelled scoring-tests, got %v", labels)
	}
}

func TestRegister_RequiresFunction(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
		"sqlite3":  DialectSQLite,
		" SQLite ": DialectSQLite,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("memory"); err == nil {
		t.Fatalf("expected memory driver to have no migrations")
	}
}

func TestApply_RegistersOnlyRequestedDialect(t *testing.T) {
	var registered []fs.FS
	migrated := false
	err := Apply(context.Background(), DialectSQLite, func(fsys fs.FS) {
		registered = append(registered, fsys)
	}, func(context.Context) error {
		migrated = true
		return nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(registered) != 1 || !migrated {
		t.Fatalf("expected one registration and a migrate call, got %d registrations migrated=%v", len(registered), migrated)
	}
	if _, err := fs.ReadFile(registered[0], "00001_interview_scoring.up.sql"); err != nil {
		t.Fatalf("expected sqlite schema in registered filesystem: %v", err)
	}

	boom := errors.New("boom")
	err = Apply(context.Background(), DialectSQLite, func(fs.FS) {}, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected migrate error to surface, got %v", err)
	}
}

func TestInterviewScoringMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := scoring.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_interview_scoring.up.sql",
		"data/sql/migrations/00001_interview_scoring.down.sql",
		"data/sql/migrations/sqlite/00001_interview_scoring.up.sql",
		"data/sql/migrations/sqlite/00001_interview_scoring.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteInterviewScoringMigration_EnforcesOneActiveJob(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-active-job?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(scoring.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_interview_scoring.up.sql"); err != nil {
		t.Fatalf("apply up migration: %v", err)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO interview_sessions (id, rubric_id) VALUES (?, ?)`, "sess_1", "rubric_1"); err != nil {
		t.Fatalf("insert session: %v", err)
	}
	insertJob := `INSERT INTO scoring_jobs (id, session_id, status) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertJob, "job_1", "sess_1", "pending"); err != nil {
		t.Fatalf("insert first job: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertJob, "job_2", "sess_1", "processing"); err == nil {
		t.Fatalf("expected second active job to violate the partial unique index")
	}
	if _, err := db.ExecContext(ctx, insertJob, "job_3", "sess_1", "failed"); err != nil {
		t.Fatalf("expected finished job to be allowed alongside the active one: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertJob, "job_4", "missing", "failed"); err == nil {
		t.Fatalf("expected job for unknown session to violate the foreign key")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_interview_scoring.down.sql"); err != nil {
		t.Fatalf("apply down migration: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('interview_sessions', 'scoring_jobs', 'interview_scores')`,
	).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected down migration to drop all tables, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
