package mysql

import (
	"cmp"
	"context"
	"database/sql"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"SwarmFlow/deploy/migrations"
	xerrors "SwarmFlow/internal/errors"
)

var embeddedMigrations fs.FS = migrations.Files

const (
	createSchemaMigrationsSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`
	selectAppliedSQL   = `SELECT version FROM schema_migrations`
	insertAppliedSQL   = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
	migrationFilesGlob = "*.sql"
)

// migration 是一个嵌入的 SQL 文件，按版本号顺序执行，每个文件一个事务。
type migration struct {
	version    string
	file       string
	statements []string
}

func (a *EventArchive) runMigrations(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, createSchemaMigrationsSQL); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 schema_migrations 表失败")
	}
	applied, err := appliedVersions(ctx, a.db)
	if err != nil {
		return err
	}
	all, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return err
	}
	for _, m := range all {
		if applied[m.version] {
			continue
		}
		if err := applyMigration(ctx, a.db, m); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, selectAppliedSQL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询已执行的迁移失败")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析迁移版本失败")
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历迁移版本失败")
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "开启迁移事务失败")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移失败", xerrors.WithMetadata("migration", m.file))
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedSQL, m.version, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "记录迁移版本失败", xerrors.WithMetadata("migration", m.file))
	}
	if err = tx.Commit(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "提交迁移事务失败")
	}
	return nil
}

// loadMigrations 读取全部 .sql 文件，空文件忽略。
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationFilesGlob)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "列出迁移文件失败")
	}
	out := make([]migration, 0, len(files))
	for _, file := range files {
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移文件失败", xerrors.WithMetadata("migration", file))
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		out = append(out, migration{version: migrationVersion(file), file: file, statements: statements})
	}
	slices.SortFunc(out, func(a, b migration) int {
		return cmp.Or(cmp.Compare(a.version, b.version), cmp.Compare(a.file, b.file))
	})
	return out, nil
}

// splitSQLStatements 按分号切分语句并去掉整行 "--" 注释。
func splitSQLStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	var statements []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			statements = append(statements, s)
		}
	}
	return statements
}

// migrationVersion 取文件名中第一个下划线之前的部分，例如 0001_create_events.sql 为 0001。
func migrationVersion(file string) string {
	base := strings.TrimSuffix(file, path.Ext(file))
	version, _, _ := strings.Cut(base, "_")
	return version
}
