package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// MariaCatalog реализует CatalogRepo для базы данных MariaDB/MySQL.
// Использует таблицу capture_catalog.
type MariaCatalog struct {
	db *sql.DB
}

// NewMariaCatalog подключается к базе и создает таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaCatalog(dsn string) (*MariaCatalog, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("некорректный DSN MariaDB: %w", err)
	}
	// DATETIME сканируется в time.Time только с parseTime
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaCatalog{db: db}
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

func (r *MariaCatalog) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS capture_catalog (
			id          CHAR(36)      PRIMARY KEY,
			name        VARCHAR(255)  NOT NULL,
			path        VARCHAR(1024) NOT NULL,
			mode        VARCHAR(16)   NOT NULL,
			world_hash  VARCHAR(64)   NOT NULL,
			bytes       BIGINT        NOT NULL,
			packets     BIGINT        NOT NULL,
			started_at  DATETIME(6)   NOT NULL,
			finished_at DATETIME(6)   NOT NULL,
			INDEX idx_name (name),
			INDEX idx_finished_at (finished_at)
		) ENGINE=InnoDB
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы capture_catalog: %w", err)
	}
	return nil
}

const catalogColumns = `id, name, path, mode, world_hash, bytes, packets, started_at, finished_at`

// Save использует INSERT ... ON DUPLICATE KEY UPDATE для обновления существующих записей.
func (r *MariaCatalog) Save(ctx context.Context, rec *CaptureRecord) error {
	if err := prepare(rec); err != nil {
		return err
	}

	query := `
		INSERT INTO capture_catalog (` + catalogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			path = VALUES(path),
			mode = VALUES(mode),
			world_hash = VALUES(world_hash),
			bytes = VALUES(bytes),
			packets = VALUES(packets),
			started_at = VALUES(started_at),
			finished_at = VALUES(finished_at)
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.Name, rec.Path, rec.Mode, rec.WorldHash,
		rec.Bytes, rec.Packets, rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения записи %s: %w", rec.ID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*CaptureRecord, error) {
	var rec CaptureRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.Path, &rec.Mode, &rec.WorldHash,
		&rec.Bytes, &rec.Packets, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *MariaCatalog) queryOne(ctx context.Context, where string, arg any) (*CaptureRecord, error) {
	query := `SELECT ` + catalogColumns + ` FROM capture_catalog WHERE ` + where + ` ORDER BY finished_at DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки записи каталога: %w", err)
	}
	return rec, nil
}

func (r *MariaCatalog) Get(ctx context.Context, id string) (*CaptureRecord, error) {
	return r.queryOne(ctx, "id = ?", id)
}

func (r *MariaCatalog) FindByName(ctx context.Context, name string) (*CaptureRecord, error) {
	return r.queryOne(ctx, "name = ?", name)
}

func (r *MariaCatalog) List(ctx context.Context) ([]*CaptureRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+catalogColumns+` FROM capture_catalog ORDER BY finished_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения каталога: %w", err)
	}
	defer rows.Close()

	var out []*CaptureRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка разбора строки каталога: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *MariaCatalog) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM capture_catalog WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaCatalog) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
