package library

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	UpsertMedia(ctx context.Context, m *Media) (*Media, error)
	GetMedia(ctx context.Context, id string) (*Media, error)
	GetMediaByPath(ctx context.Context, path string) (*Media, error)
	ListMedia(ctx context.Context, kind MediaKind) ([]*Media, error)
	CountMedia(ctx context.Context) (int, error)

	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, jobType string, limit int) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg, output string) error
	UpdateJobProgress(ctx context.Context, id string, progress int) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const mediaColumns = `id, kind, path, filename, size, mtime, fingerprint, duration, width, height, video_codec, audio_codec, created_at`

// UpsertMedia inserts m or refreshes the row already stored for its path.
// The stored row is returned so re-imports keep their original id.
func (r *SQLiteRepository) UpsertMedia(ctx context.Context, m *Media) (*Media, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind = excluded.kind,
			size = excluded.size,
			mtime = excluded.mtime,
			fingerprint = excluded.fingerprint,
			duration = excluded.duration,
			width = excluded.width,
			height = excluded.height,
			video_codec = excluded.video_codec,
			audio_codec = excluded.audio_codec
	`, m.ID, string(m.Kind), m.Path, m.Filename, m.Size, m.Mtime.Format(time.RFC3339), m.Fingerprint,
		m.Duration, m.Width, m.Height, nullString(m.VideoCodec), nullString(m.AudioCodec),
		m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return r.GetMediaByPath(ctx, m.Path)
}

func (r *SQLiteRepository) GetMedia(ctx context.Context, id string) (*Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	return scanMedia(row)
}

func (r *SQLiteRepository) GetMediaByPath(ctx context.Context, path string) (*Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE path = ?`, path)
	return scanMedia(row)
}

// ListMedia returns media newest first; an empty kind lists everything.
func (r *SQLiteRepository) ListMedia(ctx context.Context, kind MediaKind) ([]*Media, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, filename
	`, string(kind), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (r *SQLiteRepository) CountMedia(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media").Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(row scanner) (*Media, error) {
	var m Media
	var kind, mtime, createdAt string
	var videoCodec, audioCodec sql.NullString

	err := row.Scan(&m.ID, &kind, &m.Path, &m.Filename, &m.Size, &mtime, &m.Fingerprint,
		&m.Duration, &m.Width, &m.Height, &videoCodec, &audioCodec, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.Kind = MediaKind(kind)
	m.VideoCodec = videoCodec.String
	m.AudioCodec = audioCodec.String
	m.Mtime, _ = time.Parse(time.RFC3339, mtime)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

const jobColumns = `id, type, status, subject, progress, error, output, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, j.Type, j.Status, nullString(j.Subject), j.Progress, nullString(j.Error), nullString(j.Output),
		j.CreatedAt.Format(time.RFC3339), j.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns the most recent jobs, optionally of one type.
func (r *SQLiteRepository) ListJobs(ctx context.Context, jobType string, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE (? = '' OR type = ?)
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, jobType, jobType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var subject, errMsg, output sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&j.ID, &j.Type, &j.Status, &subject, &j.Progress, &errMsg, &output, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	j.Subject = subject.String
	j.Error = errMsg.String
	j.Output = output.String
	j.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &j, nil
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg, output string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, output = COALESCE(?, output), updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), nullString(output), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ?
	`, progress, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
