package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"reelsmith/internal/job"
	"reelsmith/internal/services"
)

// SQLiteStore persists jobs and their scenes in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const jobColumns = `id, prompt, scene_count, character_description, state,
    reference_image, reference_image_format, assembled_clip, assembled_clip_format,
    final_artifact, final_artifact_format, caption_track, caption_track_format,
    failure_stage, failure_kind, failure_detail, failure_scene, created_at, updated_at`

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("jobstore: sqlite path required")
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the busy retry covers other processes.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, j *job.Job) error {
	if j == nil || j.ID == "" {
		return errors.New("jobstore: job with id required")
	}
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			var exists int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE id = ?`, j.ID).Scan(&exists); err != nil {
				return err
			}
			if exists > 0 {
				return ErrExists
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO jobs (`+jobColumns+`)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, jobArgs(j)...)
			if err != nil {
				return err
			}
			return insertScenes(ctx, tx, j)
		})
	})
	if err != nil {
		if errors.Is(err, ErrExists) {
			return err
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*job.Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	scenes, err := s.loadScenes(ctx, []string{j.ID})
	if err != nil {
		return nil, err
	}
	j.Scenes = scenes[j.ID]
	return j, nil
}

// Update rewrites the job row and replaces its scenes in one transaction.
func (s *SQLiteStore) Update(ctx context.Context, j *job.Job) error {
	if j == nil {
		return errors.New("jobstore: job is nil")
	}
	ctx = ensureContext(ctx)
	err := retryOnBusy(ctx, func() error {
		return s.withTx(ctx, func(tx *sql.Tx) error {
			args := jobArgs(j)
			res, err := tx.ExecContext(ctx, `UPDATE jobs
                SET prompt = ?, scene_count = ?, character_description = ?, state = ?,
                    reference_image = ?, reference_image_format = ?,
                    assembled_clip = ?, assembled_clip_format = ?,
                    final_artifact = ?, final_artifact_format = ?,
                    caption_track = ?, caption_track_format = ?,
                    failure_stage = ?, failure_kind = ?, failure_detail = ?, failure_scene = ?,
                    created_at = ?, updated_at = ?
                WHERE id = ?`, append(args[1:], j.ID)...)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				return ErrNotFound
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE job_id = ?`, j.ID); err != nil {
				return err
			}
			return insertScenes(ctx, tx, j)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, states ...job.State) ([]*job.Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(jobs) == 0 {
		return jobs, nil
	}

	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}
	scenes, err := s.loadScenes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		j.Scenes = scenes[j.ID]
	}
	return jobs, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) loadScenes(ctx context.Context, ids []string) (map[string][]job.Scene, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, scene_index, script, dialogue, video, video_format, status, error_message
         FROM scenes WHERE job_id IN (`+makePlaceholders(len(ids))+`) ORDER BY job_id, scene_index`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]job.Scene, len(ids))
	for rows.Next() {
		var (
			jobID       string
			scene       job.Scene
			video       sql.NullString
			videoFormat sql.NullString
			status      string
			errMsg      sql.NullString
		)
		if err := rows.Scan(&jobID, &scene.Index, &scene.Script, &scene.Dialogue, &video, &videoFormat, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scene.Video = job.MediaHandle{Location: video.String, Format: videoFormat.String}
		scene.Status = job.SceneStatus(status)
		scene.Error = errMsg.String
		out[jobID] = append(out[jobID], scene)
	}
	return out, rows.Err()
}

func insertScenes(ctx context.Context, tx *sql.Tx, j *job.Job) error {
	if len(j.Scenes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scenes
        (job_id, scene_index, script, dialogue, video, video_format, status, error_message)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, scene := range j.Scenes {
		status := scene.Status
		if status == "" {
			status = job.ScenePending
		}
		if _, err := stmt.ExecContext(ctx,
			j.ID,
			scene.Index,
			scene.Script,
			scene.Dialogue,
			nullableString(scene.Video.Location),
			nullableString(scene.Video.Format),
			string(status),
			nullableString(scene.Error),
		); err != nil {
			return err
		}
	}
	return nil
}

func jobArgs(j *job.Job) []any {
	var (
		failureStage  any
		failureKind   any
		failureDetail any
		failureScene  any
	)
	if j.Failure != nil {
		failureStage = string(j.Failure.Stage)
		failureKind = string(j.Failure.Kind)
		failureDetail = nullableString(j.Failure.Detail)
		failureScene = nullableInt(j.Failure.SceneIndex)
	}
	return []any{
		j.ID,
		j.Prompt,
		j.SceneCount,
		nullableString(j.Character),
		string(j.State),
		nullableString(j.ReferenceImage.Location),
		nullableString(j.ReferenceImage.Format),
		nullableString(j.AssembledClip.Location),
		nullableString(j.AssembledClip.Format),
		nullableString(j.FinalArtifact.Location),
		nullableString(j.FinalArtifact.Format),
		nullableString(j.CaptionTrack.Location),
		nullableString(j.CaptionTrack.Format),
		failureStage,
		failureKind,
		failureDetail,
		failureScene,
		formatTime(j.CreatedAt),
		formatTime(j.UpdatedAt),
	}
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*job.Job, error) {
	var (
		j                               job.Job
		character                       sql.NullString
		state                           string
		refImage, refImageFmt           sql.NullString
		assembled, assembledFmt         sql.NullString
		final, finalFmt                 sql.NullString
		captions, captionsFmt           sql.NullString
		failStage, failKind, failDetail sql.NullString
		failScene                       sql.NullInt64
		createdRaw, updatedRaw          string
	)
	if err := scanner.Scan(
		&j.ID, &j.Prompt, &j.SceneCount, &character, &state,
		&refImage, &refImageFmt, &assembled, &assembledFmt,
		&final, &finalFmt, &captions, &captionsFmt,
		&failStage, &failKind, &failDetail, &failScene,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	parsed, ok := job.ParseState(state)
	if !ok {
		return nil, fmt.Errorf("job %s: unknown state %q", j.ID, state)
	}
	j.State = parsed
	j.Character = character.String
	j.ReferenceImage = job.MediaHandle{Location: refImage.String, Format: refImageFmt.String}
	j.AssembledClip = job.MediaHandle{Location: assembled.String, Format: assembledFmt.String}
	j.FinalArtifact = job.MediaHandle{Location: final.String, Format: finalFmt.String}
	j.CaptionTrack = job.MediaHandle{Location: captions.String, Format: captionsFmt.String}
	if failKind.Valid {
		cause := job.FailureCause{
			Stage:  job.State(failStage.String),
			Kind:   services.Kind(failKind.String),
			Detail: failDetail.String,
		}
		if failScene.Valid {
			idx := int(failScene.Int64)
			cause.SceneIndex = &idx
		}
		j.Failure = &cause
	}
	if t, err := parseTimeString(createdRaw); err == nil {
		j.CreatedAt = t
	}
	if t, err := parseTimeString(updatedRaw); err == nil {
		j.UpdatedAt = t
	}
	return &j, nil
}
