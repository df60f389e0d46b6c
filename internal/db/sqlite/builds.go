package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/apprelay/apprelay/internal/model"
	"github.com/apprelay/apprelay/internal/store"
)

const buildColumns = `id, app_name, version_name, version_code, platform, channel, changelog,
	previous_changelog, upload_date, build_status, commit_hash, download_url, qr_code_url,
	size, file_name, file_type, download_count, source, ci_build_id, pipeline_status,
	ci_logs_url, triggered_by, allowed_udids`

type buildRow struct {
	ID                string `db:"id"`
	AppName           string `db:"app_name"`
	VersionName       string `db:"version_name"`
	VersionCode       string `db:"version_code"`
	Platform          string `db:"platform"`
	Channel           string `db:"channel"`
	Changelog         string `db:"changelog"`
	PreviousChangelog string `db:"previous_changelog"`
	UploadDate        string `db:"upload_date"`
	BuildStatus       string `db:"build_status"`
	CommitHash        string `db:"commit_hash"`
	DownloadURL       string `db:"download_url"`
	QRCodeURL         string `db:"qr_code_url"`
	Size              string `db:"size"`
	FileName          string `db:"file_name"`
	FileType          string `db:"file_type"`
	DownloadCount     int64  `db:"download_count"`
	Source            string `db:"source"`
	CIBuildID         string `db:"ci_build_id"`
	PipelineStatus    string `db:"pipeline_status"`
	CILogsURL         string `db:"ci_logs_url"`
	TriggeredBy       string `db:"triggered_by"`
	AllowedUDIDs      string `db:"allowed_udids"`
}

func (r buildRow) toModel() model.Build {
	b := model.Build{
		ID:                r.ID,
		AppName:           r.AppName,
		VersionName:       r.VersionName,
		VersionCode:       r.VersionCode,
		Platform:          model.Platform(r.Platform),
		Channel:           model.Channel(r.Channel),
		Changelog:         r.Changelog,
		PreviousChangelog: r.PreviousChangelog,
		UploadDate:        parseTime(r.UploadDate),
		BuildStatus:       model.BuildStatus(r.BuildStatus),
		CommitHash:        r.CommitHash,
		DownloadURL:       r.DownloadURL,
		QRCodeURL:         r.QRCodeURL,
		Size:              r.Size,
		FileName:          r.FileName,
		FileType:          r.FileType,
		DownloadCount:     r.DownloadCount,
		Source:            model.BuildSource(r.Source),
		CIBuildID:         r.CIBuildID,
		PipelineStatus:    model.BuildStatus(r.PipelineStatus),
		CILogsURL:         r.CILogsURL,
		TriggeredBy:       r.TriggeredBy,
	}
	var udids []string
	if err := json.Unmarshal([]byte(r.AllowedUDIDs), &udids); err == nil && len(udids) > 0 {
		b.AllowedUDIDs = udids
	}
	return b
}

func encodeUDIDs(udids []string) (string, error) {
	if len(udids) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(udids)
	if err != nil {
		return "", fmt.Errorf("encode allowed udids: %w", err)
	}
	return string(data), nil
}

func (d *DB) CreateBuild(ctx context.Context, in *model.Build) (*model.Build, error) {
	b, err := store.PrepareBuild(in)
	if err != nil {
		return nil, err
	}
	udids, err := encodeUDIDs(b.AllowedUDIDs)
	if err != nil {
		return nil, err
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO builds (`+buildColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.AppName, b.VersionName, b.VersionCode, string(b.Platform), string(b.Channel),
		b.Changelog, b.PreviousChangelog, formatTime(b.UploadDate), string(b.BuildStatus),
		b.CommitHash, b.DownloadURL, b.QRCodeURL, b.Size, b.FileName, b.FileType,
		b.DownloadCount, string(b.Source), b.CIBuildID, string(b.PipelineStatus),
		b.CILogsURL, b.TriggeredBy, udids)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("build %s: %w", b.ID, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert build: %w", err)
	}
	return &b, nil
}

func (d *DB) GetBuild(ctx context.Context, id string) (*model.Build, error) {
	return getBuild(ctx, d.db, id)
}

func getBuild(ctx context.Context, q sqlx.QueryerContext, id string) (*model.Build, error) {
	var row buildRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("build %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get build: %w", err)
	}
	b := row.toModel()
	return &b, nil
}

func (d *DB) ListBuilds(ctx context.Context, f store.BuildFilter) ([]model.Build, error) {
	var where []string
	var args []interface{}

	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(f.Platform))
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, string(f.Channel))
	}

	query := `SELECT ` + buildColumns + ` FROM builds`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY upload_date DESC, rowid DESC"
	return d.selectBuilds(ctx, query, args...)
}

func (d *DB) ListGroup(ctx context.Context, g model.Group, source model.BuildSource) ([]model.Build, error) {
	query := `SELECT ` + buildColumns + ` FROM builds WHERE app_name = ? AND platform = ? AND channel = ?`
	args := []interface{}{g.AppName, string(g.Platform), string(g.Channel)}
	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}
	query += " ORDER BY upload_date DESC, rowid DESC"
	return d.selectBuilds(ctx, query, args...)
}

func (d *DB) ListGroups(ctx context.Context) ([]model.Group, error) {
	var rows []struct {
		AppName  string `db:"app_name"`
		Platform string `db:"platform"`
		Channel  string `db:"channel"`
	}
	err := d.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT app_name, platform, channel FROM builds
		ORDER BY app_name, platform, channel`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	groups := make([]model.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, model.Group{AppName: r.AppName, Platform: model.Platform(r.Platform), Channel: model.Channel(r.Channel)})
	}
	return groups, nil
}

func (d *DB) selectBuilds(ctx context.Context, query string, args ...interface{}) ([]model.Build, error) {
	var rows []buildRow
	if err := d.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	builds := make([]model.Build, 0, len(rows))
	for _, r := range rows {
		builds = append(builds, r.toModel())
	}
	return builds, nil
}

// IncrementDownloadCount is a single UPDATE so concurrent callers never lose a count.
func (d *DB) IncrementDownloadCount(ctx context.Context, id string) (*model.Build, error) {
	var row buildRow
	err := d.db.GetContext(ctx, &row, `
		UPDATE builds SET download_count = download_count + 1
		WHERE id = ?
		RETURNING `+buildColumns, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("build %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("increment download count: %w", err)
	}
	b := row.toModel()
	return &b, nil
}

func (d *DB) CountFileReferences(ctx context.Context, fileName string) (int, error) {
	var n int
	if err := d.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM builds WHERE file_name = ?`, fileName); err != nil {
		return 0, fmt.Errorf("count file references: %w", err)
	}
	return n, nil
}

func (d *DB) DeleteBuild(ctx context.Context, id string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete build: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete build: %w", err)
	}
	return n > 0, nil
}

func (d *DB) UpdateBuildFields(ctx context.Context, id string, p store.BuildPatch) (*model.Build, error) {
	var out *model.Build
	err := d.withTx(ctx, func(tx *sqlx.Tx) error {
		cur, err := getBuild(ctx, tx, id)
		if err != nil {
			return err
		}
		b := store.ApplyBuildPatch(*cur, p)
		_, err = tx.ExecContext(ctx, `
			UPDATE builds SET version_name = ?, version_code = ?, changelog = ?, build_status = ?,
			       pipeline_status = ?, download_url = ?, size = ?, file_name = ?, file_type = ?
			WHERE id = ?`,
			b.VersionName, b.VersionCode, b.Changelog, string(b.BuildStatus),
			string(b.PipelineStatus), b.DownloadURL, b.Size, b.FileName, b.FileType, id)
		if err != nil {
			return fmt.Errorf("update build: %w", err)
		}
		out = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
