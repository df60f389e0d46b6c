package sqlite

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS builds (
    id                 TEXT PRIMARY KEY,
    app_name           TEXT NOT NULL,
    version_name       TEXT NOT NULL,
    version_code       TEXT NOT NULL,
    platform           TEXT NOT NULL CHECK (platform IN ('iOS', 'Android')),
    channel            TEXT NOT NULL CHECK (channel IN ('Beta', 'Staging', 'Production')),
    changelog          TEXT NOT NULL,
    previous_changelog TEXT NOT NULL DEFAULT '',
    upload_date        TEXT NOT NULL,
    build_status       TEXT NOT NULL CHECK (build_status IN ('Success', 'Failed', 'In Progress')),
    commit_hash        TEXT NOT NULL DEFAULT '',
    download_url       TEXT NOT NULL DEFAULT '',
    qr_code_url        TEXT NOT NULL DEFAULT '',
    size               TEXT NOT NULL DEFAULT '',
    file_name          TEXT NOT NULL DEFAULT '',
    file_type          TEXT NOT NULL DEFAULT '',
    download_count     INTEGER NOT NULL DEFAULT 0 CHECK (download_count >= 0),
    source             TEXT NOT NULL CHECK (source IN ('Manual Upload', 'CI Pipeline')),
    ci_build_id        TEXT NOT NULL DEFAULT '',
    pipeline_status    TEXT NOT NULL DEFAULT '',
    ci_logs_url        TEXT NOT NULL DEFAULT '',
    triggered_by       TEXT NOT NULL DEFAULT '',
    allowed_udids      TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_builds_platform_channel ON builds(platform, channel);
CREATE INDEX IF NOT EXISTS idx_builds_upload_date ON builds(upload_date DESC);
CREATE INDEX IF NOT EXISTS idx_builds_group ON builds(app_name, platform, channel, upload_date DESC);

CREATE TABLE IF NOT EXISTS feedbacks (
    id         TEXT PRIMARY KEY,
    build_id   TEXT NOT NULL REFERENCES builds(id) ON DELETE CASCADE,
    user_name  TEXT NOT NULL,
    comment    TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedbacks_build ON feedbacks(build_id, created_at DESC);

CREATE TABLE IF NOT EXISTS monitored_repositories (
    id                   TEXT PRIMARY KEY,
    repo_url             TEXT NOT NULL UNIQUE,
    default_branch       TEXT NOT NULL,
    default_platform     TEXT NOT NULL CHECK (default_platform IN ('iOS', 'Android')),
    default_channel      TEXT NOT NULL CHECK (default_channel IN ('Beta', 'Staging', 'Production')),
    auto_trigger_enabled INTEGER NOT NULL DEFAULT 1,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

func (d *DB) migrate() error {
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}
