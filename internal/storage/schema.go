package storage

const schema = `
CREATE TABLE IF NOT EXISTS packages (
    name         TEXT PRIMARY KEY,
    version_code INTEGER NOT NULL,
    installer    TEXT NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL,
    snapshot     BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS package_users (
    package   TEXT NOT NULL REFERENCES packages(name) ON DELETE CASCADE,
    user_id   INTEGER NOT NULL,
    installed INTEGER NOT NULL,
    archived  INTEGER NOT NULL,
    PRIMARY KEY (package, user_id)
);

CREATE INDEX IF NOT EXISTS idx_package_users_user ON package_users(user_id);
`
