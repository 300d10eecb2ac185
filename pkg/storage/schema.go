package storage

// schema is shared by SQLite and Postgres, hence the lowest common denominator types;
// TIMESTAMP columns are parsed into time.Time by both drivers.
const schema = `
BEGIN TRANSACTION;

CREATE TABLE
	IF NOT EXISTS users (
		id TEXT NOT NULL,
		name TEXT NOT NULL CHECK (length(name) >= 1 AND length(name) <= 50),
		email TEXT UNIQUE,
		created TIMESTAMP NOT NULL,
		PRIMARY KEY (id)
	);

CREATE TABLE
	IF NOT EXISTS reading_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		verse TEXT NOT NULL,
		created TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (id)
	);

CREATE INDEX IF NOT EXISTS reading_log_user_index ON reading_log (user_id, created);

CREATE TABLE
	IF NOT EXISTS reflections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		verse TEXT NOT NULL,
		verse_text TEXT,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		insight TEXT,
		shared BOOLEAN NOT NULL DEFAULT FALSE,
		themes TEXT NOT NULL DEFAULT '[]',
		likes INTEGER NOT NULL DEFAULT 0 CHECK (likes >= 0),
		created TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (id)
	);

CREATE INDEX IF NOT EXISTS reflections_user_index ON reflections (user_id, created);
CREATE INDEX IF NOT EXISTS reflections_shared_index ON reflections (shared, created);

CREATE TABLE
	IF NOT EXISTS reflection_likes (
		reflection_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		created TIMESTAMP NOT NULL,
		PRIMARY KEY (reflection_id, user_id),
		FOREIGN KEY (reflection_id) REFERENCES reflections (id),
		FOREIGN KEY (user_id) REFERENCES users (id)
	);

CREATE TABLE
	IF NOT EXISTS themes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 1 CHECK (count >= 0),
		UNIQUE (user_id, name),
		FOREIGN KEY (user_id) REFERENCES users (id)
	);

CREATE TABLE
	IF NOT EXISTS shared_insights (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		verse TEXT NOT NULL,
		content TEXT NOT NULL,
		created TIMESTAMP NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users (id)
	);

CREATE INDEX IF NOT EXISTS shared_insights_created_index ON shared_insights (created);

COMMIT;
`
