package store

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		appointment_id TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL DEFAULT '',
		therapist_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		ended_at TIMESTAMPTZ,
		features JSONB NOT NULL,
		room_ref TEXT NOT NULL,
		last_quality JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		connection_status TEXT NOT NULL,
		media JSONB NOT NULL,
		permissions JSONB NOT NULL,
		link_stats JSONB NOT NULL,
		joined_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		file JSONB,
		sent_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		started_by TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		format TEXT NOT NULL,
		quality JSONB NOT NULL,
		consent JSONB NOT NULL,
		status TEXT NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		size BIGINT NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		failure TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS quality_samples (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		peer_id TEXT NOT NULL,
		bytes_sent BIGINT NOT NULL,
		bytes_received BIGINT NOT NULL,
		bandwidth BIGINT NOT NULL,
		latency_ms BIGINT NOT NULL,
		packets_lost BIGINT NOT NULL,
		jitter_ms BIGINT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		video_bitrate INTEGER NOT NULL,
		sampled_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_samples_session ON quality_samples (session_id, sampled_at)`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		appointment_id TEXT NOT NULL DEFAULT '',
		patient_id TEXT NOT NULL DEFAULT '',
		therapist_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		scheduled_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP,
		ended_at TIMESTAMP,
		features TEXT NOT NULL,
		room_ref TEXT NOT NULL,
		last_quality TEXT,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS participants (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		role TEXT NOT NULL,
		connection_status TEXT NOT NULL,
		media TEXT NOT NULL,
		permissions TEXT NOT NULL,
		link_stats TEXT NOT NULL,
		joined_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		file TEXT,
		sent_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, sent_at)`,
	`CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		started_by TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP,
		format TEXT NOT NULL,
		quality TEXT NOT NULL,
		consent TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		failure TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS quality_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		participant_id TEXT NOT NULL,
		peer_id TEXT NOT NULL,
		bytes_sent INTEGER NOT NULL,
		bytes_received INTEGER NOT NULL,
		bandwidth INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		packets_lost INTEGER NOT NULL,
		jitter_ms INTEGER NOT NULL,
		score REAL NOT NULL,
		video_bitrate INTEGER NOT NULL,
		sampled_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_samples_session ON quality_samples (session_id, sampled_at)`,
}
