package postgres

// Migrations returns the embedded schema migrations in order.
// Migrations are forward-only; fix a bad one with a new version.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_progress_stats",
			UpSQL:   migration001Up,
		},
		{
			Version: 2,
			Name:    "create_calendar",
			UpSQL:   migration002Up,
		},
		{
			Version: 3,
			Name:    "create_attendance",
			UpSQL:   migration003Up,
		},
		{
			Version: 4,
			Name:    "add_attendance_reward_markers",
			UpSQL:   migration004Up,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: PROGRESS STATS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One document per account, overwritten on every save.
CREATE TABLE IF NOT EXISTS progress_stats (
    account_id VARCHAR(128) PRIMARY KEY,
    document JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS calendar_events (
    account_id VARCHAR(128) NOT NULL,
    id VARCHAR(64) NOT NULL,
    date DATE NOT NULL,
    title VARCHAR(200) NOT NULL,
    kind VARCHAR(20) NOT NULL DEFAULT 'other',
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    duration_minutes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (account_id, id),
    CONSTRAINT valid_kind CHECK (kind IN ('study', 'class', 'task', 'other')),
    CONSTRAINT valid_duration CHECK (duration_minutes >= 0)
);

CREATE INDEX IF NOT EXISTS idx_calendar_events_account_date ON calendar_events(account_id, date);

-- Classes that attendance can be marked against.
CREATE TABLE IF NOT EXISTS classes (
    account_id VARCHAR(128) NOT NULL,
    id VARCHAR(64) NOT NULL,
    title VARCHAR(200) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (account_id, id)
);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS attendance (
    account_id VARCHAR(128) NOT NULL,
    class_id VARCHAR(64) NOT NULL,
    date DATE NOT NULL,
    attendance VARCHAR(3) NOT NULL,
    completion VARCHAR(3) NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (account_id, class_id, date),
    CONSTRAINT valid_attendance CHECK (attendance IN ('yes', 'no')),
    CONSTRAINT valid_completion CHECK (completion IN ('yes', 'no'))
);

CREATE INDEX IF NOT EXISTS idx_attendance_account_date ON attendance(account_id, date);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: ATTENDANCE REWARD MARKERS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Set once a flag has paid out; never cleared.
ALTER TABLE attendance ADD COLUMN IF NOT EXISTS attendance_rewarded BOOLEAN NOT NULL DEFAULT FALSE;
ALTER TABLE attendance ADD COLUMN IF NOT EXISTS completion_rewarded BOOLEAN NOT NULL DEFAULT FALSE;

UPDATE attendance SET attendance_rewarded = TRUE WHERE attendance = 'yes';
UPDATE attendance SET completion_rewarded = TRUE WHERE completion = 'yes';
`
