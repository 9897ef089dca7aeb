package app

import "serotonyl.ru/hacker-bot/internal/db/postgres"

// migrations — схема БД по версиям. Уже применённые версии не меняются,
// изменения схемы идут новой версией в конец списка.
var migrations = []postgres.Migration{
	{Version: 1, Name: "accounts", SQL: migration001Accounts},
	{Version: 2, Name: "ledger", SQL: migration002Ledger},
	{Version: 3, Name: "quota", SQL: migration003Quota},
	{Version: 4, Name: "referral", SQL: migration004Referral},
	{Version: 5, Name: "payments", SQL: migration005Payments},
	{Version: 6, Name: "game_log", SQL: migration006GameLog},
	{Version: 7, Name: "admin", SQL: migration007Admin},
	{Version: 8, Name: "social", SQL: migration008Social},
	{Version: 9, Name: "script_market", SQL: migration009ScriptMarket},
}

const migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    streak INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
    last_login TIMESTAMPTZ,
    premium_tier VARCHAR(32) NOT NULL DEFAULT '',
    premium_until TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts (LOWER(username));
CREATE INDEX IF NOT EXISTS idx_accounts_balance ON accounts (balance DESC);
CREATE INDEX IF NOT EXISTS idx_accounts_premium_until ON accounts (premium_until) WHERE premium_tier <> '';
`

const migration002Ledger = `
CREATE TABLE IF NOT EXISTS ledger_entries (
    id UUID PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(user_id),
    amount BIGINT NOT NULL CHECK (amount <> 0),
    reason VARCHAR(32) NOT NULL CHECK (reason IN (
        'daily_bonus', 'referral', 'quiz_reward', 'exploit_purchase', 'spam_blast',
        'crypto_hack', 'premium_purchase', 'follower_boost', 'admin_adjust'
    )),
    ref TEXT NOT NULL DEFAULT '',
    balance_after BIGINT NOT NULL CHECK (balance_after >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries (account_id, created_at DESC);
`

const migration003Quota = `
CREATE TABLE IF NOT EXISTS quota_windows (
    account_id BIGINT NOT NULL,
    command VARCHAR(32) NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (account_id, command)
);
CREATE TABLE IF NOT EXISTS quota_events (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL,
    command VARCHAR(32) NOT NULL,
    window_start TIMESTAMPTZ NOT NULL,
    kind VARCHAR(16) NOT NULL CHECK (kind IN ('used', 'released')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_quota_events_key ON quota_events (account_id, command, created_at DESC);
`

const migration004Referral = `
CREATE TABLE IF NOT EXISTS referral_codes (
    code VARCHAR(32) PRIMARY KEY,
    owner_id BIGINT NOT NULL UNIQUE REFERENCES accounts(user_id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS referral_redemptions (
    referee_id BIGINT PRIMARY KEY REFERENCES accounts(user_id),
    code VARCHAR(32) NOT NULL REFERENCES referral_codes(code),
    referrer_id BIGINT NOT NULL REFERENCES accounts(user_id),
    redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (referee_id <> referrer_id)
);
CREATE INDEX IF NOT EXISTS idx_referral_redemptions_referrer ON referral_redemptions (referrer_id);
`

const migration005Payments = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    telegram_charge_id VARCHAR(255) NOT NULL UNIQUE,
    provider_charge_id VARCHAR(255) NOT NULL DEFAULT '',
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    tier VARCHAR(32) NOT NULL,
    amount INTEGER NOT NULL,
    currency VARCHAR(8) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_payments_user ON payments (user_id);
`

const migration006GameLog = `
CREATE TABLE IF NOT EXISTS game_log (
    id UUID PRIMARY KEY,
    user_id BIGINT NOT NULL,
    command VARCHAR(32) NOT NULL,
    outcome VARCHAR(32) NOT NULL,
    amount BIGINT NOT NULL DEFAULT 0,
    detail JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_game_log_user ON game_log (user_id, created_at DESC);
`

const migration007Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE NOT NULL,
    authenticated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ NOT NULL,
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user ON admin_sessions (user_id) WHERE is_active;
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    attempt_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    success BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_user ON admin_login_attempts (user_id, attempt_time DESC);
`

const migration008Social = `
CREATE TABLE IF NOT EXISTS social_profiles (
    user_id BIGINT PRIMARY KEY REFERENCES accounts(user_id),
    handle VARCHAR(64) NOT NULL,
    bio VARCHAR(255) NOT NULL DEFAULT '',
    avatar TEXT NOT NULL DEFAULT '',
    theme_color VARCHAR(7) NOT NULL DEFAULT '#0077cc',
    followers BIGINT NOT NULL DEFAULT 0 CHECK (followers >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_social_profiles_handle ON social_profiles (LOWER(handle));
CREATE TABLE IF NOT EXISTS follows (
    follower_id BIGINT NOT NULL REFERENCES accounts(user_id),
    followed_id BIGINT NOT NULL REFERENCES social_profiles(user_id),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (follower_id, followed_id),
    CHECK (follower_id <> followed_id)
);
CREATE INDEX IF NOT EXISTS idx_follows_followed ON follows (followed_id);
`

const migration009ScriptMarket = `
CREATE TABLE IF NOT EXISTS script_market (
    id BIGSERIAL PRIMARY KEY,
    author_id BIGINT NOT NULL REFERENCES accounts(user_id),
    title VARCHAR(64) NOT NULL,
    description VARCHAR(256) NOT NULL,
    body TEXT NOT NULL,
    price BIGINT NOT NULL CHECK (price > 0),
    rating DOUBLE PRECISION,
    votes INTEGER NOT NULL DEFAULT 0,
    approved BOOLEAN NOT NULL DEFAULT FALSE,
    approved_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_script_market_author ON script_market (author_id);
CREATE INDEX IF NOT EXISTS idx_script_market_showcase ON script_market (rating DESC NULLS LAST) WHERE approved;
CREATE TABLE IF NOT EXISTS script_ratings (
    script_id BIGINT NOT NULL REFERENCES script_market(id),
    user_id BIGINT NOT NULL REFERENCES accounts(user_id),
    stars SMALLINT NOT NULL CHECK (stars BETWEEN 1 AND 5),
    rated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (script_id, user_id)
);
`
