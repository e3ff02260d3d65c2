package storage

import (
	_ "embed"
)

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      name,
                      start_time,
                      end_time,
                      connection_type,
                      sample_count,
                      stats)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    name,
    start_time,
    end_time,
    connection_type,
    sample_count,
    stats
FROM sessions
WHERE
    id = ?`

	selectSessionByNameSQL = `
SELECT
    id,
    name,
    start_time,
    end_time,
    connection_type,
    sample_count,
    stats
FROM sessions
WHERE
    name = ?
ORDER BY id DESC
LIMIT 1`

	selectSessionsSQL = `
SELECT
    id,
    name,
    start_time,
    end_time,
    connection_type,
    sample_count,
    stats
FROM sessions
ORDER BY start_time`

	deleteSessionSQL = `
DELETE FROM sessions
WHERE
    id = ?`

	selectReadingsSQL = `
SELECT
    timestamp,
    voltage,
    current,
    power,
    dp,
    dn,
    temperature,
    protocol
FROM readings
WHERE
    session_id = ?
ORDER BY id`

	insertReadingSQL = `
INSERT INTO readings (session_id,
                      timestamp,
                      voltage,
                      current,
                      power,
                      dp,
                      dn,
                      temperature,
                      protocol)
VALUES `
)

//go:embed schema.sql
var schemaSQL string
