package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

// imuColumnsCount is the number of values bound per imu_samples row.
const imuColumnsCount = 32

// gnssColumnsCount is the number of values bound per gnss_samples row.
const gnssColumnsCount = 16

// maxInsertRows keeps batch inserts below the SQLite bound variables limit.
const maxInsertRows = 1000

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_imu_samples_session_time ON imu_samples (session_id, received_at);
CREATE INDEX IF NOT EXISTS idx_imu_samples_session_frame ON imu_samples (session_id, frame_count);
CREATE INDEX IF NOT EXISTS idx_gnss_samples_session_time ON gnss_samples (session_id, received_at);
CREATE INDEX IF NOT EXISTS idx_events_session ON events (session_id, received_at);`

	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      start_time,
                      io_type,
                      sensor_name,
                      serial_number,
                      identifier,
                      config)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	selectSessionColumnsSQL = `
SELECT 
    id, 
    uuid,
    start_time, 
    io_type, 
    sensor_name, 
    serial_number,
    identifier,
    config 
FROM sessions`

	selectSessionSQL = selectSessionColumnsSQL + `
WHERE 
    id = ?`

	selectSessionByUUIDSQL = selectSessionColumnsSQL + `
WHERE 
    uuid = ?`

	selectSessionsSQL = selectSessionColumnsSQL + `
ORDER BY start_time, id`

	insertImuSampleSQL = `
INSERT INTO imu_samples (session_id,
                         received_at,
                         sensor_time,
                         frame_count,
                         acc_x, acc_y, acc_z,
                         gyro1_x, gyro1_y, gyro1_z,
                         gyro2_x, gyro2_y, gyro2_z,
                         mag_x, mag_y, mag_z,
                         angvel_x, angvel_y, angvel_z,
                         roll, pitch, yaw,
                         quat_w, quat_x, quat_y, quat_z,
                         linacc_x, linacc_y, linacc_z,
                         pressure,
                         altitude,
                         temperature)
VALUES `

	insertGnssSampleSQL = `
INSERT INTO gnss_samples (session_id,
                          received_at,
                          sensor_time,
                          latitude,
                          longitude,
                          horizontal_accuracy,
                          vertical_accuracy,
                          height,
                          heading,
                          heading_accuracy,
                          velocity,
                          velocity_accuracy,
                          fix_type,
                          carrier_phase,
                          satellites,
                          utc_time)
VALUES `

	insertEventSQL = `
INSERT INTO events (session_id,
                    received_at,
                    type,
                    sensor,
                    data)
VALUES (?, ?, ?, ?, ?)`

	selectEventsSQL = `
SELECT 
    id, 
    received_at, 
    type, 
    sensor, 
    data
FROM events
WHERE 
    session_id = ?
ORDER BY received_at, id`

	selectImuSamplesSQL = `
SELECT 
    received_at,
    sensor_time,
    frame_count,
    acc_x, acc_y, acc_z,
    gyro1_x, gyro1_y, gyro1_z,
    gyro2_x, gyro2_y, gyro2_z,
    mag_x, mag_y, mag_z,
    angvel_x, angvel_y, angvel_z,
    roll, pitch, yaw,
    quat_w, quat_x, quat_y, quat_z,
    linacc_x, linacc_y, linacc_z,
    pressure,
    altitude,
    temperature
FROM imu_samples
WHERE 
    session_id = ?
    AND received_at BETWEEN ? AND ?`

	selectGnssSamplesSQL = `
SELECT 
    received_at,
    sensor_time,
    latitude,
    longitude,
    horizontal_accuracy,
    vertical_accuracy,
    height,
    heading,
    heading_accuracy,
    velocity,
    velocity_accuracy,
    fix_type,
    carrier_phase,
    satellites,
    utc_time
FROM gnss_samples
WHERE 
    session_id = ?
    AND received_at BETWEEN ? AND ?`

	selectImuTimeRangeSQL = `
SELECT 
    MIN(received_at), 
    MAX(received_at),
    COUNT(*)
FROM imu_samples
WHERE session_id = ?`

	selectGnssTimeRangeSQL = `
SELECT 
    MIN(received_at), 
    MAX(received_at),
    COUNT(*)
FROM gnss_samples
WHERE session_id = ?`
)
