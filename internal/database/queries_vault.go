package database

import (
	"time"

	"github.com/lib/pq"
)

const meetingColumns = "id, external_id, title, scheduled_at, recording_url, transcript, insight_lines, tags, created_at"

func scanMeeting(row interface{ Scan(...any) error }) (Meeting, error) {
	var m Meeting
	var lines []int64
	err := row.Scan(
		&m.Id,
		&m.ExternalId,
		&m.Title,
		&m.ScheduledAt,
		&m.RecordingUrl,
		&m.Transcript,
		pq.Array(&lines),
		pq.Array(&m.Tags),
		&m.CreatedAt,
	)
	if err != nil {
		return Meeting{}, err
	}
	for _, l := range lines {
		m.InsightLines = append(m.InsightLines, int(l))
	}
	return m, nil
}

func (db *PgRepository) CreateMeeting(params CreateMeetingParams) (Meeting, error) {
	row := db.conn.QueryRow(
		"INSERT INTO meetings (external_id, title, scheduled_at, recording_url, transcript, tags, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+meetingColumns,
		params.ExternalId,
		params.Title,
		params.ScheduledAt,
		params.RecordingUrl,
		params.Transcript,
		pq.Array(params.Tags),
		time.Now().UTC(),
	)
	return scanMeeting(row)
}

func (db *PgRepository) ListMeetings() ([]Meeting, error) {
	rows, err := db.conn.Query(
		"SELECT " + meetingColumns + " FROM meetings ORDER BY scheduled_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}

	return meetings, rows.Err()
}

func (db *PgRepository) GetMeetingByExternalId(externalId string) (Meeting, error) {
	row := db.conn.QueryRow(
		"SELECT "+meetingColumns+" FROM meetings WHERE external_id = $1 LIMIT 1",
		externalId,
	)
	return scanMeeting(row)
}

func (db *PgRepository) DeleteMeeting(meetingId int) error {
	_, err := db.conn.Exec("DELETE FROM meetings WHERE id = $1", meetingId)
	return err
}

func (db *PgRepository) SetTranscriptInsights(meetingId int, lines []int) error {
	_, err := db.conn.Exec(
		"UPDATE meetings SET insight_lines = $2 WHERE id = $1",
		meetingId, pq.Array(lines),
	)
	return err
}

const insightColumns = "i.id, i.external_id, i.source_external_id, i.source_type, i.marked_by, " +
	"a.external_id, a.name, i.tags, i.content, i.ai_summary, i.created_at"

func scanInsight(row interface{ Scan(...any) error }) (Insight, error) {
	var i Insight
	err := row.Scan(
		&i.Id,
		&i.ExternalId,
		&i.SourceExtId,
		&i.SourceType,
		&i.MarkedBy,
		&i.MarkerExtId,
		&i.MarkerName,
		pq.Array(&i.Tags),
		&i.Content,
		&i.AiSummary,
		&i.CreatedAt,
	)
	return i, err
}

func (db *PgRepository) CreateInsight(params CreateInsightParams) (Insight, error) {
	row := db.conn.QueryRow(
		"INSERT INTO insights (external_id, source_external_id, source_type, marked_by, tags, content, ai_summary, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id",
		params.ExternalId,
		params.SourceExtId,
		params.SourceType,
		params.MarkedBy,
		pq.Array(params.Tags),
		params.Content,
		params.AiSummary,
		time.Now().UTC(),
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Insight{}, err
	}

	r := db.conn.QueryRow(
		"SELECT "+insightColumns+" FROM insights i JOIN accounts a ON i.marked_by = a.id WHERE i.id = $1 LIMIT 1",
		id,
	)
	return scanInsight(r)
}

func (db *PgRepository) ListInsights(tag string) ([]Insight, error) {
	query := "SELECT " + insightColumns + " FROM insights i JOIN accounts a ON i.marked_by = a.id"
	var args []any
	if tag != "" {
		query += " WHERE $1 = ANY(i.tags)"
		args = append(args, tag)
	}
	query += " ORDER BY i.created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []Insight
	for rows.Next() {
		i, err := scanInsight(rows)
		if err != nil {
			return nil, err
		}
		insights = append(insights, i)
	}

	return insights, rows.Err()
}
