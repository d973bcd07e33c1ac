package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

const conversationColumns = "c.id, c.external_id, c.name, c.description, c.type, c.created_by, " +
	"cb.external_id, c.last_message_text, c.last_message_at, c.created_at"

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.Id,
		&c.ExternalId,
		&c.Name,
		&c.Description,
		&c.Type,
		&c.CreatedBy,
		&c.CreatedByExtId,
		&c.LastMessageText,
		&c.LastMessageAt,
		&c.CreatedAt,
	)
	return c, err
}

func (db *PgRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Conversation{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO conversations (external_id, name, description, type, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		params.ExternalId,
		params.Name,
		params.Description,
		params.Type,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Conversation{}, err
	}

	// The creator is always a participant and the first admin.
	if _, err := tx.Exec(
		"INSERT INTO conversation_participants (conversation_id, account_id, is_admin) VALUES ($1, $2, TRUE)",
		id, params.CreatedBy,
	); err != nil {
		return Conversation{}, err
	}

	for _, userId := range params.ParticipantIds {
		if userId == params.CreatedBy {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO conversation_participants (conversation_id, account_id) VALUES ($1, $2) "+
				"ON CONFLICT (conversation_id, account_id) DO NOTHING",
			id, userId,
		); err != nil {
			return Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, err
	}

	return db.getConversationById(id)
}

func (db *PgRepository) getConversationById(id int) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations c "+
			"LEFT JOIN accounts cb ON c.created_by = cb.id WHERE c.id = $1 LIMIT 1",
		id,
	)

	c, err := scanConversation(row)
	if err != nil {
		return Conversation{}, err
	}

	if err := db.loadParticipants(&c); err != nil {
		return Conversation{}, err
	}

	return c, nil
}

func (db *PgRepository) GetConversationByExternalId(externalId string) (Conversation, error) {
	row := db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations c "+
			"LEFT JOIN accounts cb ON c.created_by = cb.id WHERE c.external_id = $1 LIMIT 1",
		externalId,
	)

	c, err := scanConversation(row)
	if err != nil {
		return Conversation{}, err
	}

	if err := db.loadParticipants(&c); err != nil {
		return Conversation{}, err
	}

	return c, nil
}

func (db *PgRepository) loadParticipants(c *Conversation) error {
	rows, err := db.conn.Query(
		"SELECT p.account_id, a.external_id, a.name, a.email, a.role, a.job_title, p.is_admin, p.is_reviewer "+
			"FROM conversation_participants p JOIN accounts a ON p.account_id = a.id "+
			"WHERE p.conversation_id = $1 ORDER BY a.name",
		c.Id,
	)
	if err != nil {
		return fmt.Errorf("load participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.UserId, &p.ExternalId, &p.Name, &p.Email, &p.Role, &p.JobTitle, &p.IsAdmin, &p.IsReviewer); err != nil {
			return err
		}
		c.Participants = append(c.Participants, p)
	}

	return rows.Err()
}

func (db *PgRepository) ListConversations(userId int) ([]Conversation, error) {
	// Team channels are visible to everyone; DMs only to participants.
	rows, err := db.conn.Query(
		"SELECT "+conversationColumns+" FROM conversations c "+
			"LEFT JOIN accounts cb ON c.created_by = cb.id "+
			"WHERE c.type = 'team' OR EXISTS ("+
			"SELECT 1 FROM conversation_participants p WHERE p.conversation_id = c.id AND p.account_id = $1"+
			") ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		if err := db.loadParticipants(&convs[i]); err != nil {
			return nil, err
		}
	}

	return convs, nil
}

func (db *PgRepository) UpdateConversation(conversationId int, name, description string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET name = $2, description = $3 WHERE id = $1",
		conversationId, name, description,
	)
	return err
}

// DeleteConversation removes the conversation; its messages and
// participant rows cascade.
func (db *PgRepository) DeleteConversation(conversationId int) error {
	_, err := db.conn.Exec("DELETE FROM conversations WHERE id = $1", conversationId)
	return err
}

func (db *PgRepository) AddParticipants(conversationId int, userIds []int) error {
	for _, userId := range userIds {
		if _, err := db.conn.Exec(
			"INSERT INTO conversation_participants (conversation_id, account_id) VALUES ($1, $2) "+
				"ON CONFLICT (conversation_id, account_id) DO NOTHING",
			conversationId, userId,
		); err != nil {
			return err
		}
	}
	return nil
}

func (db *PgRepository) RemoveParticipant(conversationId, userId int) error {
	_, err := db.conn.Exec(
		"DELETE FROM conversation_participants WHERE conversation_id = $1 AND account_id = $2",
		conversationId, userId,
	)
	return err
}

func (db *PgRepository) SetAdmin(conversationId, userId int, isAdmin bool) error {
	_, err := db.conn.Exec(
		"UPDATE conversation_participants SET is_admin = $3 WHERE conversation_id = $1 AND account_id = $2",
		conversationId, userId, isAdmin,
	)
	return err
}

func (db *PgRepository) SetReviewers(conversationId int, userIds []int) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE conversation_participants SET is_reviewer = FALSE WHERE conversation_id = $1",
		conversationId,
	); err != nil {
		return err
	}

	if len(userIds) > 0 {
		if _, err := tx.Exec(
			"UPDATE conversation_participants SET is_reviewer = TRUE "+
				"WHERE conversation_id = $1 AND account_id = ANY($2)",
			conversationId, pq.Array(userIds),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

const messageColumns = "m.id, m.external_id, m.conversation_id, c.external_id, m.sender_id, " +
	"m.encrypted_sender, m.content, m.is_anonymous, m.is_insight, m.created_at, a.external_id, a.name"

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ExternalId,
		&m.ConversationId,
		&m.ConversationExtId,
		&m.SenderId,
		&m.EncryptedSender,
		&m.Content,
		&m.IsAnonymous,
		&m.IsInsight,
		&m.CreatedAt,
		&m.SenderExtId,
		&m.SenderName,
	)
	return m, err
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	row := db.conn.QueryRow(
		"INSERT INTO messages (external_id, conversation_id, sender_id, encrypted_sender, content, is_anonymous, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id",
		params.ExternalId,
		params.ConversationId,
		params.SenderId,
		params.EncryptedSender,
		params.Content,
		params.IsAnonymous,
		params.CreatedAt,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Message{}, err
	}

	return db.getMessageById(id)
}

func (db *PgRepository) getMessageById(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages m "+
			"JOIN conversations c ON m.conversation_id = c.id "+
			"LEFT JOIN accounts a ON m.sender_id = a.id WHERE m.id = $1 LIMIT 1",
		id,
	)
	return scanMessage(row)
}

func (db *PgRepository) GetMessageByExternalId(externalId string) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages m "+
			"JOIN conversations c ON m.conversation_id = c.id "+
			"LEFT JOIN accounts a ON m.sender_id = a.id WHERE m.external_id = $1 LIMIT 1",
		externalId,
	)
	return scanMessage(row)
}

func (db *PgRepository) ListMessages(conversationId int, insightsOnly bool, limit int) ([]Message, error) {
	query := "SELECT " + messageColumns + " FROM messages m " +
		"JOIN conversations c ON m.conversation_id = c.id " +
		"LEFT JOIN accounts a ON m.sender_id = a.id WHERE m.conversation_id = $1"
	if insightsOnly {
		query += " AND m.is_insight = TRUE"
	}
	query += " ORDER BY m.created_at"

	args := []any{conversationId}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgRepository) SetMessageInsight(messageId int, isInsight bool) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET is_insight = $2 WHERE id = $1",
		messageId, isInsight,
	)
	return err
}

func (db *PgRepository) UpdateConversationLastMessage(conversationId int, text string, at time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET last_message_text = $2, last_message_at = $3 WHERE id = $1",
		conversationId, text, at,
	)
	return err
}
