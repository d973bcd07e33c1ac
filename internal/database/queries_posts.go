package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const postColumns = "p.id, p.external_id, p.account_id, a.external_id, a.name, p.content, p.type, " +
	"p.anonymous, p.ai_toggle, p.is_insight, p.insight_marked_by, p.original_post_id, p.tags, " +
	"p.created_at, p.updated_at"

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	err := row.Scan(
		&p.Id,
		&p.ExternalId,
		&p.UserId,
		&p.AuthorExtId,
		&p.AuthorName,
		&p.Content,
		&p.Type,
		&p.Anonymous,
		&p.AiToggle,
		&p.IsInsight,
		&p.InsightMarkedBy,
		&p.OriginalPostId,
		pq.Array(&p.Tags),
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func (db *PgRepository) CreatePost(params CreatePostParams) (Post, error) {
	row := db.conn.QueryRow(
		"INSERT INTO posts (external_id, account_id, content, type, anonymous, ai_toggle, original_post_id, tags, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9) RETURNING id",
		params.ExternalId,
		params.UserId,
		params.Content,
		params.Type,
		params.Anonymous,
		params.AiToggle,
		params.OriginalPostId,
		pq.Array(params.Tags),
		time.Now().UTC(),
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return Post{}, err
	}

	return db.getPostById(id)
}

func (db *PgRepository) getPostById(id int) (Post, error) {
	row := db.conn.QueryRow(
		"SELECT "+postColumns+" FROM posts p JOIN accounts a ON p.account_id = a.id WHERE p.id = $1 LIMIT 1",
		id,
	)

	p, err := scanPost(row)
	if err != nil {
		return Post{}, err
	}

	if err := db.loadPostChildren(&p); err != nil {
		return Post{}, err
	}

	return p, nil
}

func (db *PgRepository) GetPostByExternalId(externalId string) (Post, error) {
	row := db.conn.QueryRow(
		"SELECT "+postColumns+" FROM posts p JOIN accounts a ON p.account_id = a.id WHERE p.external_id = $1 LIMIT 1",
		externalId,
	)

	p, err := scanPost(row)
	if err != nil {
		return Post{}, err
	}

	if err := db.loadPostChildren(&p); err != nil {
		return Post{}, err
	}

	return p, nil
}

func (db *PgRepository) ListPosts(filter PostFilter) ([]Post, int, error) {
	var conds []string
	var args []any

	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		conds = append(conds, "p.type = "+addArg(filter.Type))
	}
	if filter.InsightsOnly {
		conds = append(conds, "p.is_insight = TRUE")
	}
	if len(filter.Tags) > 0 {
		conds = append(conds, "p.tags && "+addArg(pq.Array(filter.Tags)))
	}
	if filter.Keyword != "" {
		conds = append(conds, "to_tsvector('english', p.content) @@ plainto_tsquery('english', "+addArg(filter.Keyword)+")")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := db.conn.QueryRow("SELECT count(*) FROM posts p"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	query := "SELECT " + postColumns + " FROM posts p JOIN accounts a ON p.account_id = a.id" + where +
		" ORDER BY p.created_at DESC LIMIT " + addArg(limit) + " OFFSET " + addArg((page-1)*limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range posts {
		if err := db.loadPostChildren(&posts[i]); err != nil {
			return nil, 0, err
		}
	}

	return posts, total, nil
}

func (db *PgRepository) loadPostChildren(p *Post) error {
	rows, err := db.conn.Query(
		"SELECT r.id, r.post_id, r.account_id, a.external_id, a.name, r.emoji, r.created_at "+
			"FROM post_reactions r JOIN accounts a ON r.account_id = a.id WHERE r.post_id = $1 ORDER BY r.created_at",
		p.Id,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.Id, &r.PostId, &r.UserId, &r.AuthorExtId, &r.AuthorName, &r.Emoji, &r.CreatedAt); err != nil {
			return err
		}
		p.Reactions = append(p.Reactions, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	commentRows, err := db.conn.Query(
		"SELECT c.id, c.external_id, c.post_id, c.account_id, a.external_id, a.name, c.text, c.anonymous, c.created_at "+
			"FROM post_comments c JOIN accounts a ON c.account_id = a.id WHERE c.post_id = $1 ORDER BY c.created_at",
		p.Id,
	)
	if err != nil {
		return err
	}
	defer commentRows.Close()

	for commentRows.Next() {
		var c Comment
		if err := commentRows.Scan(&c.Id, &c.ExternalId, &c.PostId, &c.UserId, &c.AuthorExtId, &c.AuthorName, &c.Text, &c.Anonymous, &c.CreatedAt); err != nil {
			return err
		}
		p.Comments = append(p.Comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return err
	}

	repostRows, err := db.conn.Query(
		"SELECT r.id, r.post_id, r.account_id, a.external_id, a.name, r.created_at "+
			"FROM post_reposts r JOIN accounts a ON r.account_id = a.id WHERE r.post_id = $1 ORDER BY r.created_at",
		p.Id,
	)
	if err != nil {
		return err
	}
	defer repostRows.Close()

	for repostRows.Next() {
		var r Repost
		if err := repostRows.Scan(&r.Id, &r.PostId, &r.UserId, &r.AuthorExtId, &r.AuthorName, &r.CreatedAt); err != nil {
			return err
		}
		p.Reposts = append(p.Reposts, r)
	}

	return repostRows.Err()
}

func (db *PgRepository) UpdatePost(params UpdatePostParams) (Post, error) {
	_, err := db.conn.Exec(
		"UPDATE posts SET content = $2, type = $3, anonymous = $4, ai_toggle = $5, tags = $6, updated_at = $7 WHERE id = $1",
		params.PostId,
		params.Content,
		params.Type,
		params.Anonymous,
		params.AiToggle,
		pq.Array(params.Tags),
		time.Now().UTC(),
	)
	if err != nil {
		return Post{}, err
	}

	return db.getPostById(params.PostId)
}

func (db *PgRepository) DeletePost(postId int) error {
	_, err := db.conn.Exec("DELETE FROM posts WHERE id = $1", postId)
	return err
}

func (db *PgRepository) AddReaction(postId, userId int, emoji string) error {
	// Reacting twice with the same emoji removes the reaction.
	res, err := db.conn.Exec(
		"DELETE FROM post_reactions WHERE post_id = $1 AND account_id = $2 AND emoji = $3",
		postId, userId, emoji,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = db.conn.Exec(
		"INSERT INTO post_reactions (post_id, account_id, emoji, created_at) VALUES ($1, $2, $3, $4)",
		postId, userId, emoji, time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) AddComment(externalId string, postId, userId int, text string, anonymous bool) error {
	_, err := db.conn.Exec(
		"INSERT INTO post_comments (external_id, post_id, account_id, text, anonymous, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		externalId, postId, userId, text, anonymous, time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) AddRepost(postId, userId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO post_reposts (post_id, account_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (post_id, account_id) DO NOTHING",
		postId, userId, time.Now().UTC(),
	)
	return err
}

func (db *PgRepository) SetPostInsight(postId int, isInsight bool, markedBy int) error {
	_, err := db.conn.Exec(
		"UPDATE posts SET is_insight = $2, insight_marked_by = $3, updated_at = $4 WHERE id = $1",
		postId, isInsight, markedBy, time.Now().UTC(),
	)
	return err
}
