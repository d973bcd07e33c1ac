package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	ExternalId   string
	Name         string
	Email        string
	PasswordHash string
	OrgCode      string
	Role         string
	JobTitle     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Conversation struct {
	Id              int
	ExternalId      string
	Name            string
	Description     string
	Type            string
	CreatedBy       sql.NullInt64
	CreatedByExtId  sql.NullString
	LastMessageText sql.NullString
	LastMessageAt   sql.NullTime
	CreatedAt       time.Time
	Participants    []Participant
}

// Participant is a conversation member row joined with its account.
type Participant struct {
	UserId     int
	ExternalId string
	Name       string
	Email      string
	Role       string
	JobTitle   string
	IsAdmin    bool
	IsReviewer bool
}

type Message struct {
	Id                int
	ExternalId        string
	ConversationId    int
	ConversationExtId string
	// SenderId is null iff the message is anonymous; EncryptedSender then
	// holds the sealed identity instead.
	SenderId        sql.NullInt64
	EncryptedSender sql.NullString
	Content         string
	IsAnonymous     bool
	IsInsight       bool
	CreatedAt       time.Time
	SenderExtId     sql.NullString
	SenderName      sql.NullString
}

type Post struct {
	Id              int
	ExternalId      string
	UserId          int
	AuthorExtId     string
	AuthorName      string
	Content         string
	Type            string
	Anonymous       bool
	AiToggle        bool
	IsInsight       bool
	InsightMarkedBy sql.NullInt64
	OriginalPostId  sql.NullInt64
	Tags            []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Reactions       []Reaction
	Comments        []Comment
	Reposts         []Repost
}

type Reaction struct {
	Id          int
	PostId      int
	UserId      int
	AuthorExtId string
	AuthorName  string
	Emoji       string
	CreatedAt   time.Time
}

type Comment struct {
	Id          int
	ExternalId  string
	PostId      int
	UserId      int
	AuthorExtId string
	AuthorName  string
	Text        string
	Anonymous   bool
	CreatedAt   time.Time
}

type Repost struct {
	Id          int
	PostId      int
	UserId      int
	AuthorExtId string
	AuthorName  string
	CreatedAt   time.Time
}

type Meeting struct {
	Id           int
	ExternalId   string
	Title        string
	ScheduledAt  time.Time
	RecordingUrl string
	Transcript   string
	InsightLines []int
	Tags         []string
	CreatedAt    time.Time
}

type Insight struct {
	Id           int
	ExternalId   string
	SourceExtId  string
	SourceType   string
	MarkedBy     int
	MarkerExtId  string
	MarkerName   string
	Tags         []string
	Content      string
	AiSummary    string
	CreatedAt    time.Time
}

type CreateAccountParams struct {
	ExternalId   string
	Name         string
	Email        string
	PasswordHash string
	OrgCode      string
	Role         string
}

type UpdateProfileParams struct {
	UserId   int
	Name     string
	JobTitle string
}

type CreatePostParams struct {
	ExternalId string
	UserId     int
	Content    string
	Type       string
	Anonymous  bool
	AiToggle   bool
	Tags       []string
	// OriginalPostId is set for reposts created as standalone feed rows.
	OriginalPostId sql.NullInt64
}

type UpdatePostParams struct {
	PostId    int
	Content   string
	Type      string
	Anonymous bool
	AiToggle  bool
	Tags      []string
}

// PostFilter narrows the feed query. Zero values mean "no filter".
type PostFilter struct {
	Type         string
	Tags         []string
	Keyword      string
	InsightsOnly bool
	Page         int
	Limit        int
}

type CreateConversationParams struct {
	ExternalId  string
	Name        string
	Description string
	Type        string
	CreatedBy   int
	// ParticipantIds excludes the creator, who is always added as admin.
	ParticipantIds []int
}

type CreateMessageParams struct {
	ExternalId     string
	ConversationId int
	// SenderId must be null when EncryptedSender is set, and vice versa.
	SenderId        sql.NullInt64
	EncryptedSender sql.NullString
	Content         string
	IsAnonymous     bool
	CreatedAt       time.Time
}

type CreateMeetingParams struct {
	ExternalId   string
	Title        string
	ScheduledAt  time.Time
	RecordingUrl string
	Transcript   string
	Tags         []string
}

type CreateInsightParams struct {
	ExternalId  string
	SourceExtId string
	SourceType  string
	MarkedBy    int
	Tags        []string
	Content     string
	AiSummary   string
}
