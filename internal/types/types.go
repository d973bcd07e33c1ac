package types

import (
	"time"
)

type Role string

const (
	RoleAdmin    Role = "Admin"
	RoleReviewer Role = "Reviewer"
	RoleMember   Role = "Member"
)

// Elevated reports whether the role may curate insights.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleReviewer
}

type User struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	OrgCode   string    `json:"org_code,omitempty"`
	Role      Role      `json:"role,omitempty"`
	JobTitle  string    `json:"job_title,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Author is the public sender shape attached to messages, posts and
// comments. Anonymous content always carries the literal AnonymousName
// with an empty id.
type Author struct {
	Id   string `json:"id,omitempty"`
	Name string `json:"name"`
}

const AnonymousName = "Anonymous"

// AnonymousAuthor masks the sender of anonymous content.
func AnonymousAuthor() Author {
	return Author{Name: AnonymousName}
}

type ConversationType string

const (
	ConversationTeam   ConversationType = "team"
	ConversationDirect ConversationType = "dm"
)

type Conversation struct {
	Id           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Type         ConversationType `json:"type"`
	Participants []User           `json:"participants,omitempty"`
	Admins       []User           `json:"admins,omitempty"`
	Reviewers    []User           `json:"reviewers,omitempty"`
	CreatedBy    string           `json:"created_by,omitempty"`
	LastMessage  *LastMessage     `json:"last_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at,omitempty"`
}

type LastMessage struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is the one canonical wire shape for chat messages. Field-name
// aliases used by older clients (content/text, timestamp/createdAt) are
// translated at this boundary and nowhere else.
type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	Author         Author    `json:"author"`
	Text           string    `json:"text"`
	Anonymous      bool      `json:"anonymous"`
	IsInsight      bool      `json:"is_insight"`
	CreatedAt      time.Time `json:"created_at"`
}

type PostType string

const (
	PostReflection PostType = "Reflection"
	PostUpdate     PostType = "Update"
	PostDecision   PostType = "Decision"
	PostMeeting    PostType = "Meeting"
)

type Post struct {
	Id           string     `json:"id"`
	Author       Author     `json:"author"`
	Content      string     `json:"content"`
	Type         PostType   `json:"type"`
	Anonymous    bool       `json:"anonymous"`
	AiToggle     bool       `json:"ai_toggle"`
	Reactions    []Reaction `json:"reactions"`
	Comments     []Comment  `json:"comments"`
	Reposts      []Repost   `json:"reposts"`
	OriginalPost *Post      `json:"original_post,omitempty"`
	IsInsight    bool       `json:"is_insight"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Reaction struct {
	Author    Author    `json:"author"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	Id        string    `json:"id"`
	Author    Author    `json:"author"`
	Text      string    `json:"text"`
	Anonymous bool      `json:"anonymous"`
	CreatedAt time.Time `json:"created_at"`
}

type Repost struct {
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

type Meeting struct {
	Id           string    `json:"id"`
	Title        string    `json:"title"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	RecordingUrl string    `json:"recording_url"`
	Transcript   string    `json:"transcript"`
	// InsightLines holds the transcript line indices curated as insights.
	InsightLines []int    `json:"insight_lines"`
	Tags         []string `json:"tags"`
	Participants []User   `json:"participants,omitempty"`
}

type InsightSource string

const (
	InsightSourceMessage InsightSource = "Message"
	InsightSourcePost    InsightSource = "Post"
)

type Insight struct {
	Id         string        `json:"id"`
	SourceId   string        `json:"source_id"`
	SourceType InsightSource `json:"source_type"`
	MarkedBy   Author        `json:"marked_by"`
	Tags       []string      `json:"tags"`
	Content    string        `json:"content"`
	AiSummary  string        `json:"ai_summary,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

type PersonaFeedback struct {
	Persona  string `json:"persona"`
	Feedback string `json:"feedback"`
}
