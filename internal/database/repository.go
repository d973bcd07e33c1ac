package database

import "time"

type Repository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountByEmail(email string) (User, error)
	GetAccountByExternalId(externalId string) (User, error)
	UpdateProfile(params UpdateProfileParams) (User, error)
	ListOrgUsers(orgCode string) ([]User, error)

	CreatePost(params CreatePostParams) (Post, error)
	GetPostByExternalId(externalId string) (Post, error)
	ListPosts(filter PostFilter) ([]Post, int, error)
	UpdatePost(params UpdatePostParams) (Post, error)
	DeletePost(postId int) error
	AddReaction(postId, userId int, emoji string) error
	AddComment(externalId string, postId, userId int, text string, anonymous bool) error
	AddRepost(postId, userId int) error
	SetPostInsight(postId int, isInsight bool, markedBy int) error

	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversationByExternalId(externalId string) (Conversation, error)
	ListConversations(userId int) ([]Conversation, error)
	UpdateConversation(conversationId int, name, description string) error
	DeleteConversation(conversationId int) error
	AddParticipants(conversationId int, userIds []int) error
	RemoveParticipant(conversationId, userId int) error
	SetAdmin(conversationId, userId int, isAdmin bool) error
	SetReviewers(conversationId int, userIds []int) error

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageByExternalId(externalId string) (Message, error)
	ListMessages(conversationId int, insightsOnly bool, limit int) ([]Message, error)
	SetMessageInsight(messageId int, isInsight bool) error
	UpdateConversationLastMessage(conversationId int, text string, at time.Time) error

	CreateMeeting(params CreateMeetingParams) (Meeting, error)
	ListMeetings() ([]Meeting, error)
	GetMeetingByExternalId(externalId string) (Meeting, error)
	DeleteMeeting(meetingId int) error
	SetTranscriptInsights(meetingId int, lines []int) error

	CreateInsight(params CreateInsightParams) (Insight, error)
	ListInsights(tag string) ([]Insight, error)
}
