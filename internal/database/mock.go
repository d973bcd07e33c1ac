package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) GetAccountByExternalId(externalId string) (User, error) {
	args := m.Called(externalId)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) UpdateProfile(params UpdateProfileParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}

func (m *MockRepository) ListOrgUsers(orgCode string) ([]User, error) {
	args := m.Called(orgCode)
	return args.Get(0).([]User), args.Error(1)
}

func (m *MockRepository) CreatePost(params CreatePostParams) (Post, error) {
	args := m.Called(params)
	return args.Get(0).(Post), args.Error(1)
}

func (m *MockRepository) GetPostByExternalId(externalId string) (Post, error) {
	args := m.Called(externalId)
	return args.Get(0).(Post), args.Error(1)
}

func (m *MockRepository) ListPosts(filter PostFilter) ([]Post, int, error) {
	args := m.Called(filter)
	return args.Get(0).([]Post), args.Int(1), args.Error(2)
}

func (m *MockRepository) UpdatePost(params UpdatePostParams) (Post, error) {
	args := m.Called(params)
	return args.Get(0).(Post), args.Error(1)
}

func (m *MockRepository) DeletePost(postId int) error {
	args := m.Called(postId)
	return args.Error(0)
}

func (m *MockRepository) AddReaction(postId, userId int, emoji string) error {
	args := m.Called(postId, userId, emoji)
	return args.Error(0)
}

func (m *MockRepository) AddComment(externalId string, postId, userId int, text string, anonymous bool) error {
	args := m.Called(externalId, postId, userId, text, anonymous)
	return args.Error(0)
}

func (m *MockRepository) AddRepost(postId, userId int) error {
	args := m.Called(postId, userId)
	return args.Error(0)
}

func (m *MockRepository) SetPostInsight(postId int, isInsight bool, markedBy int) error {
	args := m.Called(postId, isInsight, markedBy)
	return args.Error(0)
}

func (m *MockRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockRepository) GetConversationByExternalId(externalId string) (Conversation, error) {
	args := m.Called(externalId)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockRepository) ListConversations(userId int) ([]Conversation, error) {
	args := m.Called(userId)
	return args.Get(0).([]Conversation), args.Error(1)
}

func (m *MockRepository) UpdateConversation(conversationId int, name, description string) error {
	args := m.Called(conversationId, name, description)
	return args.Error(0)
}

func (m *MockRepository) DeleteConversation(conversationId int) error {
	args := m.Called(conversationId)
	return args.Error(0)
}

func (m *MockRepository) AddParticipants(conversationId int, userIds []int) error {
	args := m.Called(conversationId, userIds)
	return args.Error(0)
}

func (m *MockRepository) RemoveParticipant(conversationId, userId int) error {
	args := m.Called(conversationId, userId)
	return args.Error(0)
}

func (m *MockRepository) SetAdmin(conversationId, userId int, isAdmin bool) error {
	args := m.Called(conversationId, userId, isAdmin)
	return args.Error(0)
}

func (m *MockRepository) SetReviewers(conversationId int, userIds []int) error {
	args := m.Called(conversationId, userIds)
	return args.Error(0)
}

func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) GetMessageByExternalId(externalId string) (Message, error) {
	args := m.Called(externalId)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockRepository) ListMessages(conversationId int, insightsOnly bool, limit int) ([]Message, error) {
	args := m.Called(conversationId, insightsOnly, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockRepository) SetMessageInsight(messageId int, isInsight bool) error {
	args := m.Called(messageId, isInsight)
	return args.Error(0)
}

func (m *MockRepository) UpdateConversationLastMessage(conversationId int, text string, at time.Time) error {
	args := m.Called(conversationId, text, at)
	return args.Error(0)
}

func (m *MockRepository) CreateMeeting(params CreateMeetingParams) (Meeting, error) {
	args := m.Called(params)
	return args.Get(0).(Meeting), args.Error(1)
}

func (m *MockRepository) ListMeetings() ([]Meeting, error) {
	args := m.Called()
	return args.Get(0).([]Meeting), args.Error(1)
}

func (m *MockRepository) GetMeetingByExternalId(externalId string) (Meeting, error) {
	args := m.Called(externalId)
	return args.Get(0).(Meeting), args.Error(1)
}

func (m *MockRepository) DeleteMeeting(meetingId int) error {
	args := m.Called(meetingId)
	return args.Error(0)
}

func (m *MockRepository) SetTranscriptInsights(meetingId int, lines []int) error {
	args := m.Called(meetingId, lines)
	return args.Error(0)
}

func (m *MockRepository) CreateInsight(params CreateInsightParams) (Insight, error) {
	args := m.Called(params)
	return args.Get(0).(Insight), args.Error(1)
}

func (m *MockRepository) ListInsights(tag string) ([]Insight, error) {
	args := m.Called(tag)
	return args.Get(0).([]Insight), args.Error(1)
}
