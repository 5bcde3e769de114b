package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"message-service/internal/media"
	"message-service/internal/models"
	"message-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageWithSender(ctx context.Context, messageID int) (models.Message, models.UserProfile, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	var sender models.UserProfile
	if val := args.Get(1); val != nil {
		sender = val.(models.UserProfile)
	}
	return msg, sender, args.Error(2)
}

func (m *MessageRepositoryMock) ListConversation(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, peerID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkSeen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	args := m.Called(ctx, fromUserID, toUserID)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MessageRepositoryMock) ListRecent(ctx context.Context, userID string) ([]models.RecentMessage, error) {
	args := m.Called(ctx, userID)
	var msgs []models.RecentMessage
	if val := args.Get(0); val != nil {
		msgs = val.([]models.RecentMessage)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnseenDigests(ctx context.Context) ([]models.UnseenDigest, error) {
	args := m.Called(ctx)
	var digests []models.UnseenDigest
	if val := args.Get(0); val != nil {
		digests = val.([]models.UnseenDigest)
	}
	return digests, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	args := m.Called(ctx, username, exceptID)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) UpsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) DeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, fileName string, file io.Reader) (string, error) {
	data, _ := io.ReadAll(file)
	args := m.Called(ctx, fileName, string(data))
	return args.String(0), args.Error(1)
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ media.Uploader = (*UploaderMock)(nil)
