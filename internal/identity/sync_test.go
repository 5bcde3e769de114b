package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"message-service/internal/mocks"
	"message-service/internal/models"
	"message-service/internal/repositories"
)

func createdEvent() models.IdentityEvent {
	return models.IdentityEvent{
		Type: models.IdentityUserCreated,
		Data: models.IdentityEventData{
			ID:             "user_1",
			FirstName:      "Ann",
			LastName:       "Lee",
			EmailAddresses: []models.EmailAddress{{EmailAddress: "ann@example.com"}},
			ImageURL:       "https://img/ann.png",
		},
	}
}

func TestApplyCreate(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)

	users.On("UsernameTaken", mock.Anything, "ann", "user_1").Return(false, nil).Once()
	users.On("UpsertUser", mock.Anything, models.User{
		ID: "user_1", FullName: "Ann Lee", Username: "ann", Email: "ann@example.com", ProfilePicture: "https://img/ann.png",
	}).Return(nil).Once()

	require.NoError(t, s.Apply(context.Background(), createdEvent()))
	users.AssertExpectations(t)
}

func TestApplyCreateUsernameCollision(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	s.suffix = func() int { return 42 }

	users.On("UsernameTaken", mock.Anything, "ann", "user_1").Return(true, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool { return u.Username == "ann42" })).Return(nil).Once()

	require.NoError(t, s.Apply(context.Background(), createdEvent()))
	users.AssertExpectations(t)
}

func TestApplyUpdateKeepsUsername(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	event := createdEvent()
	event.Type = models.IdentityUserUpdated
	event.Data.FirstName = "Annie"

	users.On("GetUser", mock.Anything, "user_1").Return(models.User{ID: "user_1", Username: "ann7"}, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Username == "ann7" && u.FullName == "Annie Lee"
	})).Return(nil).Once()

	require.NoError(t, s.Apply(context.Background(), event))
	users.AssertExpectations(t)
}

func TestApplyUpdateUnknownCreates(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	event := createdEvent()
	event.Type = models.IdentityUserUpdated

	users.On("GetUser", mock.Anything, "user_1").Return(nil, repositories.ErrUserNotFound).Once()
	users.On("UsernameTaken", mock.Anything, "ann", "user_1").Return(false, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, s.Apply(context.Background(), event))
	users.AssertExpectations(t)
}

func TestHandleDeliveryDeleteFromRoutingKey(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	users.On("DeleteUser", mock.Anything, "user_9").Return(nil).Once()

	err := s.HandleDelivery(context.Background(), "identity.user.deleted", []byte(`{"data":{"id":"user_9"}}`))
	require.NoError(t, err)
	users.AssertExpectations(t)
}

func TestHandleDeliveryRejectsBadInput(t *testing.T) {
	s := NewSyncer(new(mocks.UserRepositoryMock))

	assert.Error(t, s.HandleDelivery(context.Background(), "identity.user.created", []byte(`{`)))
	assert.Error(t, s.HandleDelivery(context.Background(), "identity.user.created", []byte(`{"data":{}}`)))
	assert.Error(t, s.HandleDelivery(context.Background(), "identity.other", []byte(`{"data":{"id":"x"}}`)))
}

func TestBaseUsernameFallback(t *testing.T) {
	assert.Equal(t, "ann", baseUsername("ann@example.com", "id"))
	assert.Equal(t, "id", baseUsername("", "id"))
}

func TestApplyCreateRetriesOnInsertRace(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	suffixes := []int{7, 8}
	s.suffix = func() int {
		n := suffixes[0]
		suffixes = suffixes[1:]
		return n
	}

	users.On("UsernameTaken", mock.Anything, "ann", "user_1").Return(false, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool { return u.Username == "ann" })).
		Return(repositories.ErrUsernameTaken).Once()
	users.On("UpsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool { return u.Username == "ann7" })).
		Return(repositories.ErrUsernameTaken).Once()
	users.On("UpsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool { return u.Username == "ann8" })).
		Return(nil).Once()

	require.NoError(t, s.Apply(context.Background(), createdEvent()))
	users.AssertExpectations(t)
}

func TestApplyCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	s := NewSyncer(users)
	s.suffix = func() int { return 1 }

	users.On("UsernameTaken", mock.Anything, "ann", "user_1").Return(false, nil).Once()
	users.On("UpsertUser", mock.Anything, mock.Anything).Return(repositories.ErrUsernameTaken).Times(maxUsernameAttempts)

	err := s.Apply(context.Background(), createdEvent())
	assert.ErrorIs(t, err, repositories.ErrUsernameTaken)
	users.AssertExpectations(t)
}
