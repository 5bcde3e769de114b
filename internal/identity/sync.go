package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"

	"message-service/internal/models"
	"message-service/internal/repositories"
)

// maxUsernameAttempts bounds the suffix retries of a racing insert.
const maxUsernameAttempts = 5

// Syncer mirrors identity provider account events into the users table.
type Syncer struct {
	users  repositories.UserRepository
	suffix func() int
}

// NewSyncer builds a Syncer.
func NewSyncer(users repositories.UserRepository) *Syncer {
	return &Syncer{users: users, suffix: func() int { return rand.Intn(10000) }}
}

// HandleDelivery is a rabbitmq.HandlerFunc for identity events.
func (s *Syncer) HandleDelivery(ctx context.Context, routingKey string, body []byte) error {
	var event models.IdentityEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode identity event: %w", err)
	}
	if event.Type == "" {
		event.Type = strings.TrimPrefix(routingKey, "identity.")
	}
	return s.Apply(ctx, event)
}

// Apply handles one account event.
func (s *Syncer) Apply(ctx context.Context, event models.IdentityEvent) error {
	if event.Data.ID == "" {
		return errors.New("identity event without user id")
	}

	switch event.Type {
	case models.IdentityUserCreated:
		return s.create(ctx, event.Data)
	case models.IdentityUserUpdated:
		existing, err := s.users.GetUser(ctx, event.Data.ID)
		if errors.Is(err, repositories.ErrUserNotFound) {
			return s.create(ctx, event.Data)
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		user := userFromEvent(event.Data)
		user.Username = existing.Username
		if err := s.users.UpsertUser(ctx, user); err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		profile := user.Profile()
		log.Printf("identity user updated user_id=%s username=%s name=%q", profile.ID, profile.Username, profile.FullName)
		return nil
	case models.IdentityUserDeleted:
		if err := s.users.DeleteUser(ctx, event.Data.ID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		log.Printf("identity user deleted user_id=%s", event.Data.ID)
		return nil
	default:
		return fmt.Errorf("unknown identity event type %q", event.Type)
	}
}

func (s *Syncer) create(ctx context.Context, data models.IdentityEventData) error {
	user := userFromEvent(data)
	base := baseUsername(user.Email, data.ID)
	user.Username = base

	taken, err := s.users.UsernameTaken(ctx, user.Username, user.ID)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		user.Username = base + strconv.Itoa(s.suffix())
	}

	for attempt := 1; ; attempt++ {
		err := s.users.UpsertUser(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, repositories.ErrUsernameTaken) || attempt >= maxUsernameAttempts {
			return fmt.Errorf("create user: %w", err)
		}
		user.Username = base + strconv.Itoa(s.suffix())
		log.Printf("identity username collided, retrying user_id=%s attempt=%d username=%s", user.ID, attempt, user.Username)
	}

	profile := user.Profile()
	log.Printf("identity user created user_id=%s username=%s name=%q", profile.ID, profile.Username, profile.FullName)
	return nil
}

func userFromEvent(data models.IdentityEventData) models.User {
	user := models.User{
		ID:             data.ID,
		FullName:       strings.TrimSpace(data.FirstName + " " + data.LastName),
		ProfilePicture: data.ImageURL,
	}
	if len(data.EmailAddresses) > 0 {
		user.Email = data.EmailAddresses[0].EmailAddress
	}
	return user
}

func baseUsername(email, fallback string) string {
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return fallback
}
