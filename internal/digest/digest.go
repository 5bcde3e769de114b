package digest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"message-service/internal/models"
	"message-service/internal/repositories"
)

// RoutingKey is where digest email jobs are published.
const RoutingKey = "email.unseen_digest"

// Publisher hands email jobs to the broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// EmailJob asks the mail worker to remind one user about unseen messages.
type EmailJob struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Unseen   int    `json:"unseen"`
	Subject  string `json:"subject"`
	RunID    string `json:"run_id"`
}

// Scheduler runs the unseen-message digest on a cron expression.
type Scheduler struct {
	cron      string
	messages  repositories.MessageRepository
	publisher Publisher
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

// NewScheduler builds a Scheduler. The cron expression must already be valid.
func NewScheduler(cron string, messages repositories.MessageRepository, publisher Publisher) *Scheduler {
	return &Scheduler{cron: cron, messages: messages, publisher: publisher, now: time.Now}
}

// Run waits for each cron tick and runs the digest until ctx is cancelled.
// An empty cron expression disables the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cron == "" {
		log.Printf("digest disabled: empty cron")
		<-ctx.Done()
		return nil
	}
	log.Printf("digest enabled cron=%q", s.cron)

	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			return fmt.Errorf("next digest tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("digest run failed: %v", err)
			}
		}
	}
}

// RunOnce publishes one email job per recipient with unseen messages and
// returns how many were published. Overlapping runs are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runID := fmt.Sprintf("digest-%d", s.now().UnixNano())
	digests, err := s.messages.UnseenDigests(ctx)
	if err != nil {
		return 0, fmt.Errorf("load unseen digests: %w", err)
	}

	published := 0
	for _, d := range digests {
		if d.Unseen <= 0 {
			continue
		}
		job := newEmailJob(d, runID)
		if err := s.publisher.Publish(ctx, RoutingKey, job, map[string]string{"x-request-id": runID}); err != nil {
			log.Printf("digest publish failed run_id=%s user_id=%s: %v", runID, d.UserID, err)
			continue
		}
		published++
	}
	log.Printf("digest run complete run_id=%s recipients=%d published=%d", runID, len(digests), published)
	return published, nil
}

func newEmailJob(d models.UnseenDigest, runID string) EmailJob {
	subject := fmt.Sprintf("You have %d unseen messages", d.Unseen)
	if d.Unseen == 1 {
		subject = "You have 1 unseen message"
	}
	return EmailJob{
		UserID:   d.UserID,
		Email:    d.Email,
		FullName: d.FullName,
		Unseen:   d.Unseen,
		Subject:  subject,
		RunID:    runID,
	}
}
