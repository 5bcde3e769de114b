package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"message-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, from_user_id, to_user_id, text, message_type, media_url, seen, created_at`

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error)
	GetMessageWithSender(ctx context.Context, messageID int) (models.Message, models.UserProfile, error)
	ListConversation(ctx context.Context, userID, peerID string) ([]models.Message, error)
	MarkSeen(ctx context.Context, fromUserID, toUserID string) (int64, error)
	ListRecent(ctx context.Context, userID string) ([]models.RecentMessage, error)
	UnseenDigests(ctx context.Context) ([]models.UnseenDigest, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message. New messages are always unseen.
func (r *MessageRepo) CreateMessage(ctx context.Context, in models.NewMessage) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (from_user_id, to_user_id, text, message_type, media_url, seen)
        VALUES ($1, $2, $3, $4, $5, FALSE) RETURNING `+messageColumns,
		in.FromUserID, in.ToUserID, in.Text, in.MessageType, in.MediaURL).StructScan(&msg)
	return msg, err
}

// GetMessageWithSender re-reads a message joined with its sender profile.
// A sender without a synced user row yields a profile holding only the id.
func (r *MessageRepo) GetMessageWithSender(ctx context.Context, messageID int) (models.Message, models.UserProfile, error) {
	var row struct {
		models.Message
		SenderName     sql.NullString `db:"sender_full_name"`
		SenderUsername sql.NullString `db:"sender_username"`
		SenderPicture  sql.NullString `db:"sender_profile_picture"`
	}
	query := `SELECT m.id, m.from_user_id, m.to_user_id, m.text, m.message_type, m.media_url, m.seen, m.created_at,
            u.full_name AS sender_full_name, u.username AS sender_username, u.profile_picture AS sender_profile_picture
        FROM messages m
        LEFT JOIN users u ON u.id = m.from_user_id
        WHERE m.id=$1`
	err := r.db.GetContext(ctx, &row, query, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.UserProfile{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, models.UserProfile{}, err
	}
	sender := models.UserProfile{
		ID:             row.FromUserID,
		FullName:       row.SenderName.String,
		Username:       row.SenderUsername.String,
		ProfilePicture: row.SenderPicture.String,
	}
	return row.Message, sender, nil
}

// ListConversation returns every message exchanged between two users, oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, peerID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (from_user_id=$1 AND to_user_id=$2) OR (from_user_id=$2 AND to_user_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userID, peerID)
	return msgs, err
}

// MarkSeen flags every message sent by fromUserID to toUserID as seen.
func (r *MessageRepo) MarkSeen(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET seen = TRUE WHERE from_user_id=$1 AND to_user_id=$2 AND seen = FALSE`, fromUserID, toUserID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListRecent returns the messages a user sent or received, newest first, with
// both participants populated.
func (r *MessageRepo) ListRecent(ctx context.Context, userID string) ([]models.RecentMessage, error) {
	query := `SELECT m.id, m.from_user_id, m.to_user_id, m.text, m.message_type, m.media_url, m.seen, m.created_at,
            COALESCE(fu.full_name, '') AS from_full_name, COALESCE(fu.username, '') AS from_username,
            COALESCE(fu.profile_picture, '') AS from_profile_picture,
            COALESCE(tu.full_name, '') AS to_full_name, COALESCE(tu.username, '') AS to_username,
            COALESCE(tu.profile_picture, '') AS to_profile_picture
        FROM messages m
        LEFT JOIN users fu ON fu.id = m.from_user_id
        LEFT JOIN users tu ON tu.id = m.to_user_id
        WHERE m.from_user_id=$1 OR m.to_user_id=$1
        ORDER BY m.created_at DESC, m.id DESC`
	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.RecentMessage{}
	for rows.Next() {
		var rm models.RecentMessage
		if err := rows.Scan(&rm.ID, &rm.FromUserID, &rm.ToUserID, &rm.Text, &rm.MessageType, &rm.MediaURL, &rm.Seen, &rm.CreatedAt,
			&rm.FromUser.FullName, &rm.FromUser.Username, &rm.FromUser.ProfilePicture,
			&rm.ToUser.FullName, &rm.ToUser.Username, &rm.ToUser.ProfilePicture); err != nil {
			return nil, err
		}
		rm.FromUser.ID = rm.FromUserID
		rm.ToUser.ID = rm.ToUserID
		result = append(result, rm)
	}
	return result, rows.Err()
}

// UnseenDigests counts unseen messages per recipient that has an email address.
func (r *MessageRepo) UnseenDigests(ctx context.Context) ([]models.UnseenDigest, error) {
	query := `SELECT m.to_user_id, u.full_name, u.email, COUNT(*) AS unseen
        FROM messages m
        JOIN users u ON u.id = m.to_user_id
        WHERE m.seen = FALSE AND u.email <> ''
        GROUP BY m.to_user_id, u.full_name, u.email
        ORDER BY m.to_user_id`
	digests := []models.UnseenDigest{}
	err := r.db.SelectContext(ctx, &digests, query)
	return digests, err
}
