// Package transcript keeps a durable record of controller sessions. A Store
// implements session.Recorder and answers the queries behind the history
// command.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/docchat/internal/conversation"
	"github.com/zulandar/docchat/internal/models"
	"gorm.io/gorm"
)

// DefaultListLimit caps ListSessions when no limit is given.
const DefaultListLimit = 20

var (
	// ErrNotFound is returned when no session matches an ID or prefix.
	ErrNotFound = errors.New("transcript: session not found")
	// ErrAmbiguous is returned when a prefix matches more than one session.
	ErrAmbiguous = errors.New("transcript: session prefix is ambiguous")
)

// Store persists sessions and turns through gorm.
type Store struct {
	db      *gorm.DB
	backend string
}

// StoreOpts holds parameters for creating a Store.
type StoreOpts struct {
	DB      *gorm.DB
	Backend string // base URL recorded on each new session
}

// NewStore creates a Store. The schema must already be migrated.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("transcript: db is required")
	}
	return &Store{db: opts.DB, backend: opts.Backend}, nil
}

// SessionStarted creates the session row and its greeting turn.
func (s *Store) SessionStarted(ctx context.Context, sessionID string, greeting conversation.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess := models.ChatSession{ID: sessionID, Backend: s.backend}
		if err := tx.Create(&sess).Error; err != nil {
			return fmt.Errorf("transcript: create session: %w", err)
		}
		return createTurn(tx, sessionID, 0, greeting)
	})
}

// TurnAppended records a turn in the session's current epoch.
func (s *Store) TurnAppended(ctx context.Context, sessionID string, turn conversation.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := lookup(tx, sessionID)
		if err != nil {
			return err
		}
		if err := createTurn(tx, sessionID, sess.Resets, turn); err != nil {
			return err
		}
		return touch(tx, sessionID, map[string]interface{}{})
	})
}

// TurnRolledBack flags a recorded turn as removed from the conversation.
func (s *Store) TurnRolledBack(ctx context.Context, sessionID string, sequence int) error {
	result := s.db.WithContext(ctx).Model(&models.ChatTurn{}).
		Where("session_id = ? AND sequence = ?", sessionID, sequence).
		Update("rolled_back", true)
	if result.Error != nil {
		return fmt.Errorf("transcript: roll back turn %d: %w", sequence, result.Error)
	}
	return nil
}

// DocumentAttached records the most recently ingested document.
func (s *Store) DocumentAttached(ctx context.Context, sessionID, document string) error {
	return touch(s.db.WithContext(ctx), sessionID, map[string]interface{}{"document": document})
}

// SessionReset starts a new epoch: the document is cleared and the reset
// message becomes its first turn.
func (s *Store) SessionReset(ctx context.Context, sessionID string, turn conversation.Turn) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, sessionID, map[string]interface{}{
			"resets":   gorm.Expr("resets + 1"),
			"document": "",
		}); err != nil {
			return err
		}
		sess, err := lookup(tx, sessionID)
		if err != nil {
			return err
		}
		return createTurn(tx, sessionID, sess.Resets, turn)
	})
}

// ListSessions returns the most recently active sessions first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.ChatSession, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var sessions []models.ChatSession
	result := s.db.WithContext(ctx).Order("updated_at DESC").Limit(limit).Find(&sessions)
	if result.Error != nil {
		return nil, fmt.Errorf("transcript: list sessions: %w", result.Error)
	}
	return sessions, nil
}

// LoadTurns returns every recorded turn of a session ordered by sequence,
// rolled-back turns included.
func (s *Store) LoadTurns(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	var turns []models.ChatTurn
	result := s.db.WithContext(ctx).Where("session_id = ?", sessionID).
		Order("sequence").Find(&turns)
	if result.Error != nil {
		return nil, fmt.Errorf("transcript: load turns: %w", result.Error)
	}
	return turns, nil
}

// TurnCount returns the number of turns recorded for a session.
func (s *Store) TurnCount(ctx context.Context, sessionID string) (int, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&models.ChatTurn{}).
		Where("session_id = ?", sessionID).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("transcript: turn count: %w", result.Error)
	}
	return int(count), nil
}

// likeEscaper makes LIKE wildcards in user input match literally. The escape
// character is '!' because backslash is treated differently by MySQL and
// SQLite string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// FindSession resolves a full session ID or a unique prefix of one.
func (s *Store) FindSession(ctx context.Context, prefix string) (*models.ChatSession, error) {
	if prefix == "" {
		return nil, ErrNotFound
	}
	var matches []models.ChatSession
	result := s.db.WithContext(ctx).
		Where("id LIKE ? ESCAPE '!'", likeEscaper.Replace(prefix)+"%").
		Limit(2).Find(&matches)
	if result.Error != nil {
		return nil, fmt.Errorf("transcript: find session: %w", result.Error)
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, prefix)
	case 1:
		return &matches[0], nil
	default:
		for i := range matches {
			if matches[i].ID == prefix {
				return &matches[i], nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, prefix)
	}
}

func lookup(tx *gorm.DB, sessionID string) (*models.ChatSession, error) {
	var sess models.ChatSession
	if err := tx.First(&sess, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("transcript: lookup session: %w", err)
	}
	return &sess, nil
}

func createTurn(tx *gorm.DB, sessionID string, epoch int, t conversation.Turn) error {
	row := models.ChatTurn{
		SessionID: sessionID,
		Sequence:  t.Sequence,
		Epoch:     epoch,
		Role:      string(t.Role),
		Content:   t.Content,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("transcript: write %s turn %d: %w", t.Role, t.Sequence, err)
	}
	return nil
}

// touch applies updates to the session row and bumps updated_at.
func touch(tx *gorm.DB, sessionID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := tx.Model(&models.ChatSession{}).Where("id = ?", sessionID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("transcript: update session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}
