package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
)

const maxSessionMessages = 500

// SessionService 聊天记录的导入与查询
type SessionService struct {
	groupAccess
	sessions *repositories.SessionRepository
	emitter  *events.Emitter
}

func NewSessionService(groups *repositories.GroupRepository, sessions *repositories.SessionRepository, emitter *events.Emitter) *SessionService {
	return &SessionService{
		groupAccess: groupAccess{groups: groups},
		sessions:    sessions,
		emitter:     emitter,
	}
}

// MessageInput 导入的一条消息
type MessageInput struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// IngestSessionRequest 导入一次会话
// UserID 仅管理员可指定, 其他人导入的会话归属自己
type IngestSessionRequest struct {
	UserID   uint           `json:"user_id"`
	Title    string         `json:"title" binding:"max=200"`
	Messages []MessageInput `json:"messages" binding:"required,min=1,dive"`
}

// Ingest 写入会话及消息
func (s *SessionService) Ingest(ctx context.Context, actor Actor, groupID uint, req *IngestSessionRequest) (*models.Session, error) {
	group, err := s.view(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsArchived() {
		return nil, ErrGroupArchived
	}
	if len(req.Messages) == 0 || len(req.Messages) > maxSessionMessages {
		return nil, fmt.Errorf("%w: a session needs 1-%d messages", ErrInvalidInput, maxSessionMessages)
	}

	owner := actor.UserID
	if req.UserID != 0 && req.UserID != actor.UserID {
		if !actor.IsSuperAdmin() && group.AdministratorID != actor.UserID {
			return nil, ErrForbidden
		}
		owner = req.UserID
	}

	session := &models.Session{
		GroupID:  groupID,
		UserID:   owner,
		Title:    strings.TrimSpace(req.Title),
		Messages: make([]models.Message, 0, len(req.Messages)),
	}
	for i, m := range req.Messages {
		if m.Role != models.MessageRoleUser && m.Role != models.MessageRoleAssistant {
			return nil, fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidInput, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: message %d is empty", ErrInvalidInput, i)
		}
		session.Messages = append(session.Messages, models.Message{Role: m.Role, Content: m.Content})
	}
	if session.Title == "" {
		session.Title = titleFrom(session.Messages[0].Content)
	}

	if err := s.sessions.CreateWithMessages(ctx, session); err != nil {
		return nil, fmt.Errorf("ingest session: %w", err)
	}

	s.emitter.Emit(ctx, events.KindSessionIngested, groupID, actor.UserID, map[string]any{
		"session_id": session.ID,
		"messages":   len(session.Messages),
	})
	return session, nil
}

func titleFrom(content string) string {
	const maxTitle = 60
	content = strings.Join(strings.Fields(content), " ")
	if r := []rune(content); len(r) > maxTitle {
		return string(r[:maxTitle]) + "…"
	}
	return content
}

// List 群组会话列表
func (s *SessionService) List(ctx context.Context, actor Actor, groupID uint, limit, offset int) ([]models.Session, int64, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.sessions.List(ctx, groupID, limit, offset)
}

// Get 会话详情, 管理员或会话所有者可见
func (s *SessionService) Get(ctx context.Context, actor Actor, groupID uint, sessionID string) (*models.Session, error) {
	group, err := s.view(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	session, err := s.sessions.GetWithMessages(ctx, sessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.GroupID != groupID {
		return nil, ErrSessionNotFound
	}
	if !actor.IsSuperAdmin() && group.AdministratorID != actor.UserID && session.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	return session, nil
}

// Delete 删除会话及其消息和反馈
func (s *SessionService) Delete(ctx context.Context, actor Actor, groupID uint, sessionID string) error {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return err
	}
	if _, err := sessionInGroup(ctx, s.sessions, groupID, sessionID); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// sessionInGroup 会话存在且属于该群组
func sessionInGroup(ctx context.Context, sessions *repositories.SessionRepository, groupID uint, sessionID string) (*models.Session, error) {
	session, err := sessions.Get(ctx, sessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.GroupID != groupID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}
