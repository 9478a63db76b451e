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

// FeedbackService 管理员评审与学生点赞/点踩
type FeedbackService struct {
	groupAccess
	sessions *repositories.SessionRepository
	feedback *repositories.FeedbackRepository
	emitter  *events.Emitter
}

func NewFeedbackService(
	groups *repositories.GroupRepository,
	sessions *repositories.SessionRepository,
	feedback *repositories.FeedbackRepository,
	emitter *events.Emitter,
) *FeedbackService {
	return &FeedbackService{
		groupAccess: groupAccess{groups: groups},
		sessions:    sessions,
		feedback:    feedback,
		emitter:     emitter,
	}
}

// AdminFeedbackRequest 管理员对某条回复的评审
type AdminFeedbackRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	MessageID  uint   `json:"message_id" binding:"required"`
	Verdict    string `json:"verdict" binding:"required,oneof=correct incorrect partial"`
	Text       string `json:"text" binding:"max=5000"`
	Correction string `json:"correction" binding:"max=20000"`
	Apply      bool   `json:"apply"`
}

// UpdateAdminFeedbackRequest nil 表示不修改
type UpdateAdminFeedbackRequest struct {
	Verdict    *string `json:"verdict" binding:"omitempty,oneof=correct incorrect partial"`
	Text       *string `json:"text" binding:"omitempty,max=5000"`
	Correction *string `json:"correction" binding:"omitempty,max=20000"`
}

// UserFeedbackRequest 学生反馈
type UserFeedbackRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	MessageID uint   `json:"message_id" binding:"required"`
	Verdict   string `json:"verdict" binding:"required,oneof=like dislike"`
	Comment   string `json:"comment" binding:"max=2000"`
}

// AdminFeedbackQuery 列表过滤条件
type AdminFeedbackQuery struct {
	Verdict   string `form:"verdict" binding:"omitempty,oneof=correct incorrect partial"`
	Applied   *bool  `form:"applied"`
	SessionID string `form:"session_id"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

type UserFeedbackQuery struct {
	Verdict string `form:"verdict" binding:"omitempty,oneof=like dislike"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

func validAdminVerdict(v string) bool {
	return v == models.VerdictCorrect || v == models.VerdictIncorrect || v == models.VerdictPartial
}

// checkMessage 消息存在且属于该群组的会话
func (s *FeedbackService) checkMessage(ctx context.Context, groupID uint, sessionID string, messageID uint) error {
	if _, err := sessionInGroup(ctx, s.sessions, groupID, sessionID); err != nil {
		return err
	}
	_, err := s.sessions.GetMessage(ctx, sessionID, messageID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	return nil
}

// CreateAdmin 创建管理员评审
func (s *FeedbackService) CreateAdmin(ctx context.Context, actor Actor, groupID uint, req *AdminFeedbackRequest) (*models.AdminFeedback, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	if !validAdminVerdict(req.Verdict) {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrInvalidInput, req.Verdict)
	}
	if err := s.checkMessage(ctx, groupID, req.SessionID, req.MessageID); err != nil {
		return nil, err
	}

	fb := &models.AdminFeedback{
		GroupID:    groupID,
		SessionID:  req.SessionID,
		MessageID:  req.MessageID,
		ReviewerID: actor.UserID,
		Verdict:    req.Verdict,
		Text:       strings.TrimSpace(req.Text),
		Correction: strings.TrimSpace(req.Correction),
		Apply:      req.Apply,
	}
	if err := s.feedback.CreateAdmin(ctx, fb); err != nil {
		return nil, fmt.Errorf("create feedback: %w", err)
	}

	s.emitter.Emit(ctx, events.KindFeedbackCreated, groupID, actor.UserID, map[string]any{
		"type":        "admin",
		"feedback_id": fb.ID,
		"verdict":     fb.Verdict,
	})
	return fb, nil
}

func (s *FeedbackService) adminInGroup(ctx context.Context, groupID, id uint) (*models.AdminFeedback, error) {
	fb, err := s.feedback.GetAdmin(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrFeedbackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	if fb.GroupID != groupID {
		return nil, ErrFeedbackNotFound
	}
	return fb, nil
}

// UpdateAdmin 修改评审内容
func (s *FeedbackService) UpdateAdmin(ctx context.Context, actor Actor, groupID, id uint, req *UpdateAdminFeedbackRequest) (*models.AdminFeedback, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	fb, err := s.adminInGroup(ctx, groupID, id)
	if err != nil {
		return nil, err
	}

	if req.Verdict != nil {
		if !validAdminVerdict(*req.Verdict) {
			return nil, fmt.Errorf("%w: unknown verdict %q", ErrInvalidInput, *req.Verdict)
		}
		fb.Verdict = *req.Verdict
	}
	if req.Text != nil {
		fb.Text = strings.TrimSpace(*req.Text)
	}
	if req.Correction != nil {
		fb.Correction = strings.TrimSpace(*req.Correction)
	}
	if err := s.feedback.UpdateAdmin(ctx, fb); err != nil {
		return nil, fmt.Errorf("update feedback: %w", err)
	}
	return fb, nil
}

// SetApply 切换 "应用到提示词" 标记
func (s *FeedbackService) SetApply(ctx context.Context, actor Actor, groupID, id uint, apply bool) (*models.AdminFeedback, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	fb, err := s.adminInGroup(ctx, groupID, id)
	if err != nil {
		return nil, err
	}
	if fb.Apply == apply {
		return fb, nil
	}

	fb.Apply = apply
	if err := s.feedback.UpdateAdmin(ctx, fb); err != nil {
		return nil, fmt.Errorf("update feedback: %w", err)
	}
	s.emitter.Emit(ctx, events.KindFeedbackApplied, groupID, actor.UserID, map[string]any{
		"feedback_id": fb.ID,
		"apply":       apply,
	})
	return fb, nil
}

// DeleteAdmin 删除评审
func (s *FeedbackService) DeleteAdmin(ctx context.Context, actor Actor, groupID, id uint) error {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return err
	}
	if _, err := s.adminInGroup(ctx, groupID, id); err != nil {
		return err
	}
	if err := s.feedback.DeleteAdmin(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrFeedbackNotFound
		}
		return fmt.Errorf("delete feedback: %w", err)
	}
	return nil
}

// ListAdmin 按条件列出评审
func (s *FeedbackService) ListAdmin(ctx context.Context, actor Actor, groupID uint, q *AdminFeedbackQuery) ([]models.AdminFeedback, int64, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.feedback.ListAdmin(ctx, repositories.AdminFeedbackFilter{
		GroupID:   groupID,
		Verdict:   q.Verdict,
		Applied:   q.Applied,
		SessionID: q.SessionID,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
}

// CreateUser 群成员对回复点赞/点踩
func (s *FeedbackService) CreateUser(ctx context.Context, actor Actor, groupID uint, req *UserFeedbackRequest) (*models.UserFeedback, error) {
	if _, err := s.view(ctx, actor, groupID); err != nil {
		return nil, err
	}
	if req.Verdict != models.VerdictLike && req.Verdict != models.VerdictDislike {
		return nil, fmt.Errorf("%w: unknown verdict %q", ErrInvalidInput, req.Verdict)
	}
	if err := s.checkMessage(ctx, groupID, req.SessionID, req.MessageID); err != nil {
		return nil, err
	}

	fb := &models.UserFeedback{
		GroupID:   groupID,
		SessionID: req.SessionID,
		MessageID: req.MessageID,
		UserID:    actor.UserID,
		Verdict:   req.Verdict,
		Comment:   strings.TrimSpace(req.Comment),
	}
	if err := s.feedback.CreateUser(ctx, fb); err != nil {
		return nil, fmt.Errorf("create feedback: %w", err)
	}

	s.emitter.Emit(ctx, events.KindFeedbackCreated, groupID, actor.UserID, map[string]any{
		"type":        "user",
		"feedback_id": fb.ID,
		"verdict":     fb.Verdict,
	})
	return fb, nil
}

// ListUser 列出学生反馈
func (s *FeedbackService) ListUser(ctx context.Context, actor Actor, groupID uint, q *UserFeedbackQuery) ([]models.UserFeedback, int64, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.feedback.ListUser(ctx, repositories.UserFeedbackFilter{
		GroupID: groupID,
		Verdict: q.Verdict,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}
