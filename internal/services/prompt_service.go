package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/utils"
)

const maxPromptLength = 20000

// PromptService 系统提示词版本管理
type PromptService struct {
	groupAccess
	prompts *repositories.PromptRepository
	emitter *events.Emitter
}

func NewPromptService(groups *repositories.GroupRepository, prompts *repositories.PromptRepository, emitter *events.Emitter) *PromptService {
	return &PromptService{
		groupAccess: groupAccess{groups: groups},
		prompts:     prompts,
		emitter:     emitter,
	}
}

// CreatePromptRequest 新建提示词版本
type CreatePromptRequest struct {
	Content string `json:"content" binding:"required"`
	Note    string `json:"note" binding:"max=255"`
}

// Current 当前生效的提示词
func (s *PromptService) Current(ctx context.Context, actor Actor, groupID uint) (*models.Prompt, error) {
	if _, err := s.view(ctx, actor, groupID); err != nil {
		return nil, err
	}
	prompt, err := s.prompts.Latest(ctx, groupID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPromptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	return prompt, nil
}

// History 历史版本, 新版本在前
func (s *PromptService) History(ctx context.Context, actor Actor, groupID uint, limit, offset int) ([]models.Prompt, int64, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, 0, err
	}
	return s.prompts.List(ctx, groupID, limit, offset)
}

// Version 获取某个历史版本
func (s *PromptService) Version(ctx context.Context, actor Actor, groupID uint, version int) (*models.Prompt, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	return s.version(ctx, groupID, version)
}

func (s *PromptService) version(ctx context.Context, groupID uint, version int) (*models.Prompt, error) {
	prompt, err := s.prompts.GetVersion(ctx, groupID, version)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPromptVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load prompt version: %w", err)
	}
	return prompt, nil
}

// Create 保存新版本, 版本号为当前最大值 + 1
func (s *PromptService) Create(ctx context.Context, actor Actor, groupID uint, req *CreatePromptRequest) (*models.Prompt, error) {
	if !utils.LengthBetween(strings.TrimSpace(req.Content), 1, maxPromptLength) {
		return nil, fmt.Errorf("%w: prompt must be 1-%d characters", ErrInvalidInput, maxPromptLength)
	}
	return s.save(ctx, actor, groupID, req.Content, strings.TrimSpace(req.Note))
}

// Revert 以旧版本内容创建新版本
func (s *PromptService) Revert(ctx context.Context, actor Actor, groupID uint, version int) (*models.Prompt, error) {
	if _, err := s.manage(ctx, actor, groupID); err != nil {
		return nil, err
	}
	old, err := s.version(ctx, groupID, version)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, actor, groupID, old.Content, fmt.Sprintf("revert to v%d", version))
}

func (s *PromptService) save(ctx context.Context, actor Actor, groupID uint, content, note string) (*models.Prompt, error) {
	group, err := s.manage(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	if group.IsArchived() {
		return nil, ErrGroupArchived
	}

	prompt := &models.Prompt{
		GroupID:  groupID,
		Content:  content,
		AuthorID: actor.UserID,
		Note:     note,
	}
	if err := s.prompts.CreateNextVersion(ctx, prompt); err != nil {
		return nil, fmt.Errorf("save prompt: %w", err)
	}

	s.emitter.Emit(ctx, events.KindPromptUpdated, groupID, actor.UserID, map[string]any{
		"version": prompt.Version,
		"note":    prompt.Note,
	})
	return prompt, nil
}
