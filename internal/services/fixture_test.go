package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/storage/storagetest"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
	"github.com/Gopher0727/ProfDash/utils/snowflake"
)

// recorder captures published events in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Handle(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	db       *gorm.DB
	groups   *repositories.GroupRepository
	users    *repositories.UserRepository
	prompts  *repositories.PromptRepository
	sessions *repositories.SessionRepository
	feedback *repositories.FeedbackRepository
	audit    *repositories.AuditRepository
	stats    *repositories.StatsRepository
	events   *recorder
	emitter  *events.Emitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storagetest.NewDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rec := &recorder{}
	return &fixture{
		db:       db,
		groups:   repositories.NewGroupRepository(db),
		users:    repositories.NewUserRepository(db, nil),
		prompts:  repositories.NewPromptRepository(db),
		sessions: repositories.NewSessionRepository(db),
		feedback: repositories.NewFeedbackRepository(db),
		audit:    repositories.NewAuditRepository(db),
		stats:    repositories.NewStatsRepository(db),
		events:   rec,
		emitter:  events.NewEmitter(node, events.NewDirect(rec), logger.NewNop()),
	}
}

func (f *fixture) actor(t *testing.T, email, role string) Actor {
	t.Helper()
	u := &models.User{Email: email, DisplayName: email, PasswordHash: "x", Role: role}
	require.NoError(t, f.db.Create(u).Error)
	return Actor{UserID: u.ID, Role: role}
}

func (f *fixture) groupService() *GroupService {
	return NewGroupService(f.groups, f.emitter)
}

// newGroup creates a group administered by owner.
func (f *fixture) newGroup(t *testing.T, owner Actor, name string) *models.Group {
	t.Helper()
	g, err := f.groupService().Create(context.Background(), owner, &CreateGroupRequest{Name: name})
	require.NoError(t, err)
	return g
}

// join adds actor to the group through its invite code.
func (f *fixture) join(t *testing.T, actor Actor, g *models.Group) {
	t.Helper()
	_, err := f.groupService().Join(context.Background(), actor, g.InviteCode)
	require.NoError(t, err)
}

// newSession ingests a two-turn conversation owned by actor.
func (f *fixture) newSession(t *testing.T, actor Actor, groupID uint) *models.Session {
	t.Helper()
	svc := NewSessionService(f.groups, f.sessions, f.emitter)
	s, err := svc.Ingest(context.Background(), actor, groupID, &IngestSessionRequest{
		Messages: []MessageInput{
			{Role: models.MessageRoleUser, Content: "What is a monad?"},
			{Role: models.MessageRoleAssistant, Content: "A monoid in the category of endofunctors."},
		},
	})
	require.NoError(t, err)
	return s
}
