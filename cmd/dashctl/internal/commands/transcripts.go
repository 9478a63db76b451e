package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Gopher0727/ProfDash/internal/consumer"
	"github.com/Gopher0727/ProfDash/internal/events"
	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/services"
	"github.com/Gopher0727/ProfDash/internal/storage"
	"github.com/Gopher0727/ProfDash/internal/transcript"
	logger "github.com/Gopher0727/ProfDash/middleware/log"
	"github.com/Gopher0727/ProfDash/utils/snowflake"
)

type importOptions struct {
	GroupID  uint
	ActorID  uint
	Sessions int
	DryRun   bool
}

func newImportTranscriptsCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import-transcripts <file.json>",
		Short: "Import lecture transcripts as sample chat sessions",
		Long: `import-transcripts reads a {video_id: {title, subject, entries}} file,
splits every video into sessions and ingests each session into the group as
alternating user/assistant messages. Sessions are owned by --as.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			videos, err := transcript.Load(f)
			if err != nil {
				return err
			}

			if opts.DryRun {
				return printPlan(cmd.OutOrStdout(), videos, opts.Sessions)
			}

			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer storage.Close(db)

			l, err := logger.NewLogger(&cfg.Logging)
			if err != nil {
				return err
			}
			defer l.Close()

			n, err := importTranscripts(background(cmd), db, cfg.Server.NodeID, l, videos, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d sessions into group %d\n", n, opts.GroupID)
			return nil
		},
	}
	cmd.Flags().UintVar(&opts.GroupID, "group", 0, "target group id")
	cmd.Flags().UintVar(&opts.ActorID, "as", 0, "user id that owns the sessions (must see the group)")
	cmd.Flags().IntVar(&opts.Sessions, "sessions", transcript.DefaultSessions, "sessions per video")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the extracted segments without writing")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func printPlan(out io.Writer, videos map[string]transcript.Video, n int) error {
	for _, id := range transcript.SortedIDs(videos) {
		v := videos[id]
		total := 0
		sessions := transcript.Sessions(v, n)
		for _, s := range sessions {
			total += len(s.Segments)
		}
		if _, err := fmt.Fprintf(out, "%s: %d segments across %d sessions\n", v.Title, total, len(sessions)); err != nil {
			return err
		}
	}
	return nil
}

// dialogue alternates roles starting with the student.
func dialogue(segments []string) []services.MessageInput {
	msgs := make([]services.MessageInput, len(segments))
	for i, s := range segments {
		role := models.MessageRoleUser
		if i%2 == 1 {
			role = models.MessageRoleAssistant
		}
		msgs[i] = services.MessageInput{Role: role, Content: s}
	}
	return msgs
}

// importTranscripts ingests every non-empty session through the session
// service, so ownership checks and audit events match the API path.
func importTranscripts(ctx context.Context, db *gorm.DB, nodeID int64, l *logger.Logger, videos map[string]transcript.Video, opts importOptions) (int, error) {
	users := repositories.NewUserRepository(db, nil)
	actor, err := users.GetByID(ctx, opts.ActorID)
	if err != nil {
		return 0, fmt.Errorf("load user %d: %w", opts.ActorID, err)
	}

	ids, err := snowflake.NewNode(nodeID)
	if err != nil {
		return 0, err
	}
	audit := consumer.NewEventConsumer(repositories.NewAuditRepository(db), noBroadcast{}, l)
	emitter := events.NewEmitter(ids, events.NewDirect(audit), l)
	sessions := services.NewSessionService(repositories.NewGroupRepository(db), repositories.NewSessionRepository(db), emitter)

	imported := 0
	for _, id := range transcript.SortedIDs(videos) {
		v := videos[id]
		for _, s := range transcript.Sessions(v, opts.Sessions) {
			if len(s.Segments) == 0 {
				continue
			}
			title := strings.TrimSpace(fmt.Sprintf("%s (session %d)", v.Title, s.Number))
			_, err := sessions.Ingest(ctx, services.Actor{UserID: actor.ID, Role: actor.Role}, opts.GroupID, &services.IngestSessionRequest{
				Title:    title,
				Messages: dialogue(s.Segments),
			})
			if err != nil {
				return imported, fmt.Errorf("import %s session %d: %w", id, s.Number, err)
			}
			imported++
		}
	}
	return imported, nil
}
