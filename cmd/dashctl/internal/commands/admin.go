package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Gopher0727/ProfDash/internal/models"
	"github.com/Gopher0727/ProfDash/internal/repositories"
	"github.com/Gopher0727/ProfDash/internal/services"
	"github.com/Gopher0727/ProfDash/internal/storage"
	"github.com/Gopher0727/ProfDash/middleware/jwt"
)

func newCreateAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a super admin (or professor) account",
		Long: `create-admin bootstraps an account without going through the API.
The password is prompted for on a terminal, or read from the first line of
stdin when --password-stdin is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			role, _ := cmd.Flags().GetString("role")
			fromStdin, _ := cmd.Flags().GetBool("password-stdin")

			password, err := readPassword(cmd, fromStdin)
			if err != nil {
				return err
			}

			cfg, db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer storage.Close(db)

			auth := services.NewAuthService(
				repositories.NewUserRepository(db, nil),
				jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours),
			)
			user, err := auth.CreateUser(background(cmd), &services.CreateUserRequest{
				Email:       email,
				Password:    password,
				DisplayName: name,
				Role:        role,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (id %d)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}
	cmd.Flags().String("email", "", "login email")
	cmd.Flags().String("name", "", "display name (defaults to the email prefix)")
	cmd.Flags().String("role", models.RoleSuperAdmin, "superadmin or professor")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if !fromStdin {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", errors.New("stdin is not a terminal, use --password-stdin")
		}
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
