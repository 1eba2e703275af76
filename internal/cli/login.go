package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/me/autograde/pkg/model"
)

const identityFileName = "identity.json"

// configDir may be overridden in tests.
var configDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".autograde"), nil
}

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login <user_id> <role>",
		Short: "Save the identity sent with API calls",
		Long: "Store the user id and role that agctl presents to the server. " +
			"The server trusts these headers from its authenticating proxy.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := model.ParseRole(args[1])
			if role == model.RoleAnonymous {
				return fmt.Errorf("unknown role %q (want student, teacher or admin)", args[1])
			}
			id := model.Identity{UserID: args[0], Role: role}

			path, err := identityPath()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			data, err := json.MarshalIndent(id, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal identity: %w", err)
			}
			if err := os.WriteFile(path, data, 0600); err != nil {
				return fmt.Errorf("write identity: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s), saved to %s\n", id.UserID, id.Role, path)
			return nil
		},
	}
	return cmd
}

func identityPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, identityFileName), nil
}

// loadIdentity reads the saved identity, returning the zero value if none.
func loadIdentity() model.Identity {
	p, err := identityPath()
	if err != nil {
		return model.Identity{}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return model.Identity{}
	}
	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return model.Identity{}
	}
	return id
}

// resolveIdentity prefers flags over the saved login.
func resolveIdentity(user, role string) model.Identity {
	id := loadIdentity()
	if user != "" {
		id.UserID = user
	}
	if role != "" {
		id.Role = model.ParseRole(role)
	}
	if id.UserID == "" {
		return model.Identity{Role: model.RoleAnonymous}
	}
	return id
}
