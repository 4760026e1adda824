package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/expiry"
	"github.com/tokenwarden/tokenwarden/internal/models"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

// integrationsCmd represents the integrations command
var integrationsCmd = &cobra.Command{
	Use:     "integrations",
	Aliases: []string{"int", "creds"},
	Short:   "List and disconnect stored integrations",
	Long: `Inspect the stored OAuth integrations.

The list shows each integration's lifecycle state and how close its
access and refresh tokens are to expiry. Token values are never printed.

Example:
  tokenwarden integrations list
  tokenwarden integrations disconnect cred-123`,
}

var integrationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored integrations with expiration state",
	RunE:  runIntegrationsList,
}

var integrationsDisconnectCmd = &cobra.Command{
	Use:   "disconnect <credential-id>",
	Short: "Mark an integration as disconnected",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntegrationsDisconnect,
}

var integrationsFlags struct {
	UserID   string
	Platform string
}

func init() {
	integrationsListCmd.Flags().StringVar(&integrationsFlags.UserID, "user", "", "Filter by user ID")
	integrationsListCmd.Flags().StringVar(&integrationsFlags.Platform, "platform", "", "Filter by platform")

	integrationsCmd.AddCommand(integrationsListCmd)
	integrationsCmd.AddCommand(integrationsDisconnectCmd)
	RootCmd.AddCommand(integrationsCmd)
}

func openCredentialStore() (*store.SQLiteStore, *crypto.Codec, error) {
	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	codec, err := crypto.NewCodecFromHex(cfg.Encryption.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize credential codec: %w", err)
	}

	dbPath := cfg.Storage.Path
	if globalFlags.DBPath != "" {
		dbPath = globalFlags.DBPath
	}
	sqliteStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open SQLite store: %w", err)
	}

	return sqliteStore, codec, nil
}

type integrationRow struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	Platform       string `json:"platform"`
	Status         string `json:"status"`
	AccessDisplay  string `json:"access_token"`
	RefreshDisplay string `json:"refresh_token"`
	NeedsReconnect bool   `json:"needs_reconnect"`
}

func runIntegrationsList(cmd *cobra.Command, args []string) error {
	st, codec, err := openCredentialStore()
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := st.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	classifier := expiry.NewClassifier(expiry.DefaultThresholds())
	now := time.Now().UTC()

	rows := make([]integrationRow, 0, len(creds))
	for i := range creds {
		cred := &creds[i]
		if integrationsFlags.UserID != "" && cred.UserID != integrationsFlags.UserID {
			continue
		}
		if integrationsFlags.Platform != "" && string(cred.Platform) != integrationsFlags.Platform {
			continue
		}

		row := integrationRow{
			ID:             cred.ID,
			UserID:         cred.UserID,
			Platform:       string(cred.Platform),
			Status:         string(cred.Status),
			AccessDisplay:  "-",
			RefreshDisplay: "-",
		}

		if fields, err := codec.Decrypt(cred.EncryptedFields); err == nil {
			fields = fields.Normalize()
			var accessExpiry, refreshExpiry *time.Time
			if t, ok := fields.ExpiryTime(models.FieldExpiresAt); ok {
				accessExpiry = &t
			}
			if t, ok := fields.ExpiryTime(models.FieldRefreshTokenExpiresAt); ok {
				refreshExpiry = &t
			}
			assessment := classifier.Classify(now, accessExpiry, refreshExpiry)
			if assessment.AccessTokenDisplayText != nil {
				row.AccessDisplay = *assessment.AccessTokenDisplayText
			}
			if assessment.RefreshTokenDisplayText != nil {
				row.RefreshDisplay = *assessment.RefreshTokenDisplayText
			}
			row.NeedsReconnect = assessment.NeedsReconnect
		} else {
			row.AccessDisplay = "undecryptable"
			row.RefreshDisplay = "undecryptable"
		}

		rows = append(rows, row)
	}

	if globalFlags.JSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tPLATFORM\tSTATUS\tACCESS\tREFRESH\tRECONNECT")
	for _, row := range rows {
		reconnect := ""
		if row.NeedsReconnect {
			reconnect = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.ID, row.UserID, row.Platform, row.Status,
			row.AccessDisplay, row.RefreshDisplay, reconnect)
	}
	return w.Flush()
}

func runIntegrationsDisconnect(cmd *cobra.Command, args []string) error {
	st, _, err := openCredentialStore()
	if err != nil {
		return err
	}
	defer st.Close()

	id := args[0]
	if err := st.MarkDisconnected(id); err != nil {
		return fmt.Errorf("failed to disconnect %s: %w", id, err)
	}

	fmt.Printf("Integration %s disconnected\n", id)
	return nil
}
