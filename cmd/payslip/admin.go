package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"paydesk/internal/domain/auth"
	"paydesk/internal/platform/crypto"
)

// newUnsealCmd decrypts a payslip archive written by the server with
// PAYSLIP_ENCRYPTION_KEY set.
func newUnsealCmd() *cobra.Command {
	var key, recordID, outPath string

	cmd := &cobra.Command{
		Use:   "unseal <file.pdf.enc>",
		Short: "Decrypt an archived payslip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("PAYSLIP_ENCRYPTION_KEY")
			}
			sealer, err := crypto.New(key)
			if err != nil {
				return err
			}
			if !sealer.Configured() {
				return crypto.ErrUnconfigured
			}
			if recordID == "" {
				recordID = strings.TrimSuffix(filepath.Base(args[0]), ".pdf.enc")
			}
			sealed, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pdf, err := sealer.Open(sealed, []byte(recordID))
			if err != nil {
				return fmt.Errorf("unseal %s: %w", args[0], err)
			}
			if outPath == "" {
				outPath = strings.TrimSuffix(args[0], ".enc")
			}
			if err := os.WriteFile(outPath, pdf, 0o600); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), outPath)
			return err
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "encryption key, hex or base64 (defaults to PAYSLIP_ENCRYPTION_KEY)")
	cmd.Flags().StringVar(&recordID, "record", "", "record ID the archive is bound to (defaults to the file name)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output PDF path (defaults to the input without .enc)")
	return cmd
}

// newTokenCmd mints a bearer token for service accounts and local testing.
func newTokenCmd() *cobra.Command {
	var secret, userID, tenantID, role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}
			if _, ok := auth.RolePermissions[role]; !ok {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				return errors.New("ttl must be positive")
			}
			token, err := auth.GenerateToken(secret, auth.Claims{UserID: userID, TenantID: tenantID, RoleName: role}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to JWT_SECRET)")
	cmd.Flags().StringVar(&userID, "user", "", "user ID claim")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant ID claim")
	cmd.Flags().StringVar(&role, "role", auth.RolePayroll, "role name")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
