package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/encore/internal/encore/store"
	"github.com/aussiebroadwan/encore/pkg/cryptox"
)

// MigrateResult summarises a migrate run.
type MigrateResult struct {
	SchemaVersion uint
	Dirty         bool
	Reencrypted   int
}

// Migrate applies schema migrations and seals any refresh secrets still
// stored as plaintext. Only the database and key material need to be configured.
func Migrate(ctx context.Context, cfg Config, logger *slog.Logger) (MigrateResult, error) {
	db, err := OpenDatabase(cfg.DatabaseFile)
	if err != nil {
		return MigrateResult{}, err
	}
	defer db.Close()

	box, err := cryptox.ResolveSecretBox(cfg.EncryptionKey, cfg.JWTSecret, logger)
	if err != nil {
		return MigrateResult{}, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	n, err := ReencryptRefreshTokens(ctx, db, box, logger)
	if err != nil {
		return MigrateResult{}, err
	}

	version, dirty, err := db.SchemaVersion()
	if err != nil {
		return MigrateResult{}, fmt.Errorf("failed to read schema version: %w", err)
	}

	return MigrateResult{SchemaVersion: version, Dirty: dirty, Reencrypted: n}, nil
}

// ReencryptRefreshTokens seals every stored refresh secret that is not
// already a SecretBox record. Family and version are left alone.
func ReencryptRefreshTokens(ctx context.Context, st store.Store, box *cryptox.SecretBox, logger *slog.Logger) (int, error) {
	accounts, err := st.Accounts().ListAccountsWithRefreshToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}

	var n int
	for _, a := range accounts {
		if cryptox.IsSealed(a.RefreshTokenEncrypted) {
			continue
		}

		sealed, err := box.Encrypt(a.RefreshTokenEncrypted)
		if err != nil {
			return n, fmt.Errorf("failed to encrypt refresh token for %s: %w", a.ID, err)
		}
		if err := st.Accounts().SetRefreshTokenEncrypted(ctx, a.ID, sealed); err != nil {
			return n, fmt.Errorf("failed to store refresh token for %s: %w", a.ID, err)
		}
		n++
	}

	if n > 0 {
		logger.Info("sealed plaintext refresh tokens", "count", n)
	}
	return n, nil
}
