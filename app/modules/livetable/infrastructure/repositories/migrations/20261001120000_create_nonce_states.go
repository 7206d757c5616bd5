package noncemigrations

import (
	"context"
	"fmt"

	noncedb "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating nonce_states table...")

		_, err := db.NewCreateTable().Model((*noncedb.NonceState)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create nonce_states table: %w", err)
		}

		fmt.Println("nonce_states table created successfully!")
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Rolling back nonce_states table...")

		_, err := db.NewDropTable().Model((*noncedb.NonceState)(nil)).IfExists().Cascade().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to drop nonce_states table: %w", err)
		}

		fmt.Println("nonce_states table dropped successfully!")
		return nil
	})
}
