package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	authdomain "github.com/genpire/genpire/internal/auth/domain"
	creditsdomain "github.com/genpire/genpire/internal/credits/domain"
)

const (
	demoCreatorEmail   = "demo@genpire.dev"
	demoCreatorDisplay = "Genpire Demo Creator"
	demoCreatorCredits = 20
	demoGrantEventID   = "seed_demo_creator_welcome"
)

// EnsureDemoCreator seeds a demo creator with a starter balance so a fresh
// local install can walk the generation workflow immediately. Idempotent:
// re-running against a seeded database changes nothing.
func EnsureDemoCreator(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := ensureDemoUserTx(ctx, tx, node)
		if err != nil {
			return err
		}
		return ensureDemoBalanceTx(ctx, tx, node, user.ID)
	})
}

func ensureDemoUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).Where("email = ?", demoCreatorEmail).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	now := time.Now().UTC()
	user = authdomain.User{
		ID:          node.Generate(),
		Email:       strings.ToLower(demoCreatorEmail),
		DisplayName: demoCreatorDisplay,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return user, err
	}
	return user, nil
}

func ensureDemoBalanceTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, userID snowflake.ID) error {
	var balance creditsdomain.CreditBalance
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	balance = creditsdomain.CreditBalance{
		UserID:     userID,
		Credits:    demoCreatorCredits,
		Status:     creditsdomain.BalanceStatusActive,
		Membership: creditsdomain.MembershipStarter,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&balance).Error; err != nil {
		return err
	}

	grant := creditsdomain.CreditGrant{
		ID:              node.Generate(),
		UserID:          userID,
		Amount:          demoCreatorCredits,
		Source:          "seed:welcome",
		ExternalEventID: demoGrantEventID,
		CreatedAt:       now,
	}
	return tx.WithContext(ctx).Create(&grant).Error
}
