package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// BenefitCatalogKey holds the active benefit listing.
const BenefitCatalogKey = "benefits:catalog"

func WalletBalanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("wallet:%s:balance", userID)
}

func BenefitKey(benefitID uuid.UUID) string {
	return fmt.Sprintf("benefits:%s", benefitID)
}

func MissionListKey(userID uuid.UUID) string {
	return fmt.Sprintf("missions:user:%s", userID)
}

func generationKey(key string) string {
	return "gen:" + key
}

// EntryKey is where Load keeps the value of key at generation gen.
func EntryKey(key string, gen int64, variant string) string {
	if variant == "" {
		return fmt.Sprintf("%s@%d", key, gen)
	}
	return fmt.Sprintf("%s@%d:%s", key, gen, variant)
}
