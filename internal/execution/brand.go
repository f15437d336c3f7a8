package execution

import (
	"fmt"
	"strings"

	"github.com/pisanocami/usercontextrecord-sub002/internal/snapshot"
)

// BrandContext renders the snapshot's brand, category and strategic intent as
// the plain-text context handed to every council.
func BrandContext(snap *snapshot.UCRSnapshot) string {
	if snap == nil || snap.Configuration == nil {
		return ""
	}
	cfg := snap.Configuration
	var b strings.Builder

	line := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	list := func(label string, values []string) {
		line(label, strings.Join(values, ", "))
	}

	brand := cfg.Brand.Name
	if cfg.Brand.Domain != "" {
		if brand == "" {
			brand = cfg.Brand.Domain
		} else {
			brand = fmt.Sprintf("%s (%s)", brand, cfg.Brand.Domain)
		}
	}
	line("Brand", brand)
	line("Industry", cfg.Brand.Industry)
	line("Business model", cfg.Brand.BusinessModel)
	list("Geography", cfg.Brand.PrimaryGeography)
	line("Primary category", cfg.CategoryDefinition.PrimaryCategory)
	list("Included", cfg.CategoryDefinition.Included)
	list("Excluded", cfg.CategoryDefinition.Excluded)
	line("Primary goal", cfg.StrategicIntent.PrimaryGoal)
	list("Secondary goals", cfg.StrategicIntent.SecondaryGoals)
	line("Risk tolerance", cfg.StrategicIntent.RiskTolerance)
	list("Avoid", cfg.StrategicIntent.Avoid)
	list("Channels", cfg.ChannelContext.Channels)

	return strings.TrimRight(b.String(), "\n")
}
