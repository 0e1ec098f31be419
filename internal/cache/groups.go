package cache

import "fmt"

// Invalidation group names. Every cache-writing call site registers its keys
// into one or more of these; the dispatcher clears them on mutations.
const (
	GroupFeatured    = "featured_deals"
	GroupExpiring    = "expiring_deals"
	GroupNew         = "new_deals"
	GroupRelated     = "related_deals"
	GroupPopular     = "popular_deals"
	GroupNearby      = "nearby_deals"
	GroupSustainable = "sustainable_deals"
)

// CategoryGroup names the invalidation group for a category's cached views.
func CategoryGroup(categoryID int64) string {
	return fmt.Sprintf("category:%d", categoryID)
}

// ShopGroup names the invalidation group for a shop's cached views.
func ShopGroup(shopID int64) string {
	return fmt.Sprintf("shop:%d", shopID)
}
