package engine

import "sort"

// SelectRelated picks at most limit deals related to the input deal from a
// candidate set that already shares at least one category with it. Candidates
// from the same shop are preferred: when enough exist they fill the whole
// result, otherwise they take at most half the slots and other shops fill the
// remainder. Both partitions are ordered featured-first, newest-first.
//
// The input deal itself is excluded and the result never contains duplicates.
func SelectRelated(deal *Deal, candidates []Deal, limit int) []Deal {
	if limit <= 0 {
		return []Deal{}
	}

	seen := make(map[int64]struct{}, len(candidates))
	sameShop := make([]Deal, 0, len(candidates))
	otherShop := make([]Deal, 0, len(candidates))

	for _, c := range candidates {
		if c.ID == deal.ID {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		if c.ShopID == deal.ShopID {
			sameShop = append(sameShop, c)
		} else {
			otherShop = append(otherShop, c)
		}
	}

	sortByFeaturedThenNewest(sameShop)
	sortByFeaturedThenNewest(otherShop)

	if len(sameShop) >= limit {
		return sameShop[:limit]
	}

	// Same-shop deals take at most half the slots so that cross-shop
	// discovery is not starved, then other shops fill the remainder.
	take := len(sameShop)
	if half := limit / 2; take > half {
		take = half
	}

	result := make([]Deal, 0, limit)
	result = append(result, sameShop[:take]...)
	for _, c := range otherShop {
		if len(result) >= limit {
			break
		}
		result = append(result, c)
	}
	// Backfill with remaining same-shop deals when other shops ran short.
	for _, c := range sameShop[take:] {
		if len(result) >= limit {
			break
		}
		result = append(result, c)
	}

	return result
}

func sortByFeaturedThenNewest(deals []Deal) {
	sort.SliceStable(deals, func(i, j int) bool {
		if deals[i].IsFeatured != deals[j].IsFeatured {
			return deals[i].IsFeatured
		}
		if !deals[i].CreatedAt.Equal(deals[j].CreatedAt) {
			return deals[i].CreatedAt.After(deals[j].CreatedAt)
		}
		return deals[i].ID < deals[j].ID
	})
}
