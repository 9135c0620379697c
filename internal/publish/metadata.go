package publish

import (
	"github.com/flathub-infra/buildhooks/internal/backend"
	"github.com/flathub-infra/buildhooks/internal/ostree"
)

const (
	subsetsKey   = "xa.subsets"
	tokenTypeKey = "xa.token-type"
)

// Signature metadata never survives a rewrite: the signature would not
// match the new commit, and flat-manager signs the result with its own
// key anyway.
var droppedKeys = []string{"ostree.gpgsigs", "ostree.sign"}

// Subsets lists the repo subsets an app belongs to, derived from its
// storefront facts.
func Subsets(info *backend.StorefrontInfo) []string {
	verified := info.Verification != nil && info.Verification.Verified
	floss := info.IsFreeSoftware != nil && *info.IsFreeSoftware

	var subsets []string
	if verified {
		subsets = append(subsets, "verified")
	}
	if floss {
		subsets = append(subsets, "floss")
	}
	if verified && floss {
		subsets = append(subsets, "verified_floss")
	}
	return subsets
}

// CommitMetadata derives the metadata dictionary for a rewritten
// commit: the original dictionary minus signatures, with the subsets
// and token-type fields recomputed from current storefront facts.
// Absent facts remove the fields rather than writing empty values.
func CommitMetadata(original ostree.Metadata, info *backend.StorefrontInfo) ostree.Metadata {
	meta := ostree.Metadata{}
	for key, value := range original {
		meta[key] = value
	}
	for _, key := range droppedKeys {
		delete(meta, key)
	}

	if subsets := Subsets(info); len(subsets) > 0 {
		meta[subsetsKey] = subsets
	} else {
		delete(meta, subsetsKey)
	}

	if isPaid(info.Pricing) {
		meta[tokenTypeKey] = int32(1)
	} else {
		delete(meta, tokenTypeKey)
	}

	return meta
}

func isPaid(pricing *backend.PricingInfo) bool {
	if pricing == nil {
		return false
	}
	return (pricing.RecommendedDonation != nil && *pricing.RecommendedDonation > 0) ||
		(pricing.MinimumPayment != nil && *pricing.MinimumPayment > 0)
}
