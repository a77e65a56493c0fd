package models

// Plan tiers determine the discount applied to list prices.
// Kept as plain strings in storage, validated at the pricing edge.
const (
	TierFree   = "free"
	TierStart  = "start"
	TierPro    = "pro"
	TierMaster = "master"
)
