package mongo

import (
	"context"
	"time"

	"github.com/yatrago/hold-engine/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PolicyRepository reads and writes per-partner hold policies. The hold
// engine consumes it through policy.Provider; only the admin API writes.
type PolicyRepository struct {
	coll     *mongo.Collection
	fallback domain.PartnerPolicy
}

// NewPolicyRepository builds a repository that serves fallback for partners
// without a stored policy.
func NewPolicyRepository(db *mongo.Database, fallback domain.PartnerPolicy) *PolicyRepository {
	return &PolicyRepository{
		coll:     db.Collection("partner_policies"),
		fallback: fallback,
	}
}

type policyDoc struct {
	PartnerID     string    `bson:"_id"`
	HoldEnabled   bool      `bson:"hold_enabled"`
	HoldQuotaPct  float64   `bson:"hold_quota_pct"`
	HoldExpirySec int64     `bson:"hold_expiry_seconds"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (r *PolicyRepository) GetPolicy(ctx context.Context, partnerID string) (domain.PartnerPolicy, error) {
	var doc policyDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": partnerID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		pol := r.fallback
		pol.PartnerID = partnerID
		return pol, nil
	}
	if err != nil {
		return domain.PartnerPolicy{}, err
	}
	return domain.PartnerPolicy{
		PartnerID:    doc.PartnerID,
		HoldEnabled:  doc.HoldEnabled,
		HoldQuotaPct: doc.HoldQuotaPct,
		HoldExpiry:   time.Duration(doc.HoldExpirySec) * time.Second,
	}, nil
}

func (r *PolicyRepository) UpsertPolicy(ctx context.Context, pol domain.PartnerPolicy) error {
	doc := policyDoc{
		PartnerID:     pol.PartnerID,
		HoldEnabled:   pol.HoldEnabled,
		HoldQuotaPct:  pol.HoldQuotaPct,
		HoldExpirySec: int64(pol.HoldExpiry / time.Second),
		UpdatedAt:     time.Now(),
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": pol.PartnerID}, doc, options.Replace().SetUpsert(true))
	return err
}
