package mongo

import (
	"context"
	"time"

	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository holds schedule metadata: what is bookable, who operates
// it, and whether it is still active. Inventory counts live in the durable
// store; this is the descriptive side admins and search read.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("schedules"),
		logger: logger,
	}
}

type ScheduleDoc struct {
	ID        string     `bson:"_id"`
	PartnerID string     `bson:"partner_id"`
	Mode      string     `bson:"mode"` // bus, hotel, flight
	Name      string     `bson:"name"`
	DepartsAt time.Time  `bson:"departs_at"`
	Classes   []ClassDoc `bson:"classes"`
	Active    bool       `bson:"active"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

type ClassDoc struct {
	Class      string   `bson:"class"`
	TotalUnits int      `bson:"total_units"`
	UnitIDs    []string `bson:"unit_ids,omitempty"`
}

func (c *CatalogRepository) GetSchedule(ctx context.Context, id string) (*ScheduleDoc, error) {
	var doc ScheduleDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *CatalogRepository) CreateSchedule(ctx context.Context, doc ScheduleDoc) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	doc.Active = true
	_, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		c.logger.WithError(err).Error("failed to create schedule")
		return err
	}
	return nil
}

func (c *CatalogRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": active, "updated_at": time.Now()}},
	)
	if err != nil {
		c.logger.WithError(err).Error("failed to update schedule")
		return err
	}
	return nil
}
