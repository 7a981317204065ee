package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

const eventsCollection = "events"

type eventDocument struct {
	ID            string    `bson:"_id"`
	TenantID      string    `bson:"tenant_id"`
	CapacityTotal int64     `bson:"capacity_total"`
	SoldCount     int64     `bson:"sold_count"`
	Deleted       bool      `bson:"deleted"`
	Released      []string  `bson:"released,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (d *eventDocument) toDomain() *domain.EventInventory {
	return &domain.EventInventory{
		ID:            d.ID,
		TenantID:      d.TenantID,
		CapacityTotal: d.CapacityTotal,
		SoldCount:     d.SoldCount,
		Deleted:       d.Deleted,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

// withoutReleased keeps the released reservation list out of reads
var withoutReleased = bson.M{"released": 0}

// MongoInventoryRepository stores events in MongoDB and serves as the capacity ledger
// through filtered FindOneAndUpdate calls.
type MongoInventoryRepository struct {
	events *mongo.Collection
}

// NewMongoInventoryRepository creates a new MongoInventoryRepository
func NewMongoInventoryRepository(db *mongo.Database) *MongoInventoryRepository {
	return &MongoInventoryRepository{events: db.Collection(eventsCollection)}
}

// EnsureIndexes creates the indexes the queries rely on
func (r *MongoInventoryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create event indexes: %w", err)
	}
	return nil
}

// CreateEvent inserts a new event document
func (r *MongoInventoryRepository) CreateEvent(ctx context.Context, event *domain.EventInventory) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.event.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("tenant_id", event.TenantID),
	)

	_, err := r.events.InsertOne(ctx, &eventDocument{
		ID:            event.ID,
		TenantID:      event.TenantID,
		CapacityTotal: event.CapacityTotal,
		SoldCount:     event.SoldCount,
		Deleted:       event.Deleted,
		CreatedAt:     event.CreatedAt,
		UpdatedAt:     event.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			span.SetStatus(codes.Error, "event already exists")
			return domain.ErrEventAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetEvent retrieves an event by ID, deleted or not
func (r *MongoInventoryRepository) GetEvent(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.event.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	var doc eventDocument
	err := r.events.FindOne(ctx, bson.M{"_id": eventID}, options.FindOne().SetProjection(withoutReleased)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			span.SetStatus(codes.Error, "event not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return doc.toDomain(), nil
}

// GetInventory returns the ledger view of an event
func (r *MongoInventoryRepository) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	return r.GetEvent(ctx, eventID)
}

// SoftDeleteEvent flags the event as deleted
func (r *MongoInventoryRepository) SoftDeleteEvent(ctx context.Context, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.event.soft_delete")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	res, err := r.events.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{"deleted": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if res.MatchedCount == 0 {
		span.SetStatus(codes.Error, "event not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByTenant lists a tenant's events, oldest first
func (r *MongoInventoryRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.event.list_by_tenant")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetProjection(withoutReleased)
	cur, err := r.events.Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var docs []eventDocument
	if err := cur.All(ctx, &docs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	events := make([]*domain.EventInventory, 0, len(docs))
	for i := range docs {
		events = append(events, docs[i].toDomain())
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// UpdateSoldCount stores a sold count snapshot taken from an external ledger
func (r *MongoInventoryRepository) UpdateSoldCount(ctx context.Context, eventID string, soldCount int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.event.update_sold_count")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int64("sold_count", soldCount),
	)

	if soldCount < 0 {
		span.SetStatus(codes.Error, "sold count out of range")
		return domain.ErrInvalidSoldCount
	}

	res, err := r.events.UpdateOne(ctx,
		bson.M{"_id": eventID, "capacity_total": bson.M{"$gte": soldCount}},
		bson.M{"$set": bson.M{"sold_count": soldCount, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update sold count: %w", err)
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetEvent(ctx, eventID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Error, "sold count out of range")
		return domain.ErrInvalidSoldCount
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ConditionalIncrement claims one seat with a single filtered FindOneAndUpdate
func (r *MongoInventoryRepository) ConditionalIncrement(ctx context.Context, eventID string) (*IncrementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.inventory.conditional_increment")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	filter := bson.M{
		"_id":     eventID,
		"deleted": false,
		"$expr":   bson.M{"$lt": bson.A{"$sold_count", "$capacity_total"}},
	}
	update := bson.M{
		"$inc": bson.M{"sold_count": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutReleased)

	var doc eventDocument
	err := r.events.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		span.SetAttributes(attribute.Int64("sold_count", doc.SoldCount))
		span.SetStatus(codes.Ok, "")
		return &IncrementResult{Success: true, SoldCount: doc.SoldCount, CapacityTotal: doc.CapacityTotal}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to increment sold count: %w", err)
	}

	result := &IncrementResult{}
	event, err := r.GetEvent(ctx, eventID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		result.ErrorCode, result.ErrorMessage = CodeEventNotFound, "event not found"
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case event.Deleted:
		result.ErrorCode, result.ErrorMessage = CodeEventDeleted, "event has been deleted"
	default:
		result.SoldCount = event.SoldCount
		result.CapacityTotal = event.CapacityTotal
		result.ErrorCode, result.ErrorMessage = CodeSoldOut, "no seats remaining"
	}

	span.SetAttributes(attribute.String("error_code", result.ErrorCode))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Release gives one seat back; the reservation ID is recorded in the same update
func (r *MongoInventoryRepository) Release(ctx context.Context, eventID, reservationID string) (*ReleaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.inventory.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("reservation_id", reservationID),
	)

	filter := bson.M{
		"_id":        eventID,
		"sold_count": bson.M{"$gt": 0},
		"released":   bson.M{"$ne": reservationID},
	}
	update := bson.M{
		"$inc":      bson.M{"sold_count": -1},
		"$addToSet": bson.M{"released": reservationID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(withoutReleased)

	var doc eventDocument
	err := r.events.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return &ReleaseResult{Success: true, SoldCount: doc.SoldCount}, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to release seat: %w", err)
	}

	result := &ReleaseResult{}
	err = r.events.FindOne(ctx, bson.M{"_id": eventID}).Decode(&doc)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		result.ErrorCode, result.ErrorMessage = CodeEventNotFound, "event not found"
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read event: %w", err)
	case slices.Contains(doc.Released, reservationID):
		result.SoldCount = doc.SoldCount
		result.ErrorCode, result.ErrorMessage = CodeAlreadyReleased, "reservation already released"
	default:
		result.ErrorCode, result.ErrorMessage = CodeNothingToRelease, "sold count is zero"
	}

	span.SetAttributes(attribute.String("error_code", result.ErrorCode))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

var (
	_ InventoryRepository = (*MongoInventoryRepository)(nil)
	_ EventRepository     = (*MongoInventoryRepository)(nil)
)
