package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

const (
	ticketsCollection      = "tickets"
	reservationsCollection = "consumed_reservations"
	reservationIndexName   = "reservation_id_1"
)

type ticketDocument struct {
	ID            string     `bson:"_id"`
	ReservationID string     `bson:"reservation_id"`
	BuyerID       string     `bson:"buyer_id"`
	EventID       string     `bson:"event_id"`
	CheckedIn     bool       `bson:"checked_in"`
	CheckedInAt   *time.Time `bson:"checked_in_at,omitempty"`
	IssuedAt      time.Time  `bson:"issued_at"`
}

func (d *ticketDocument) toDomain() *domain.Ticket {
	t := &domain.Ticket{
		ID:            d.ID,
		ReservationID: d.ReservationID,
		BuyerID:       d.BuyerID,
		EventID:       d.EventID,
		CheckedIn:     d.CheckedIn,
		IssuedAt:      d.IssuedAt.UTC(),
	}
	if d.CheckedInAt != nil {
		at := d.CheckedInAt.UTC()
		t.CheckedInAt = &at
	}
	return t
}

type reservationDocument struct {
	ReservationID string    `bson:"_id"`
	EventID       string    `bson:"event_id"`
	TicketID      string    `bson:"ticket_id"`
	ConsumedAt    time.Time `bson:"consumed_at"`
}

// MongoTicketRepository stores tickets in MongoDB.
// Consumed reservations live in their own collection so purging tickets never frees a token.
type MongoTicketRepository struct {
	tickets      *mongo.Collection
	reservations *mongo.Collection
}

// NewMongoTicketRepository creates a new MongoTicketRepository
func NewMongoTicketRepository(db *mongo.Database) *MongoTicketRepository {
	return &MongoTicketRepository{
		tickets:      db.Collection(ticketsCollection),
		reservations: db.Collection(reservationsCollection),
	}
}

// EnsureIndexes creates the unique reservation index and the listing indexes
func (r *MongoTicketRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reservation_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(reservationIndexName),
		},
		{Keys: bson.D{{Key: "buyer_id", Value: 1}, {Key: "issued_at", Value: -1}}},
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "issued_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create ticket indexes: %w", err)
	}
	_, err = r.reservations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "event_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create reservation index: %w", err)
	}
	return nil
}

// CreateTicket consumes the reservation, then inserts the ticket.
// If the ticket insert fails the reservation is handed back.
func (r *MongoTicketRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.String("reservation_id", ticket.ReservationID),
		attribute.String("event_id", ticket.EventID),
	)

	_, err := r.reservations.InsertOne(ctx, &reservationDocument{
		ReservationID: ticket.ReservationID,
		EventID:       ticket.EventID,
		TicketID:      ticket.ID,
		ConsumedAt:    ticket.IssuedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			span.SetStatus(codes.Error, "reservation already consumed")
			return domain.ErrReservationConsumed
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to consume reservation: %w", err)
	}

	_, err = r.tickets.InsertOne(ctx, &ticketDocument{
		ID:            ticket.ID,
		ReservationID: ticket.ReservationID,
		BuyerID:       ticket.BuyerID,
		EventID:       ticket.EventID,
		CheckedIn:     false,
		IssuedAt:      ticket.IssuedAt,
	})
	if err != nil {
		_, _ = r.reservations.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": ticket.ReservationID, "ticket_id": ticket.ID})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if duplicateOnIndex(err, reservationIndexName) {
			return domain.ErrReservationConsumed
		}
		// A duplicate _id is a ticket ID collision, not a spent token
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	ticket.CheckedIn = false
	ticket.CheckedInAt = nil
	span.SetStatus(codes.Ok, "")
	return nil
}

// ConditionalSetCheckedIn flips checked_in only for an unused ticket of the given event
func (r *MongoTicketRepository) ConditionalSetCheckedIn(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.conditional_set_checked_in")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("event_id", eventID),
	)

	res, err := r.tickets.UpdateOne(ctx,
		bson.M{"_id": ticketID, "event_id": eventID, "checked_in": false},
		bson.M{"$set": bson.M{"checked_in": true, "checked_in_at": at}},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check in ticket: %w", err)
	}

	applied := res.ModifiedCount == 1
	span.SetAttributes(attribute.Bool("applied", applied))
	span.SetStatus(codes.Ok, "")
	return applied, nil
}

// GetTicket retrieves a ticket by ID
func (r *MongoTicketRepository) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.get")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	t, err := r.findOne(ctx, bson.M{"_id": ticketID})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return t, nil
}

// GetByReservation retrieves the ticket issued for a reservation
func (r *MongoTicketRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.get_by_reservation")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	t, err := r.findOne(ctx, bson.M{"reservation_id": reservationID})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return t, nil
}

// ListByBuyer lists a buyer's tickets, newest first
func (r *MongoTicketRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.list_by_buyer")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	tickets, err := r.find(ctx, bson.M{"buyer_id": buyerID}, bson.D{{Key: "issued_at", Value: -1}, {Key: "_id", Value: 1}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list buyer tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// ListByEvent lists an event's tickets, oldest first
func (r *MongoTicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.list_by_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	tickets, err := r.find(ctx, bson.M{"event_id": eventID}, bson.D{{Key: "issued_at", Value: 1}, {Key: "_id", Value: 1}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list event tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// CountCheckedIn counts the event's used tickets
func (r *MongoTicketRepository) CountCheckedIn(ctx context.Context, eventID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.count_checked_in")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	n, err := r.tickets.CountDocuments(ctx, bson.M{"event_id": eventID, "checked_in": true})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count checked-in tickets: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return n, nil
}

// CountIssued counts consumed reservations of the event, which outlive purged tickets
func (r *MongoTicketRepository) CountIssued(ctx context.Context, eventID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.count_issued")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	n, err := r.reservations.CountDocuments(ctx, bson.M{"event_id": eventID})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count issued tickets: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return n, nil
}

// DeleteByBuyer removes a buyer's tickets and returns them
func (r *MongoTicketRepository) DeleteByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.ticket.delete_by_buyer")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	tickets, err := r.find(ctx, bson.M{"buyer_id": buyerID}, bson.D{{Key: "issued_at", Value: -1}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list buyer tickets: %w", err)
	}
	if len(tickets) == 0 {
		span.SetStatus(codes.Ok, "")
		return nil, nil
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	if _, err := r.tickets.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to delete buyer tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

func (r *MongoTicketRepository) findOne(ctx context.Context, filter bson.M) (*domain.Ticket, error) {
	var doc ticketDocument
	if err := r.tickets.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *MongoTicketRepository) find(ctx context.Context, filter bson.M, sort bson.D) ([]*domain.Ticket, error) {
	cur, err := r.tickets.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}

	var docs []ticketDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	tickets := make([]*domain.Ticket, 0, len(docs))
	for i := range docs {
		tickets = append(tickets, docs[i].toDomain())
	}
	return tickets, nil
}

// duplicateOnIndex reports whether err is a duplicate key violation of the named index
func duplicateOnIndex(err error, index string) bool {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return false
	}
	for _, e := range we.WriteErrors {
		if e.Code == 11000 && strings.Contains(e.Message, "index: "+index+" ") {
			return true
		}
	}
	return false
}

var _ TicketRepository = (*MongoTicketRepository)(nil)
