package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/avelychko/bookgo/internal/domain"
	"github.com/avelychko/bookgo/internal/repository"
)

const eventsCollection = "events"

type eventDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Title            string             `bson:"title"`
	Description      string             `bson:"description"`
	Date             time.Time          `bson:"date"`
	Location         string             `bson:"location"`
	TotalTickets     int                `bson:"totalTickets"`
	AvailableTickets int                `bson:"availableTickets"`
	Metadata         map[string]any     `bson:"metadata,omitempty"`
	CreatedBy        int64              `bson:"createdBy"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

func (d *eventDoc) toDomain() *domain.Event {
	return &domain.Event{
		ID:               d.ID.Hex(),
		Title:            d.Title,
		Description:      d.Description,
		Date:             d.Date,
		Location:         d.Location,
		TotalTickets:     d.TotalTickets,
		AvailableTickets: d.AvailableTickets,
		Metadata:         d.Metadata,
		CreatedBy:        d.CreatedBy,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// EventRepo is the inventory-store adapter. Every mutation of
// availableTickets is a single-document atomic update, so no
// multi-document transaction is ever required from this store.
type EventRepo struct {
	col *mongo.Collection
	now func() time.Time
}

func NewEventRepo(db *mongo.Database) *EventRepo {
	return &EventRepo{
		col: db.Collection(eventsCollection),
		now: time.Now,
	}
}

// TryReserve decrements availableTickets by one, but only if the event
// exists, still has tickets, and has not passed. The read-check-write is
// applied by the store as one atomic operation; this is the sole
// synchronization point for concurrent bookings of the same event.
//
// Returns:
//   - *domain.Event: the event after the decrement.
//   - error: repository.ErrNotFound when no such event exists.
//   - error: repository.ErrEventExpired when the event date has passed.
//   - error: repository.ErrSoldOut when no tickets remain.
func (r *EventRepo) TryReserve(ctx context.Context, eventID string) (*domain.Event, error) {
	const op = "mongorepo.EventRepo.TryReserve"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	now := r.now()

	filter := bson.M{
		"_id":              oid,
		"availableTickets": bson.M{"$gt": 0},
		"date":             bson.M{"$gte": now},
	}
	update := bson.M{
		"$inc": bson.M{"availableTickets": -1},
		"$set": bson.M{"updatedAt": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc eventDoc
	err = r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}

	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	// The conditional write matched nothing; re-read to classify why.
	var existing eventDoc
	err = r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if existing.Date.Before(now) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrEventExpired)
	}

	return nil, fmt.Errorf("%s:%w", op, repository.ErrSoldOut)
}

// Release increments availableTickets by one. It is both the
// compensating inverse of TryReserve and the forward step of a
// cancellation.
//
// Returns:
//   - error: repository.ErrNotFound when the event no longer exists.
func (r *EventRepo) Release(ctx context.Context, eventID string) (*domain.Event, error) {
	const op = "mongorepo.EventRepo.Release"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	update := bson.M{
		"$inc": bson.M{"availableTickets": 1},
		"$set": bson.M{"updatedAt": r.now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc eventDoc
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return doc.toDomain(), nil
}

// Revoke takes back one ticket unconditionally. It exists only to undo
// a Release whose surrounding cancellation failed to commit, so it
// skips the availability and date checks that guard TryReserve.
func (r *EventRepo) Revoke(ctx context.Context, eventID string) error {
	const op = "mongorepo.EventRepo.Revoke"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	update := bson.M{
		"$inc": bson.M{"availableTickets": -1},
		"$set": bson.M{"updatedAt": r.now()},
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// Get returns the event document by ID.
func (r *EventRepo) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	const op = "mongorepo.EventRepo.Get"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	var doc eventDoc
	err = r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return doc.toDomain(), nil
}

// Create inserts a new event with availableTickets initialized to
// totalTickets and returns it with the generated ID.
func (r *EventRepo) Create(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	const op = "mongorepo.EventRepo.Create"

	now := r.now()
	doc := eventDoc{
		ID:               primitive.NewObjectID(),
		Title:            e.Title,
		Description:      e.Description,
		Date:             e.Date,
		Location:         e.Location,
		TotalTickets:     e.TotalTickets,
		AvailableTickets: e.TotalTickets,
		Metadata:         e.Metadata,
		CreatedBy:        e.CreatedBy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return doc.toDomain(), nil
}

// Update applies the given fields atomically and returns the updated
// event. The totalTickets delta is applied with a pipeline update so
// the clamp at zero happens inside the store, not in application code.
func (r *EventRepo) Update(ctx context.Context, eventID string, f domain.EventUpdate) (*domain.Event, error) {
	const op = "mongorepo.EventRepo.Update"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	set := bson.M{"updatedAt": r.now()}
	if f.Title != nil {
		set["title"] = *f.Title
	}
	if f.Description != nil {
		set["description"] = *f.Description
	}
	if f.Date != nil {
		set["date"] = *f.Date
	}
	if f.Location != nil {
		set["location"] = *f.Location
	}
	if f.Metadata != nil {
		set["metadata"] = f.Metadata
	}

	var update any
	if f.TotalTickets != nil {
		total := *f.TotalTickets
		set["totalTickets"] = total
		set["availableTickets"] = bson.M{
			"$max": bson.A{
				0,
				bson.M{"$add": bson.A{
					"$availableTickets",
					bson.M{"$subtract": bson.A{total, "$totalTickets"}},
				}},
			},
		}
		update = mongo.Pipeline{{{Key: "$set", Value: set}}}
	} else {
		update = bson.M{"$set": set}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc eventDoc
	err = r.col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return doc.toDomain(), nil
}

// Delete removes the event document. Bookings referencing it keep their
// denormalized title snapshot; the reference itself is not enforced.
func (r *EventRepo) Delete(ctx context.Context, eventID string) error {
	const op = "mongorepo.EventRepo.Delete"

	oid, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// List returns a page of events sorted by date ascending plus the total
// count matching the filter.
func (r *EventRepo) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, int64, error) {
	const op = "mongorepo.EventRepo.List"

	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}

	filter := bson.M{}
	if f.Upcoming {
		filter["date"] = bson.M{"$gte": r.now()}
	}
	if f.Search != "" {
		filter["title"] = bson.M{"$regex": f.Search, "$options": "i"}
	}

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}}).
		SetSkip(int64((f.Page - 1) * f.Limit)).
		SetLimit(int64(f.Limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	defer cur.Close(ctx)

	var out []domain.Event
	for cur.Next(ctx) {
		var doc eventDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, *doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	return out, total, nil
}
