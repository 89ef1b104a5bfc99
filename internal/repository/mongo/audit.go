package mongorepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/avelychko/bookgo/internal/domain"
)

const logsCollection = "logs"

type auditDoc struct {
	Action    string              `bson:"action"`
	Level     string              `bson:"level"`
	UserID    *int64              `bson:"userId,omitempty"`
	EventID   *primitive.ObjectID `bson:"eventId,omitempty"`
	BookingID *int64              `bson:"bookingId,omitempty"`
	Details   map[string]any      `bson:"details,omitempty"`
	IPAddress string              `bson:"ipAddress,omitempty"`
	Timestamp time.Time           `bson:"timestamp"`
}

// AuditRepo persists audit records into the logs collection. It is only
// ever called from the audit consumer, never from a saga.
type AuditRepo struct {
	col *mongo.Collection
}

func NewAuditRepo(db *mongo.Database) *AuditRepo {
	return &AuditRepo{col: db.Collection(logsCollection)}
}

func (r *AuditRepo) Insert(ctx context.Context, rec domain.AuditRecord) error {
	const op = "mongorepo.AuditRepo.Insert"

	doc := auditDoc{
		Action:    rec.Action,
		Level:     rec.Level,
		Details:   rec.Details,
		IPAddress: rec.IP,
		Timestamp: rec.Timestamp,
	}
	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now()
	}
	if doc.Level == "" {
		doc.Level = domain.AuditLevelInfo
	}
	if rec.UserID != 0 {
		doc.UserID = &rec.UserID
	}
	if rec.BookingID != 0 {
		doc.BookingID = &rec.BookingID
	}
	if rec.EventID != "" {
		if oid, err := primitive.ObjectIDFromHex(rec.EventID); err == nil {
			doc.EventID = &oid
		}
	}

	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}
