package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kirillkom/thesis-analysis/internal/core/domain"
)

// Connect opens a client and pings it. Caller should call client.Disconnect(ctx).
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

type documentRecord struct {
	ID                string     `bson:"_id"`
	Filename          string     `bson:"filename"`
	MimeType          string     `bson:"mimeType"`
	StoragePath       string     `bson:"storagePath"`
	Title             string     `bson:"title"`
	AuthorName        string     `bson:"authorName"`
	AnalysisStatus    string     `bson:"analysisStatus"`
	AnalysisSummary   string     `bson:"analysisSummary"`
	AnalysisKeywords  []string   `bson:"analysisKeywords"`
	AnalysisSentiment string     `bson:"analysisSentiment"`
	AnalysisError     string     `bson:"analysisError"`
	AnalysisAttempt   string     `bson:"analysisAttempt"`
	AnalyzedAt        *time.Time `bson:"analyzedAt,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt"`
}

type DocumentRepository struct {
	col *mongo.Collection
}

func NewDocumentRepository(col *mongo.Collection) *DocumentRepository {
	return &DocumentRepository{col: col}
}

func (r *DocumentRepository) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "analysisStatus", Value: 1}, {Key: "updatedAt", Value: 1}}}
	if _, err := r.col.Indexes().CreateOne(ctx, idx); err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if _, err := r.col.InsertOne(ctx, toRecord(doc)); err != nil {
		return domain.WrapError(domain.ErrPersistence, "insert document", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	var rec documentRecord
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "get document", err)
	}
	return fromRecord(rec), nil
}

// Save applies the analysis fields only while analysisAttempt still equals
// expectedAttempt.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document, expectedAttempt string) error {
	set := bson.M{
		"analysisStatus":    string(doc.AnalysisStatus),
		"analysisSummary":   doc.AnalysisSummary,
		"analysisKeywords":  keywordsOrEmpty(doc.AnalysisKeywords),
		"analysisSentiment": string(doc.AnalysisSentiment),
		"analysisError":     doc.AnalysisError,
		"analysisAttempt":   doc.AnalysisAttempt,
		"updatedAt":         doc.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if doc.AnalyzedAt != nil {
		set["analyzedAt"] = *doc.AnalyzedAt
	} else {
		update["$unset"] = bson.M{"analyzedAt": ""}
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": doc.ID, "analysisAttempt": expectedAttempt}, update)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var existing bson.M
	err = r.col.FindOne(ctx, bson.M{"_id": doc.ID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", fmt.Errorf("id %s", doc.ID))
	}
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "save analysis", err)
	}
	return domain.WrapError(domain.ErrStaleAttempt, "save analysis", fmt.Errorf("id %s attempt %s", doc.ID, expectedAttempt))
}

func (r *DocumentRepository) ListByStatus(ctx context.Context, status domain.AnalysisStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	filter := bson.M{"analysisStatus": string(status), "updatedAt": bson.M{"$lt": updatedBefore}}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
	}
	defer cur.Close(ctx)

	var out []domain.Document
	for cur.Next(ctx) {
		var rec documentRecord
		if err := cur.Decode(&rec); err != nil {
			return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
		}
		out = append(out, *fromRecord(rec))
	}
	if err := cur.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrPersistence, "list documents", err)
	}
	return out, nil
}

func toRecord(doc *domain.Document) documentRecord {
	return documentRecord{
		ID:                doc.ID,
		Filename:          doc.Filename,
		MimeType:          doc.MimeType,
		StoragePath:       doc.StoragePath,
		Title:             doc.Title,
		AuthorName:        doc.AuthorName,
		AnalysisStatus:    string(doc.AnalysisStatus),
		AnalysisSummary:   doc.AnalysisSummary,
		AnalysisKeywords:  keywordsOrEmpty(doc.AnalysisKeywords),
		AnalysisSentiment: string(doc.AnalysisSentiment),
		AnalysisError:     doc.AnalysisError,
		AnalysisAttempt:   doc.AnalysisAttempt,
		AnalyzedAt:        doc.AnalyzedAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
	}
}

func fromRecord(rec documentRecord) *domain.Document {
	doc := &domain.Document{
		ID:                rec.ID,
		Filename:          rec.Filename,
		MimeType:          rec.MimeType,
		StoragePath:       rec.StoragePath,
		Title:             rec.Title,
		AuthorName:        rec.AuthorName,
		AnalysisStatus:    domain.AnalysisStatus(rec.AnalysisStatus),
		AnalysisSummary:   rec.AnalysisSummary,
		AnalysisSentiment: domain.Sentiment(rec.AnalysisSentiment),
		AnalysisError:     rec.AnalysisError,
		AnalysisAttempt:   rec.AnalysisAttempt,
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}
	if len(rec.AnalysisKeywords) > 0 {
		doc.AnalysisKeywords = append([]string(nil), rec.AnalysisKeywords...)
	}
	if rec.AnalyzedAt != nil {
		at := rec.AnalyzedAt.UTC()
		doc.AnalyzedAt = &at
	}
	return doc
}

func keywordsOrEmpty(keywords []string) []string {
	if keywords == nil {
		return []string{}
	}
	return keywords
}
