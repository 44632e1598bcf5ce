package mongo

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gamereview/searchservice/internal/domain"
	"gamereview/searchservice/internal/metrics"
)

// Repository is the Mongo-backed game catalog.
type Repository struct {
	collection *mongo.Collection
}

type gameDoc struct {
	ID              string   `bson:"_id"`
	ExternalID      int64    `bson:"externalId,omitempty"`
	Name            string   `bson:"name"`
	Summary         string   `bson:"summary,omitempty"`
	ReleaseDate     int64    `bson:"releaseDate,omitempty"`
	CoverURL        string   `bson:"coverUrl,omitempty"`
	Genres          []string `bson:"genres,omitempty"`
	Platforms       []string `bson:"platforms,omitempty"`
	Developer       string   `bson:"developer,omitempty"`
	Publisher       string   `bson:"publisher,omitempty"`
	Category        int      `bson:"category"`
	Rating          float64  `bson:"rating,omitempty"`
	RatingCount     int      `bson:"ratingCount,omitempty"`
	UserRating      float64  `bson:"userRating,omitempty"`
	UserRatingCount int      `bson:"userRatingCount,omitempty"`
	Follows         int      `bson:"follows,omitempty"`
	Hypes           int      `bson:"hypes,omitempty"`
	Engagement      int      `bson:"engagement"` // Cached follows+hypes for efficient sorting.
	Greenlight      bool     `bson:"greenlight,omitempty"`
	Redlight        bool     `bson:"redlight,omitempty"`
	FlagReason      string   `bson:"flagReason,omitempty"`
	LastSyncedAt    int64    `bson:"lastSyncedAt,omitempty"`
}

func NewRepository(client *mongo.Client, dbName, collectionName string) *Repository {
	return &Repository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{Keys: bson.D{{Key: "name", Value: "text"}}},
		{Keys: bson.D{{Key: "engagement", Value: -1}}},
		{Keys: bson.D{{Key: "rating", Value: -1}}},
		{Keys: bson.D{{Key: "releaseDate", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

// SearchGames finds catalog candidates whose name or summary matches the
// query, narrowed by the optional attribute filters. The caller re-ranks, so
// the sort here only controls recall under the limit.
func (r *Repository) SearchGames(ctx context.Context, query string, filters domain.SearchFilters, limit int) ([]domain.Game, error) {
	startedAt := time.Now()

	conditions := make([]bson.M, 0, 4)
	if trimmed := strings.TrimSpace(query); trimmed != "" {
		pattern := bson.M{"$regex": regexp.QuoteMeta(trimmed), "$options": "i"}
		conditions = append(conditions, bson.M{"$or": []bson.M{
			{"name": pattern},
			{"summary": pattern},
		}})
	}
	for _, genre := range filters.Genres {
		conditions = append(conditions, bson.M{"genres": caseInsensitiveEquals(genre)})
	}
	for _, platform := range filters.Platforms {
		conditions = append(conditions, bson.M{"platforms": caseInsensitiveEquals(platform)})
	}
	if filters.MinRating > 0 {
		conditions = append(conditions, bson.M{"rating": bson.M{"$gte": filters.MinRating}})
	}
	if filters.YearFrom > 0 {
		from := time.Date(filters.YearFrom, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
		conditions = append(conditions, bson.M{"releaseDate": bson.M{"$gte": from}})
	}
	if filters.YearTo > 0 {
		to := time.Date(filters.YearTo+1, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
		conditions = append(conditions, bson.M{"releaseDate": bson.M{"$lt": to}})
	}

	selector := bson.M{}
	if len(conditions) > 0 {
		selector["$and"] = conditions
	}

	opts := options.Find().SetSort(bson.D{{Key: "engagement", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	games, err := r.find(ctx, selector, opts)
	r.observe("search", startedAt, err)
	return games, err
}

// GamesByExternalIDs fetches catalog copies of provider records in one batch.
func (r *Repository) GamesByExternalIDs(ctx context.Context, ids []int64) ([]domain.Game, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	startedAt := time.Now()
	games, err := r.find(ctx, bson.M{"externalId": bson.M{"$in": ids}}, options.Find())
	r.observe("by_external_ids", startedAt, err)
	return games, err
}

func (r *Repository) InsertGame(ctx context.Context, game domain.Game) error {
	startedAt := time.Now()
	_, err := r.collection.InsertOne(ctx, toDoc(game))
	if mongo.IsDuplicateKeyError(err) {
		err = domain.ErrAlreadyExists
	}
	r.observe("insert", startedAt, err)
	return err
}

// Popular returns catalog games ordered by community engagement.
func (r *Repository) Popular(ctx context.Context, limit int) ([]domain.Game, error) {
	startedAt := time.Now()
	opts := options.Find().SetSort(bson.D{{Key: "engagement", Value: -1}}).SetLimit(int64(limit))
	games, err := r.find(ctx, bson.M{}, opts)
	r.observe("popular", startedAt, err)
	return games, err
}

// TopRated returns the best rated games with at least minRatingCount reviews
// behind the rating.
func (r *Repository) TopRated(ctx context.Context, limit, minRatingCount int) ([]domain.Game, error) {
	startedAt := time.Now()
	selector := bson.M{}
	if minRatingCount > 0 {
		selector["ratingCount"] = bson.M{"$gte": minRatingCount}
	}
	opts := options.Find().SetSort(bson.D{{Key: "rating", Value: -1}}).SetLimit(int64(limit))
	games, err := r.find(ctx, selector, opts)
	r.observe("top_rated", startedAt, err)
	return games, err
}

// Recent returns already-released games, newest first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]domain.Game, error) {
	startedAt := time.Now()
	selector := bson.M{"releaseDate": bson.M{"$gt": 0, "$lte": time.Now().Unix()}}
	opts := options.Find().SetSort(bson.D{{Key: "releaseDate", Value: -1}}).SetLimit(int64(limit))
	games, err := r.find(ctx, selector, opts)
	r.observe("recent", startedAt, err)
	return games, err
}

func (r *Repository) find(ctx context.Context, selector bson.M, opts *options.FindOptions) ([]domain.Game, error) {
	cursor, err := r.collection.Find(ctx, selector, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []gameDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromDocs(docs), nil
}

func (r *Repository) observe(operation string, startedAt time.Time, err error) {
	status := "ok"
	if err != nil && err != domain.ErrAlreadyExists {
		status = "error"
	}
	metrics.CatalogRequestsTotal.WithLabelValues(operation, status).Inc()
	metrics.CatalogRequestDuration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
}

func caseInsensitiveEquals(value string) bson.M {
	return bson.M{
		"$regex":   "^" + regexp.QuoteMeta(strings.TrimSpace(value)) + "$",
		"$options": "i",
	}
}

func toDoc(g domain.Game) gameDoc {
	id := g.StoreID
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}

	var releaseDate int64
	if g.ReleaseDate != nil {
		releaseDate = g.ReleaseDate.Unix()
	}
	var lastSynced int64
	if !g.LastSyncedAt.IsZero() {
		lastSynced = g.LastSyncedAt.Unix()
	}

	return gameDoc{
		ID:              id,
		ExternalID:      g.ExternalID,
		Name:            g.Name,
		Summary:         g.Summary,
		ReleaseDate:     releaseDate,
		CoverURL:        g.CoverURL,
		Genres:          g.Genres,
		Platforms:       g.Platforms,
		Developer:       g.Developer,
		Publisher:       g.Publisher,
		Category:        int(g.Category),
		Rating:          g.Rating,
		RatingCount:     g.RatingCount,
		UserRating:      g.UserRating,
		UserRatingCount: g.UserRatingCount,
		Follows:         g.Follows,
		Hypes:           g.Hypes,
		Engagement:      g.Engagement(),
		Greenlight:      g.Greenlight,
		Redlight:        g.Redlight,
		FlagReason:      g.FlagReason,
		LastSyncedAt:    lastSynced,
	}
}

func fromDoc(doc gameDoc) domain.Game {
	game := domain.Game{
		StoreID:         doc.ID,
		ExternalID:      doc.ExternalID,
		Source:          domain.SourceCatalog,
		Name:            doc.Name,
		Summary:         doc.Summary,
		CoverURL:        doc.CoverURL,
		Genres:          doc.Genres,
		Platforms:       doc.Platforms,
		Developer:       doc.Developer,
		Publisher:       doc.Publisher,
		Category:        domain.Category(doc.Category),
		Rating:          doc.Rating,
		RatingCount:     doc.RatingCount,
		UserRating:      doc.UserRating,
		UserRatingCount: doc.UserRatingCount,
		Follows:         doc.Follows,
		Hypes:           doc.Hypes,
		Greenlight:      doc.Greenlight,
		Redlight:        doc.Redlight,
		FlagReason:      doc.FlagReason,
	}
	if doc.ReleaseDate > 0 {
		released := time.Unix(doc.ReleaseDate, 0).UTC()
		game.ReleaseDate = &released
	}
	if doc.LastSyncedAt > 0 {
		game.LastSyncedAt = time.Unix(doc.LastSyncedAt, 0).UTC()
	}
	return game
}

func fromDocs(docs []gameDoc) []domain.Game {
	games := make([]domain.Game, 0, len(docs))
	for _, doc := range docs {
		games = append(games, fromDoc(doc))
	}
	return games
}
