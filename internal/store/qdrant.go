// ABOUTME: Qdrant implementation of StateStore; each snapshot is a point whose vector is its axes
// ABOUTME: Latest points use a deterministic UUID per user, history points are filtered by payload

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/2389/attuned-gateway/internal/health"
	"github.com/2389/attuned-gateway/internal/state"
)

// DefaultQdrantCollection is used when QdrantConfig.Collection is empty.
const DefaultQdrantCollection = "attuned_state"

const (
	kindLatest  = "latest"
	kindHistory = "history"

	// extra history points read past the cap so concurrent writers still trim
	historyScrollSlack = 64
)

var latestNamespace = uuid.MustParse("6f1d4f8e-3c52-5d7b-9a43-2f0c7a1e5b90")

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	History    HistoryOptions
}

// QdrantStore keeps snapshots as points in a Qdrant collection. The vector
// of every point is the snapshot's axes in canonical order, unset axes at 0.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	history    HistoryOptions
	logger     *slog.Logger

	// serializes same-user writes within this process so trims don't race
	userLocks [32]sync.Mutex
}

// NewQdrantStore connects and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultQdrantCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, NewConnection(fmt.Sprintf("creating qdrant client for %s:%d", cfg.Host, cfg.Port), err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		history:    cfg.History.normalized(),
		logger:     slog.Default().With("component", "store", "backend", BackendQdrant),
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	s.logger.Info("Qdrant store initialized", "host", cfg.Host, "collection", cfg.Collection)
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return NewConnection("checking collection", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(len(state.CanonicalAxes())),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return NewInternal("creating collection", err)
	}
	return nil
}

func (s *QdrantStore) lockUser(userID string) *sync.Mutex {
	return &s.userLocks[xxhash.Sum64String(userID)%uint64(len(s.userLocks))]
}

func latestPointID(userID string) string {
	return uuid.NewSHA1(latestNamespace, []byte(userID)).String()
}

func axesVector(axes map[string]float64) []float32 {
	canonical := state.CanonicalAxes()
	vec := make([]float32, len(canonical))
	for i, a := range canonical {
		vec[i] = float32(axes[a.Name])
	}
	return vec
}

func snapshotPayload(snap *state.Snapshot, kind string, seq int64) (map[string]*qdrant.Value, error) {
	axes, err := json.Marshal(snap.Axes)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"user_id":       snap.UserID,
		"kind":          kind,
		"source":        string(snap.Source),
		"confidence":    snap.Confidence,
		"axes":          string(axes),
		"updated_at_ms": snap.UpdatedAtUnixMs,
		"seq":           seq,
	}
	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("converting payload field %s: %w", key, err)
		}
		payload[key] = val
	}
	return payload, nil
}

func userFilter(userID, kind string) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("user_id", userID)}
	if kind != "" {
		must = append(must, qdrant.NewMatch("kind", kind))
	}
	return &qdrant.Filter{Must: must}
}

// UpsertLatest overwrites the user's latest point and appends a history point.
func (s *QdrantStore) UpsertLatest(ctx context.Context, snap *state.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}

	mu := s.lockUser(snap.UserID)
	mu.Lock()
	defer mu.Unlock()

	seq := time.Now().UnixNano()
	vec := axesVector(snap.Axes)

	latest, err := snapshotPayload(snap, kindLatest, seq)
	if err != nil {
		return NewInternal("encoding payload", err)
	}
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewID(latestPointID(snap.UserID)),
		Vectors: qdrant.NewVectors(vec...),
		Payload: latest,
	}}

	keepHistory := s.history.Enabled && s.history.MaxPerUser > 0
	if keepHistory {
		hist, err := snapshotPayload(snap, kindHistory, seq)
		if err != nil {
			return NewInternal("encoding payload", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vec...),
			Payload: hist,
		})
	}

	wait := true
	if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return NewConnection("upserting points", err)
	}

	if keepHistory {
		return s.trimHistory(ctx, snap.UserID)
	}
	return nil
}

func (s *QdrantStore) trimHistory(ctx context.Context, userID string) error {
	points, err := s.scrollHistory(ctx, userID)
	if err != nil {
		return err
	}
	if len(points) <= s.history.MaxPerUser {
		return nil
	}

	stale := make([]*qdrant.PointId, 0, len(points)-s.history.MaxPerUser)
	for _, p := range points[s.history.MaxPerUser:] {
		stale = append(stale, p.Id)
	}
	wait := true
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: stale},
			},
		},
	})
	if err != nil {
		return NewConnection("trimming history", err)
	}
	return nil
}

// scrollHistory returns the user's history points, newest first.
func (s *QdrantStore) scrollHistory(ctx context.Context, userID string) ([]*qdrant.RetrievedPoint, error) {
	limit := uint32(s.history.MaxPerUser + historyScrollSlack)
	resp, err := s.client.GetPointsClient().Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         userFilter(userID, kindHistory),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, NewConnection("scrolling history", err)
	}

	points := resp.GetResult()
	slices.SortFunc(points, func(a, b *qdrant.RetrievedPoint) int {
		sa, sb := a.GetPayload()["seq"].GetIntegerValue(), b.GetPayload()["seq"].GetIntegerValue()
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		return 0
	})
	return points, nil
}

// GetLatest fetches the user's latest point by its deterministic id.
func (s *QdrantStore) GetLatest(ctx context.Context, userID string) (*state.Snapshot, error) {
	resp, err := s.client.GetPointsClient().Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(latestPointID(userID))},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, NewConnection("getting latest point", err)
	}
	points := resp.GetResult()
	if len(points) == 0 {
		return nil, nil
	}
	return pointSnapshot(points[0].GetPayload())
}

// Delete removes every point carrying the user's id.
func (s *QdrantStore) Delete(ctx context.Context, userID string) error {
	mu := s.lockUser(userID)
	mu.Lock()
	defer mu.Unlock()

	wait := true
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: userFilter(userID, ""),
			},
		},
	})
	if err != nil {
		return NewConnection("deleting user points", err)
	}
	return nil
}

// GetHistory returns up to limit snapshots, newest first.
func (s *QdrantStore) GetHistory(ctx context.Context, userID string, limit int) ([]*state.Snapshot, error) {
	if limit <= 0 || !s.history.Enabled {
		return []*state.Snapshot{}, nil
	}
	points, err := s.scrollHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	n := min(limit, len(points), s.history.MaxPerUser)
	out := make([]*state.Snapshot, 0, n)
	for _, p := range points[:n] {
		snap, err := pointSnapshot(p.GetPayload())
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// HealthCheck calls Qdrant's health endpoint.
func (s *QdrantStore) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return NewConnection("qdrant health check", err)
	}
	return nil
}

// Check implements health.Checker.
func (s *QdrantStore) Check(ctx context.Context) health.ComponentHealth {
	return health.Timed("qdrant_store", 500*time.Millisecond, func() error {
		return s.HealthCheck(ctx)
	})
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func pointSnapshot(payload map[string]*qdrant.Value) (*state.Snapshot, error) {
	var axes map[string]float64
	if err := json.Unmarshal([]byte(payload["axes"].GetStringValue()), &axes); err != nil {
		return nil, NewInternal("decoding axes payload", err)
	}
	snap, err := state.Restore(
		payload["user_id"].GetStringValue(),
		state.Source(payload["source"].GetStringValue()),
		payload["confidence"].GetDoubleValue(),
		axes,
		payload["updated_at_ms"].GetIntegerValue(),
	)
	if err != nil {
		return nil, NewInternal("stored snapshot is invalid", err)
	}
	return snap, nil
}
