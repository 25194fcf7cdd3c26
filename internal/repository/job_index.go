package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"github.com/timmy/gigescrow/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Jobs are indexed for full-text payload matching only; every point carries
// the same one-dimensional placeholder vector.
const (
	indexVectorSize = 1
	textField       = "text"
	statusField     = "status"
	categoryField   = "category"
	tagsField       = "tags"
)

var placeholderVector = []float32{1}

// JobIndexConfig holds configuration for the Qdrant connection.
type JobIndexConfig struct {
	Host       string
	Port       int
	Collection string
	APIKey     string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS     bool
}

// apiKeyInterceptor creates a unary interceptor that adds API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// JobIndex keeps a searchable copy of open jobs in Qdrant.
type JobIndex struct {
	conn           *grpc.ClientConn
	pointsClient   pb.PointsClient
	collectClient  pb.CollectionsClient
	collectionName string
}

// NewJobIndex creates a JobIndex.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewJobIndex(cfg *JobIndexConfig) (*JobIndex, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	if cfg.UseTLS || cfg.APIKey != "" {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &JobIndex{
		conn:           conn,
		pointsClient:   pb.NewPointsClient(conn),
		collectClient:  pb.NewCollectionsClient(conn),
		collectionName: cfg.Collection,
	}, nil
}

// Close closes the gRPC connection
func (r *JobIndex) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection and its payload indexes if missing.
func (r *JobIndex) EnsureCollection(ctx context.Context) error {
	if _, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	}); err == nil {
		return nil
	}

	_, err := r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     indexVectorSize,
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	indexes := map[string]pb.FieldType{
		textField:     pb.FieldType_FieldTypeText,
		statusField:   pb.FieldType_FieldTypeKeyword,
		categoryField: pb.FieldType_FieldTypeKeyword,
		tagsField:     pb.FieldType_FieldTypeKeyword,
	}
	for field, fieldType := range indexes {
		if _, err := r.pointsClient.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
			CollectionName: r.collectionName,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		}); err != nil {
			return fmt.Errorf("failed to index payload field %s: %w", field, err)
		}
	}
	return nil
}

// pointID maps a job UUID onto a Qdrant point id.
func pointID(jobID string) (*pb.PointId, error) {
	uid, err := uuid.Parse(jobID)
	if err != nil {
		return nil, fmt.Errorf("job id %q is not a uuid: %w", jobID, err)
	}
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}}, nil
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func listValue(items []string) *pb.Value {
	values := make([]*pb.Value, len(items))
	for i, item := range items {
		values[i] = stringValue(item)
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

// searchText is what the full-text index sees for a job.
func searchText(job *domain.Job) string {
	parts := append([]string{job.Title, job.Description, job.Category}, job.SkillsRequired...)
	parts = append(parts, job.Tags...)
	return strings.Join(parts, " ")
}

// Index inserts or replaces the search document of a job.
func (r *JobIndex) Index(ctx context.Context, job *domain.Job) error {
	id, err := pointID(job.ID)
	if err != nil {
		return err
	}
	point := &pb.PointStruct{
		Id:      id,
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: placeholderVector}}},
		Payload: map[string]*pb.Value{
			"job_id":      stringValue(job.ID),
			textField:     stringValue(searchText(job)),
			statusField:   stringValue(string(job.Status)),
			categoryField: stringValue(strings.ToLower(job.Category)),
			tagsField:     listValue(job.Tags),
		},
	}
	if _, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         []*pb.PointStruct{point},
	}); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// Search returns the IDs of open jobs matching filter, in index order.
func (r *JobIndex) Search(ctx context.Context, filter domain.SearchFilter) ([]string, error) {
	lim := uint32(filter.Limit)
	resp, err := r.pointsClient.Scroll(ctx, &pb.ScrollPoints{
		CollectionName: r.collectionName,
		Filter:         buildSearchFilter(filter),
		Limit:          &lim,
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	ids := make([]string, 0, len(resp.Result))
	for _, point := range resp.Result {
		if v, ok := point.Payload["job_id"]; ok && v.GetStringValue() != "" {
			ids = append(ids, v.GetStringValue())
			continue
		}
		ids = append(ids, point.Id.GetUuid())
	}
	return ids, nil
}

func fieldMatch(key string, m *pb.Match) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{Key: key, Match: m}}}
}

// buildSearchFilter restricts a search to open jobs. Text, category and tags
// narrow it further when set; a job carrying any of the tags matches.
func buildSearchFilter(filter domain.SearchFilter) *pb.Filter {
	must := []*pb.Condition{
		fieldMatch(statusField, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: string(domain.JobStatusOpen)}}),
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		must = append(must, fieldMatch(textField, &pb.Match{MatchValue: &pb.Match_Text{Text: q}}))
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		must = append(must, fieldMatch(categoryField, &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: strings.ToLower(category)}}))
	}
	if tags := domain.NormalizeTags(filter.Tags); len(tags) > 0 {
		must = append(must, fieldMatch(tagsField, &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: tags}}}))
	}
	return &pb.Filter{Must: must}
}

// Remove deletes a job's search document.
func (r *JobIndex) Remove(ctx context.Context, jobID string) error {
	id, err := pointID(jobID)
	if err != nil {
		return err
	}
	_, err = r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: []*pb.PointId{id}},
		}},
	})
	if err != nil {
		return fmt.Errorf("delete job %s from index: %w", jobID, err)
	}
	return nil
}
