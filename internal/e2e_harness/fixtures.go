package e2e_harness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pgsql"
	"github.com/lychee-technology/pimsync/internal/pim"
)

// EnsureBucket creates bucket on the S3 endpoint unless it already exists.
func EnsureBucket(ctx context.Context, endpoint, accessKey, secretKey, bucket string) error {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}
	if endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(endpoint))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// ReadWatermark returns the last import time stored for runtimeID in table.
func ReadWatermark(ctx context.Context, db *sql.DB, table, runtimeID string) (string, error) {
	var last string
	query := fmt.Sprintf("SELECT last_imported_time FROM %s WHERE runtime_id = $1", pgsql.SanitizeIdentifier(table))
	if err := db.QueryRowContext(ctx, query, runtimeID).Scan(&last); err != nil {
		return "", fmt.Errorf("read watermark: %w", err)
	}
	return last, nil
}

// CountCacheEntries returns the number of rows of the postgres cache table.
func CountCacheEntries(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT count(*) FROM %s", pgsql.SanitizeIdentifier(table))
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// CatalogServer is an in-process PIM serving a small catalog: one master
// product model with one variant, one simple product and one asset.
type CatalogServer struct {
	*httptest.Server

	mu          sync.Mutex
	collections map[string][]string
	resources   map[string]string
	hits        map[string]int
}

// NewCatalogServer starts the catalog server. Callers must Close it.
func NewCatalogServer() *CatalogServer {
	s := &CatalogServer{
		collections: map[string][]string{},
		resources:   map[string]string{},
		hits:        map[string]int{},
	}
	variant := `{"code":"shirt_color","variant_attribute_sets":[{"level":1,"axes":["color"],"attributes":["color","price","gallery"]}]}`
	variantProduct := `{"identifier":"sku-1","family":"shirts","parent":"shirt","values":{
		"color":[{"data":"red","locale":null,"scope":null}],
		"price":[{"data":[{"amount":"5","currency":"EUR"}],"locale":null,"scope":null}],
		"gallery":[{"data":["front"],"locale":null,"scope":null}]
	}}`

	s.collections[pim.AttributesPath] = []string{
		`{"code":"name","type":"pim_catalog_text","localizable":true}`,
		`{"code":"price","type":"pim_catalog_price_collection"}`,
		`{"code":"color","type":"pim_catalog_simpleselect"}`,
		`{"code":"gallery","type":"pim_catalog_asset_collection"}`,
	}
	s.collections[pim.AttributeOptionsPath("color")] = []string{
		`{"code":"red","attribute":"color","labels":{"en_US":"Red","fr_FR":"Rouge"}}`,
	}
	s.collections[pim.FamiliesPath] = []string{`{"code":"shirts"}`}
	s.collections[pim.FamilyVariantsPath("shirts")] = []string{variant}
	s.resources[pim.FamilyVariantPath("shirts", "shirt_color")] = variant
	s.collections[pim.AssetFamiliesPath] = []string{`{"code":"packshots"}`}
	s.collections[pim.AssetFamilyAssetsPath("packshots")] = []string{`{"code":"front","values":{}}`}
	s.collections[pim.ProductModelsPath] = []string{
		`{"code":"shirt","family":"shirts","family_variant":"shirt_color","values":{
			"name":[{"data":"Shirt","locale":"en_US","scope":null},{"data":"Chemise","locale":"fr_FR","scope":null}]
		}}`,
	}
	s.collections[pim.ProductsPath] = []string{
		variantProduct,
		`{"identifier":"mug","family":"mugs","categories":["kitchen"],"values":{"name":[{"data":"Mug","locale":"en_US","scope":null}]}}`,
	}
	s.resources[pim.ProductPath("sku-1")] = variantProduct
	s.collections[pim.CategoriesPath] = []string{`{"code":"kitchen","parent":null,"labels":{"en_US":"Kitchen"}}`}
	s.collections[pim.ReferenceEntitiesPath] = []string{`{"code":"brands"}`}
	s.collections[pim.ReferenceEntityRecordsPath("brands")] = []string{
		`{"code":"acme","values":{"label":[{"locale":"en_US","channel":null,"data":"Acme"}]}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(pim.TokenPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "e2e-token", "expires_in": 3600})
	})
	mux.HandleFunc("/", s.serve)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *CatalogServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[r.URL.Path]++
	if body, ok := s.resources[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
		return
	}
	items := make([]json.RawMessage, 0)
	for _, item := range s.collections[r.URL.Path] {
		items = append(items, json.RawMessage(item))
	}
	writeJSON(w, map[string]any{
		"_links":    map[string]any{"self": map[string]string{"href": r.URL.String()}},
		"_embedded": map[string]any{"items": items},
	})
}

// Hits returns how often path was requested
func (s *CatalogServer) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Config returns a configuration pointing at the catalog server.
func (s *CatalogServer) Config() *pimsync.Config {
	cfg := pimsync.DefaultConfig()
	cfg.PIM.BaseURL = s.URL
	cfg.PIM.ClientID = "e2e"
	cfg.PIM.ClientSecret = "e2e-secret"
	cfg.PIM.Username = "e2e"
	cfg.PIM.Password = "e2e"
	cfg.PIM.RequestsPerSecond = 0
	cfg.PIM.Timeout = 10 * time.Second
	cfg.Import.CatalogID = "master"
	return cfg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
