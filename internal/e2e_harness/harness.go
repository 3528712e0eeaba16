package e2e_harness

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/lib/pq"
	"github.com/lychee-technology/pimsync"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Credentials of the containers started by the harness
const (
	PGPassword  = "password"
	S3AccessKey = "minioadmin"
	S3SecretKey = "minioadmin"
)

// TestHarness holds lightweight runners for the cache and watermark backends used by E2E tests.
type TestHarness struct {
	PGContainer testcontainers.Container
	PGDSN       string
	PGDB        *sql.DB
	Postgres    pimsync.PostgresConfig

	S3Container testcontainers.Container
	S3Endpoint  string

	RedisContainer testcontainers.Container
	Redis          pimsync.RedisConfig
}

func startContainer(ctx context.Context, req testcontainers.ContainerRequest, port string) (testcontainers.Container, string, int, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", 0, err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, "", 0, err
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		return container, "", 0, err
	}
	return container, host, mapped.Int(), nil
}

// StartPostgres starts a postgres container and returns a DSN.
// It waits until Postgres is reachable. Caller is responsible for calling StopPostgres.
func (h *TestHarness) StartPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": PGPassword,
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "pimsync",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, host, port, err := startContainer(ctx, req, "5432")
	h.PGContainer = container
	if err != nil {
		return "", err
	}

	cfg := pimsync.DefaultConfig().Cache.Postgres
	cfg.Host = host
	cfg.Port = port
	cfg.Database = "pimsync"
	cfg.Username = "postgres"
	cfg.Password = PGPassword
	h.Postgres = cfg
	h.PGDSN = cfg.DSN(PGPassword)

	db, err := sql.Open("postgres", h.PGDSN)
	if err != nil {
		return "", err
	}
	deadline := time.Now().Add(20 * time.Second)
	for {
		if err := db.PingContext(ctx); err == nil {
			h.PGDB = db
			return h.PGDSN, nil
		}
		if time.Now().After(deadline) {
			db.Close()
			return "", fmt.Errorf("postgres did not become ready: %w", err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// StopPostgres stops the Postgres container and closes DB handle.
func (h *TestHarness) StopPostgres(ctx context.Context) error {
	if h.PGDB != nil {
		h.PGDB.Close()
		h.PGDB = nil
	}
	return terminate(ctx, &h.PGContainer)
}

// StartS3 starts a MinIO container and returns its endpoint.
func (h *TestHarness) StartS3(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Cmd:          []string{"server", "/data"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     S3AccessKey,
			"MINIO_ROOT_PASSWORD": S3SecretKey,
		},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, host, port, err := startContainer(ctx, req, "9000")
	h.S3Container = container
	if err != nil {
		return "", err
	}
	h.S3Endpoint = "http://" + host + ":" + strconv.Itoa(port)
	return h.S3Endpoint, nil
}

// StopS3 stops the MinIO container.
func (h *TestHarness) StopS3(ctx context.Context) error {
	return terminate(ctx, &h.S3Container)
}

// StartRedis starts a redis container and returns its address.
func (h *TestHarness) StartRedis(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, host, port, err := startContainer(ctx, req, "6379")
	h.RedisContainer = container
	if err != nil {
		return "", err
	}
	cfg := pimsync.DefaultConfig().Cache.Redis
	cfg.Host = host
	cfg.Port = port
	cfg.KeyPrefix = "pimsync-e2e"
	h.Redis = cfg
	return host + ":" + strconv.Itoa(port), nil
}

// StopRedis stops the redis container.
func (h *TestHarness) StopRedis(ctx context.Context) error {
	return terminate(ctx, &h.RedisContainer)
}

func terminate(ctx context.Context, c *testcontainers.Container) error {
	if *c == nil {
		return nil
	}
	if err := (*c).Terminate(ctx); err != nil {
		return err
	}
	*c = nil
	return nil
}
