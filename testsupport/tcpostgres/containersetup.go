package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	defaultImage = "postgres:17"
	pgPort       = "5432/tcp"
)

// Container is a reusable postgres container for repository tests.
type Container struct {
	testcontainers.Container
	user, password, db string
}

type containerConfig struct {
	name               string
	image              string
	user, password, db string
	startupTimeout     time.Duration
}

type ContainerOption func(c *containerConfig)

func WithName(name string) ContainerOption {
	return func(c *containerConfig) {
		c.name = name
	}
}

func WithImage(image string) ContainerOption {
	return func(c *containerConfig) {
		c.image = image
	}
}

func WithCredentials(user, password, db string) ContainerOption {
	return func(c *containerConfig) {
		c.user, c.password, c.db = user, password, db
	}
}

// StartPostgres starts the container or reuses a running one with the same name.
// fsync is disabled, the data does not survive the container.
func StartPostgres(ctx context.Context, opts ...ContainerOption) (*Container, error) {
	cfg := &containerConfig{
		name:           "trackside-test",
		image:          defaultImage,
		user:           "postgres",
		password:       "password",
		db:             "postgres",
		startupTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	req := testcontainers.ContainerRequest{
		Name:         cfg.name,
		Image:        cfg.image,
		ExposedPorts: []string{pgPort},
		Cmd:          []string{"postgres", "-c", "fsync=off"},
		Env: map[string]string{
			"POSTGRES_USER":     cfg.user,
			"POSTGRES_PASSWORD": cfg.password,
			"POSTGRES_DB":       cfg.db,
		},
		// the server restarts once after the init scripts
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(cfg.startupTimeout),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Reuse:            true,
	})
	if err != nil {
		return nil, err
	}
	return &Container{Container: c, user: cfg.user, password: cfg.password, db: cfg.db}, nil
}

// URL is the connection string of the mapped port.
func (c *Container) URL(ctx context.Context) (string, error) {
	port, err := c.MappedPort(ctx, nat.Port(pgPort))
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, port.Port(), c.db), nil
}
