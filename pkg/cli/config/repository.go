package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/synapse/pkg/domain/interfaces"
	"github.com/secmon-lab/synapse/pkg/domain/model"
	"github.com/secmon-lab/synapse/pkg/repository/firestore"
	"github.com/secmon-lab/synapse/pkg/repository/memory"
	"github.com/secmon-lab/synapse/pkg/repository/sqlite"
	"github.com/secmon-lab/synapse/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Repository holds CLI flags for the graph store backend
type Repository struct {
	backend          string
	projectID        string
	databaseID       string
	collectionPrefix string
	sqlitePath       string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Graph store backend [firestore|sqlite|memory]",
			Value:       "firestore",
			Category:    "Repository",
			Sources:     cli.EnvVars("SYNAPSE_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("SYNAPSE_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("SYNAPSE_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix prepended to every Firestore collection name",
			Category:    "Repository",
			Sources:     cli.EnvVars("SYNAPSE_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file (sqlite backend)",
			Value:       "synapse.db",
			Category:    "Repository",
			Sources:     cli.EnvVars("SYNAPSE_SQLITE_PATH"),
			Destination: &r.sqlitePath,
		},
	}
}

func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("project_id", r.projectID),
		slog.String("database_id", r.databaseID),
		slog.String("collection_prefix", r.collectionPrefix),
		slog.String("sqlite_path", r.sqlitePath),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// Configure opens the graph store of the configured backend. The caller is
// responsible for calling Close() on it.
func (r *Repository) Configure(ctx context.Context) (interfaces.GraphStore, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.Wrap(model.ErrConfiguration, "firestore-project-id is required when using firestore backend")
		}
		store, err := firestore.New(ctx, r.projectID, r.databaseID,
			firestore.WithCollectionPrefix(r.collectionPrefix))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore graph store")
		}
		logging.Default().Info("Using Firestore graph store",
			"project_id", r.projectID,
			"database_id", r.databaseID,
			"collection_prefix", r.collectionPrefix,
		)
		return store, nil

	case "sqlite":
		if r.sqlitePath == "" {
			return nil, goerr.Wrap(model.ErrConfiguration, "sqlite-path is required when using sqlite backend")
		}
		store, err := sqlite.New(ctx, r.sqlitePath)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize sqlite graph store")
		}
		logging.Default().Info("Using SQLite graph store", "path", r.sqlitePath)
		return store, nil

	case "memory":
		logging.Default().Info("Using in-memory graph store (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(model.ErrConfiguration, "invalid repository backend", goerr.V("backend", r.backend))
	}
}
