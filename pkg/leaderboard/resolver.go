package leaderboard

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/despreadlabs/leaderboard-collector/pkg/notion"
)

// ContentDatabase is the subset of the Notion API needed to enumerate tracked projects.
type ContentDatabase interface {
	Database(ctx context.Context, databaseID string) (*notion.Database, error)
	QueryDataSource(ctx context.Context, dataSourceID string, logger *logrus.Entry) ([]notion.Page, error)
	QueryDatabase(ctx context.Context, databaseID string, logger *logrus.Entry) ([]notion.Page, error)
}

var _ ContentDatabase = &notion.Client{}

// Resolver turns the content database into the list of entities to collect for.
type Resolver struct {
	database   ContentDatabase
	databaseID string
}

// NewResolver creates a Resolver reading the given database.
func NewResolver(database ContentDatabase, databaseID string) *Resolver {
	return &Resolver{database: database, databaseID: databaseID}
}

// Resolve lists the distinct group identifiers of the database. Only a failure to read the
// database metadata is fatal: partitions that cannot be queried are logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, logger *logrus.Entry) ([]Entity, error) {
	db, err := r.database.Database(ctx, r.databaseID)
	if err != nil {
		return nil, fmt.Errorf("could not determine data sources: %w", err)
	}

	var pages []notion.Page
	if len(db.DataSources) == 0 {
		logger.Info("Database exposes no data sources, using the legacy database query.")
		pages, err = r.database.QueryDatabase(ctx, r.databaseID, logger)
		if err != nil {
			dataSourceQueryFailures.Inc()
			logger.WithError(err).Error("Failed to query database.")
		}
	} else {
		pages = r.queryDataSources(ctx, db.DataSources, logger)
	}

	entities := entitiesFrom(pages, logger)
	logger.WithFields(logrus.Fields{
		"data_sources": len(db.DataSources),
		"pages":        len(pages),
		"entities":     len(entities),
	}).Info("Resolved entities.")
	return entities, nil
}

func (r *Resolver) queryDataSources(ctx context.Context, sources []notion.DataSourceRef, logger *logrus.Entry) []notion.Page {
	results := make([][]notion.Page, len(sources))
	var g errgroup.Group
	for i, source := range sources {
		g.Go(func() error {
			sourceLogger := logger.WithFields(logrus.Fields{"data_source": source.ID, "data_source_name": source.Name})
			pages, err := r.database.QueryDataSource(ctx, source.ID, sourceLogger)
			if err != nil {
				dataSourceQueryFailures.Inc()
				sourceLogger.WithError(err).Error("Failed to query data source, skipping it.")
				return nil
			}
			sourceLogger.WithField("pages", len(pages)).Debug("Queried data source.")
			results[i] = pages
			return nil
		})
	}
	// partition failures are handled above, nothing is ever returned
	_ = g.Wait()

	var pages []notion.Page
	for _, result := range results {
		pages = append(pages, result...)
	}
	return pages
}

// entitiesFrom keeps, in order, the first page carrying each group identifier.
func entitiesFrom(pages []notion.Page, logger *logrus.Entry) []Entity {
	seen := sets.New[string]()
	var entities []Entity
	for _, page := range pages {
		groupID, ok := ResolveGroupID(page.Properties)
		if !ok {
			entitiesSkipped.WithLabelValues(skipReasonNoGroupID).Inc()
			logger.WithField("page", page.ID).Debug("Page has no group identifier, skipping it.")
			continue
		}
		if seen.Has(groupID) {
			entitiesSkipped.WithLabelValues(skipReasonDuplicate).Inc()
			logger.WithFields(logrus.Fields{"page": page.ID, "group_id": groupID}).Debug("Group identifier already seen, skipping page.")
			continue
		}
		seen.Insert(groupID)
		entities = append(entities, Entity{PageID: page.ID, GroupID: groupID})
	}
	return entities
}
