package search

import (
	"context"
	"fmt"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	algolia "github.com/algolia/algoliasearch-client-go/v3/algolia/search"
)

// AlgoliaIndex is an Index backed by Algolia. Every write waits for the
// indexing task to finish.
type AlgoliaIndex struct {
	index *algolia.Index
}

// NewAlgoliaIndex opens indexName in the given application.
func NewAlgoliaIndex(appID, apiKey, indexName string) (*AlgoliaIndex, error) {
	if appID == "" || apiKey == "" {
		return nil, fmt.Errorf("algolia app id and api key are required")
	}
	if indexName == "" {
		return nil, fmt.Errorf("algolia index name is empty")
	}
	client := algolia.NewClient(appID, apiKey)
	return &AlgoliaIndex{index: client.InitIndex(indexName)}, nil
}

// ClearObjects implements Index.
func (a *AlgoliaIndex) ClearObjects(ctx context.Context) error {
	res, err := a.index.ClearObjects(ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

// SaveObjects implements Index.
func (a *AlgoliaIndex) SaveObjects(ctx context.Context, records []Record) error {
	res, err := a.index.SaveObjects(records, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

// SetSettings implements Index.
func (a *AlgoliaIndex) SetSettings(ctx context.Context, s Settings) error {
	res, err := a.index.SetSettings(algolia.Settings{
		SearchableAttributes:  opt.SearchableAttributes(s.SearchableAttributes...),
		AttributesForFaceting: opt.AttributesForFaceting(s.AttributesForFaceting...),
		CustomRanking:         opt.CustomRanking(s.CustomRanking...),
		AttributesToRetrieve:  opt.AttributesToRetrieve(s.AttributesToRetrieve...),
	}, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}
