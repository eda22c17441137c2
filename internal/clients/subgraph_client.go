package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// SubscribeEvent is one MeToken subscription event as indexed by the subgraph.
type SubscribeEvent struct {
	MeToken        string `json:"meToken"`
	Asset          string `json:"asset"`
	BlockTimestamp string `json:"blockTimestamp"`
}

// MeTokenIndexer lists recently created MeTokens, newest first. Results lag
// the chain by the indexer's head delay, so candidates are verified against
// the chain registry before being trusted.
type MeTokenIndexer interface {
	RecentSubscribes(ctx context.Context, first, skip int) ([]SubscribeEvent, error)
}

// SubgraphClient queries the MeTokens subgraph over GraphQL.
type SubgraphClient struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewSubgraphClient binds the subgraph endpoint. apiKey may be empty for
// public endpoints.
func NewSubgraphClient(url, apiKey string) *SubgraphClient {
	return &SubgraphClient{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

const recentSubscribesQuery = `query RecentSubscribes($first: Int!, $skip: Int!) {
  subscribes(first: $first, skip: $skip, orderBy: blockTimestamp, orderDirection: desc) {
    meToken
    asset
    blockTimestamp
  }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type recentSubscribesResponse struct {
	Data struct {
		Subscribes []SubscribeEvent `json:"subscribes"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// RecentSubscribes returns up to first subscription events starting at offset
// skip, newest first.
func (c *SubgraphClient) RecentSubscribes(ctx context.Context, first, skip int) ([]SubscribeEvent, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: recentSubscribesQuery,
		Variables: map[string]interface{}{
			"first": first,
			"skip":  skip,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal subgraph query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build subgraph request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subgraph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}

	var parsed recentSubscribesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode subgraph response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("subgraph query error: %s", parsed.Errors[0].Message)
	}

	logrus.WithFields(logrus.Fields{
		"first":   first,
		"skip":    skip,
		"results": len(parsed.Data.Subscribes),
	}).Debug("Subgraph recent subscribes fetched")
	return parsed.Data.Subscribes, nil
}
