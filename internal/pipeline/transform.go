package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Searching runs a search. Implemented by *Searcher.
type Searching interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

// SearchTransformer implements Transformer: it decodes a SearchRequest,
// runs it and encodes the resulting SearchRunEvent.
type SearchTransformer struct {
	searcher Searching
	logger   *slog.Logger
}

// NewTransformer creates a SearchTransformer.
func NewTransformer(searcher Searching, logger *slog.Logger) *SearchTransformer {
	return &SearchTransformer{
		searcher: searcher,
		logger:   logger,
	}
}

func (t *SearchTransformer) Transform(ctx context.Context, raw RawMessage) (OutputMessage, error) {
	req, err := DecodeSearchRequest(raw)
	if err != nil {
		t.logger.Debug("undecodable search request", "key", string(raw.Key), "offset", raw.Offset, "error", err)
		return OutputMessage{}, err
	}

	t.logger.Debug("running search request", "id", req.ID, "mode", req.Mode)
	res, err := t.searcher.Search(ctx, req)
	if err != nil {
		return OutputMessage{}, fmt.Errorf("search %s: %w", req.ID, err)
	}
	return EncodeSearchRunEvent(NewSearchRunEvent(res))
}

// DecodeSearchRequest parses a request message. A request without an id
// takes the message key as its id.
func DecodeSearchRequest(raw RawMessage) (SearchRequest, error) {
	var req SearchRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return SearchRequest{}, fmt.Errorf("decode search request: %w", err)
	}
	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	return req, nil
}
