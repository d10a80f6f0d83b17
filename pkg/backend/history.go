package backend

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/homai-panel/pkg/rpc"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// GetChangeHistory returns the newest history entries of an entry,
// optionally filtered by channel.
func (s *Service) GetChangeHistory(ctx context.Context, p rpc.HistoryParams) (*rpc.HistoryResult, error) {
	if p.EntryID == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id is required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	entries, total, err := s.db.History().List(ctx, p.EntryID, p.ChannelAddress, limit)
	if err != nil {
		return nil, err
	}
	return &rpc.HistoryResult{Entries: entries, Total: total}, nil
}

// ClearChangeHistory removes every history entry of an entry.
func (s *Service) ClearChangeHistory(ctx context.Context, p rpc.HistoryParams) (*rpc.ClearHistoryResult, error) {
	if p.EntryID == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "entry_id is required")
	}
	n, err := s.db.History().Clear(ctx, p.EntryID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("entry", p.EntryID).Int("cleared", n).Msg("Change history cleared")
	return &rpc.ClearHistoryResult{Success: true, Cleared: n}, nil
}
