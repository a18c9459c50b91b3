package dedup

import (
	"context"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Realm-101/unbuilt-advisor/internal/cache"
	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Config tunes duplicate detection.
type Config struct {
	// Threshold is the similarity at or above which two queries match.
	Threshold float64 `yaml:"threshold"`

	// HistoryWindow is how many of the most recent user messages
	// FindSimilarQuery compares against.
	HistoryWindow int `yaml:"history_window"`

	// CostPerHit is the estimated model cost saved by each history hit, in USD.
	CostPerHit float64 `yaml:"cost_per_hit"`

	// IndexTTL and IndexSize bound the cross-conversation index.
	IndexTTL  time.Duration `yaml:"index_ttl"`
	IndexSize int           `yaml:"index_size"`
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.8
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.CostPerHit <= 0 {
		c.CostPerHit = 0.002
	}
	if c.IndexTTL <= 0 {
		c.IndexTTL = 24 * time.Hour
	}
	if c.IndexSize <= 0 {
		c.IndexSize = 1000
	}
	return c
}

// Match is the result of a similarity lookup. CachedResponse is empty when
// Similar is false.
type Match struct {
	Similar        bool    `json:"is_similar"`
	Similarity     float64 `json:"similarity"`
	CachedResponse string  `json:"cached_response,omitempty"`
	MatchedQuery   string  `json:"matched_query,omitempty"`
}

// Stats is a snapshot of the history-scan counters.
type Stats struct {
	TotalQueries     int64   `json:"total_queries"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	HitRate          float64 `json:"hit_rate"`
	EstimatedSavings float64 `json:"estimated_cost_savings"`
}

type indexEntry struct {
	words          map[string]struct{}
	query          string
	conversationID string
	key            string
	expires        time.Time
	seq            uint64
}

// Service finds repeated questions. All methods are safe for concurrent use.
type Service struct {
	config Config
	cache  cache.Cache
	logger *slog.Logger
	now    func() time.Time

	total  atomic.Int64
	hits   atomic.Int64
	misses atomic.Int64

	mu    sync.Mutex
	index map[string]*indexEntry
	seq   uint64
}

// NewService creates a Service. A nil cache disables the cross-conversation
// index: lookups always miss.
func NewService(cfg Config, c cache.Cache, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config: cfg.withDefaults(),
		cache:  c,
		logger: logger,
		now:    time.Now,
		index:  make(map[string]*indexEntry),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.config }

// FindSimilarQuery compares query with the last HistoryWindow user messages
// of history, newest first. The first one scoring at least threshold whose
// answer is present wins, and that answer becomes CachedResponse.
// A threshold <= 0 uses the configured one. Every call updates Stats.
func (s *Service) FindSimilarQuery(query string, history []conversation.Message, threshold float64) Match {
	if threshold <= 0 {
		threshold = s.config.Threshold
	}
	s.total.Add(1)

	qw := Words(query)
	seen := 0
	for i := len(history) - 1; i >= 0 && seen < s.config.HistoryWindow; i-- {
		m := history[i]
		if m.Role != conversation.RoleUser {
			continue
		}
		seen++
		if i+1 >= len(history) || history[i+1].Role != conversation.RoleAssistant {
			continue
		}
		sim := jaccard(qw, Words(m.Content))
		if sim >= threshold {
			s.hits.Add(1)
			return Match{
				Similar:        true,
				Similarity:     sim,
				CachedResponse: history[i+1].Content,
				MatchedQuery:   m.Content,
			}
		}
	}

	s.misses.Add(1)
	return Match{}
}

// Stats returns a snapshot of the counters.
func (s *Service) Stats() Stats {
	st := Stats{
		TotalQueries: s.total.Load(),
		CacheHits:    s.hits.Load(),
		CacheMisses:  s.misses.Load(),
	}
	if st.TotalQueries > 0 {
		st.HitRate = float64(st.CacheHits) / float64(st.TotalQueries)
	}
	st.EstimatedSavings = float64(st.CacheHits) * s.config.CostPerHit
	return st
}

// ResetStats zeroes the counters.
func (s *Service) ResetStats() {
	s.total.Store(0)
	s.hits.Store(0)
	s.misses.Store(0)
}

// digest returns the cache key of a word set: a blake3 hash of its sorted words.
func digest(words map[string]struct{}) string {
	sorted := make([]string, 0, len(words))
	for w := range words {
		sorted = append(sorted, w)
	}
	slices.Sort(sorted)
	sum := blake3.Sum256([]byte(strings.Join(sorted, " ")))
	return "dedup:" + hex.EncodeToString(sum[:])
}

// CheckCachedSimilarQuery looks for a query from any conversation, answered
// within IndexTTL, that scores at least threshold against query. The best
// scoring entry wins. Cache failures are reported as a miss.
func (s *Service) CheckCachedSimilarQuery(ctx context.Context, query, conversationID string, threshold float64) Match {
	if threshold <= 0 {
		threshold = s.config.Threshold
	}
	qw := Words(query)
	if len(qw) == 0 {
		return Match{}
	}

	s.mu.Lock()
	var (
		best    *indexEntry
		bestSim float64
	)
	now := s.now()
	for k, e := range s.index {
		if !now.Before(e.expires) {
			delete(s.index, k)
			continue
		}
		if sim := jaccard(qw, e.words); sim >= threshold && (best == nil || sim > bestSim || (sim == bestSim && e.seq > best.seq)) {
			best, bestSim = e, sim
		}
	}
	var key, matched, source string
	if best != nil {
		key, matched, source = best.key, best.query, best.conversationID
	}
	s.mu.Unlock()

	if best == nil {
		return Match{}
	}

	response, err := s.cache.Get(ctx, key)
	if err != nil {
		s.mu.Lock()
		delete(s.index, key)
		s.mu.Unlock()
		return Match{}
	}

	s.logger.Debug("cross-conversation duplicate",
		"conversation_id", conversationID,
		"source_conversation_id", source,
		"similarity", bestSim,
	)
	return Match{
		Similar:        true,
		Similarity:     bestSim,
		CachedResponse: response,
		MatchedQuery:   matched,
	}
}

// CacheQueryResponse records response as the answer to query. Nothing is
// written when ctx is already done or query has no significant words.
// Cache failures are logged and otherwise ignored.
func (s *Service) CacheQueryResponse(ctx context.Context, query, response, conversationID string) {
	qw := Words(query)
	if len(qw) == 0 || response == "" || ctx.Err() != nil {
		return
	}
	key := digest(qw)
	if err := s.cache.Set(ctx, key, response, s.config.IndexTTL); err != nil {
		s.logger.Warn("dedup cache write failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, exists := s.index[key]; !exists && len(s.index) >= s.config.IndexSize {
		s.evictLocked(now)
	}
	s.seq++
	s.index[key] = &indexEntry{
		words:          qw,
		query:          query,
		conversationID: conversationID,
		key:            key,
		expires:        now.Add(s.config.IndexTTL),
		seq:            s.seq,
	}
}

// IndexLen returns the number of indexed queries.
func (s *Service) IndexLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// ClearIndex drops every indexed query. Response bodies stay in the cache
// until they expire or the cache is cleared.
func (s *Service) ClearIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = make(map[string]*indexEntry)
}

// PurgeIndex drops expired index entries and returns how many were removed.
func (s *Service) PurgeIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.now())
}

func (s *Service) purgeLocked(now time.Time) int {
	n := 0
	for k, e := range s.index {
		if !now.Before(e.expires) {
			delete(s.index, k)
			n++
		}
	}
	return n
}

func (s *Service) evictLocked(now time.Time) {
	if s.purgeLocked(now) > 0 {
		return
	}
	var oldest *indexEntry
	for _, e := range s.index {
		if oldest == nil || e.seq < oldest.seq {
			oldest = e
		}
	}
	if oldest != nil {
		delete(s.index, oldest.key)
	}
}
