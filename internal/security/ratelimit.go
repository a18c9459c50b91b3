package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Unlimited disables a limit.
const Unlimited = -1

// TierLimits are the message ceilings of one tier. A zero field takes the
// tier's default; Unlimited disables the limit.
type TierLimits struct {
	PerConversation int `yaml:"per_conversation" json:"per_conversation"`
	PerDay          int `yaml:"per_day" json:"per_day"`
	Concurrent      int `yaml:"concurrent" json:"concurrent"`
}

func (l TierLimits) withDefaults(def TierLimits) TierLimits {
	if l.PerConversation == 0 {
		l.PerConversation = def.PerConversation
	}
	if l.PerDay == 0 {
		l.PerDay = def.PerDay
	}
	if l.Concurrent == 0 {
		l.Concurrent = def.Concurrent
	}
	return l
}

// RateLimitConfig holds per-tier limits.
type RateLimitConfig struct {
	Free       TierLimits `yaml:"free"`
	Pro        TierLimits `yaml:"pro"`
	Enterprise TierLimits `yaml:"enterprise"`

	// DailyWindow is the sliding window of the per-day limit.
	DailyWindow time.Duration `yaml:"daily_window"`

	// ConversationTTL forgets per-conversation counts after this much
	// inactivity. Sweep applies it.
	ConversationTTL time.Duration `yaml:"conversation_ttl"`
}

// DefaultTierLimits returns the built-in limits of tier.
func DefaultTierLimits(tier conversation.Tier) TierLimits {
	switch tier {
	case conversation.TierPro:
		return TierLimits{PerConversation: 50, PerDay: 200, Concurrent: 1}
	case conversation.TierEnterprise:
		return TierLimits{PerConversation: Unlimited, PerDay: Unlimited, Concurrent: 2}
	default:
		return TierLimits{PerConversation: 5, PerDay: 20, Concurrent: 1}
	}
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	c.Free = c.Free.withDefaults(DefaultTierLimits(conversation.TierFree))
	c.Pro = c.Pro.withDefaults(DefaultTierLimits(conversation.TierPro))
	c.Enterprise = c.Enterprise.withDefaults(DefaultTierLimits(conversation.TierEnterprise))
	if c.DailyWindow <= 0 {
		c.DailyWindow = 24 * time.Hour
	}
	if c.ConversationTTL <= 0 {
		c.ConversationTTL = 7 * 24 * time.Hour
	}
	return c
}

// Limits returns the effective limits of tier.
func (c RateLimitConfig) Limits(tier conversation.Tier) TierLimits {
	switch tier {
	case conversation.TierPro:
		return c.Pro
	case conversation.TierEnterprise:
		return c.Enterprise
	default:
		return c.Free
	}
}

// RateLimitStatus is the outcome of a rate-limit check. Denials carry a
// Reason and, when the limit expires, ResetAt.
type RateLimitStatus struct {
	Allowed            bool              `json:"allowed"`
	RemainingQuestions int               `json:"remaining_questions"`
	ResetAt            *time.Time        `json:"reset_at,omitempty"`
	Tier               conversation.Tier `json:"tier"`
	Reason             string            `json:"reason,omitempty"`

	// Limit names the exhausted ceiling on denial: LimitConcurrent,
	// LimitConversation or LimitDaily.
	Limit string `json:"limit,omitempty"`
}

// Rate-limit ceilings reported in RateLimitStatus.Limit.
const (
	LimitConcurrent   = "concurrent"
	LimitConversation = "conversation"
	LimitDaily        = "daily"
)

// ConversationRateLimiter enforces per-conversation, per-day and
// concurrency ceilings per user. The per-day limit is a sliding window.
// All methods are safe for concurrent use.
type ConversationRateLimiter struct {
	mu            sync.Mutex
	config        RateLimitConfig
	days          map[string]*bucket
	conversations map[convKey]*convState
	now           func() time.Time
}

type bucket struct {
	window time.Duration
	events []time.Time
}

type convKey struct {
	userID         string
	conversationID string
}

type convState struct {
	count    int
	inflight int
	lastSeen time.Time
}

// NewConversationRateLimiter creates a limiter. Zero-value config fields
// get the built-in defaults.
func NewConversationRateLimiter(cfg RateLimitConfig) *ConversationRateLimiter {
	return &ConversationRateLimiter{
		config:        cfg.withDefaults(),
		days:          make(map[string]*bucket),
		conversations: make(map[convKey]*convState),
		now:           time.Now,
	}
}

// Config returns the effective configuration.
func (rl *ConversationRateLimiter) Config() RateLimitConfig {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.config
}

// Reconfigure replaces the limits. Usage already recorded is kept and
// counted against the new limits.
func (rl *ConversationRateLimiter) Reconfigure(cfg RateLimitConfig) {
	cfg = cfg.withDefaults()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.config = cfg
	for _, b := range rl.days {
		b.window = cfg.DailyWindow
	}
}

// Check reports whether a new message would be allowed, without recording it.
func (rl *ConversationRateLimiter) Check(userID, conversationID string, tier conversation.Tier) RateLimitStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.status(userID, conversationID, conversation.ParseTier(string(tier)), rl.now())
}

// Acquire checks and, when allowed, records a message and takes a
// concurrency slot for the conversation. The returned release func frees
// the slot; it is never nil and is safe to call more than once.
func (rl *ConversationRateLimiter) Acquire(userID, conversationID string, tier conversation.Tier) (RateLimitStatus, func()) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tier = conversation.ParseTier(string(tier))
	now := rl.now()
	st := rl.status(userID, conversationID, tier, now)
	if !st.Allowed {
		return st, func() {}
	}

	key := convKey{userID, conversationID}
	cs := rl.conversations[key]
	if cs == nil {
		cs = &convState{}
		rl.conversations[key] = cs
	}
	cs.count++
	cs.inflight++
	cs.lastSeen = now

	b := rl.day(userID)
	b.events = append(b.events, now)

	limits := rl.config.Limits(tier)
	st.RemainingQuestions = remaining(limits, cs.count, len(b.events))
	st.ResetAt = resetAt(b)

	var once sync.Once
	return st, func() {
		once.Do(func() {
			rl.mu.Lock()
			defer rl.mu.Unlock()
			if cs.inflight > 0 {
				cs.inflight--
			}
		})
	}
}

// GetRemainingQuestions returns how many messages userID may still send
// today, or Unlimited.
func (rl *ConversationRateLimiter) GetRemainingQuestions(userID string, tier conversation.Tier) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limits := rl.config.Limits(conversation.ParseTier(string(tier)))
	if limits.PerDay == Unlimited {
		return Unlimited
	}
	used := 0
	if b, ok := rl.days[userID]; ok {
		b.evict(rl.now())
		used = len(b.events)
	}
	return max(limits.PerDay-used, 0)
}

// Sweep drops expired daily events and idle conversations, and returns the
// number of entries removed.
func (rl *ConversationRateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for user, b := range rl.days {
		if b.evict(now); len(b.events) == 0 {
			delete(rl.days, user)
			removed++
		}
	}
	for key, cs := range rl.conversations {
		if cs.inflight == 0 && now.Sub(cs.lastSeen) > rl.config.ConversationTTL {
			delete(rl.conversations, key)
			removed++
		}
	}
	return removed
}

// status must be called with rl.mu held.
func (rl *ConversationRateLimiter) status(userID, conversationID string, tier conversation.Tier, now time.Time) RateLimitStatus {
	limits := rl.config.Limits(tier)

	count, inflight := 0, 0
	if cs, ok := rl.conversations[convKey{userID, conversationID}]; ok {
		count, inflight = cs.count, cs.inflight
	}
	used := 0
	b, ok := rl.days[userID]
	if ok {
		b.evict(now)
		used = len(b.events)
	}

	st := RateLimitStatus{
		Allowed:            true,
		Tier:               tier,
		RemainingQuestions: remaining(limits, count, used),
		ResetAt:            resetAt(b),
	}

	switch {
	case limits.Concurrent != Unlimited && inflight >= limits.Concurrent:
		st.Allowed = false
		st.Reason = "A response is already being generated for this conversation. Please wait for it to finish."
		st.Limit = LimitConcurrent
		st.ResetAt = nil
	case limits.PerConversation != Unlimited && count >= limits.PerConversation:
		st.Allowed = false
		st.Reason = fmt.Sprintf("You have reached the limit of %d questions per conversation on the %s tier. Start a new conversation or upgrade for more.", limits.PerConversation, tier)
		st.Limit = LimitConversation
		st.ResetAt = nil
	case limits.PerDay != Unlimited && used >= limits.PerDay:
		st.Allowed = false
		st.Reason = fmt.Sprintf("You have reached the daily limit of %d questions on the %s tier.", limits.PerDay, tier)
		st.Limit = LimitDaily
	}
	return st
}

func (rl *ConversationRateLimiter) day(userID string) *bucket {
	b, ok := rl.days[userID]
	if !ok {
		b = &bucket{window: rl.config.DailyWindow}
		rl.days[userID] = b
	}
	return b
}

// remaining is the smaller of the conversation and daily allowances.
func remaining(limits TierLimits, count, used int) int {
	r := Unlimited
	if limits.PerConversation != Unlimited {
		r = max(limits.PerConversation-count, 0)
	}
	if limits.PerDay != Unlimited {
		d := max(limits.PerDay-used, 0)
		if r == Unlimited || d < r {
			r = d
		}
	}
	return r
}

// resetAt is when the oldest event in b leaves the window.
func resetAt(b *bucket) *time.Time {
	if b == nil || len(b.events) == 0 {
		return nil
	}
	t := b.events[0].Add(b.window)
	return &t
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && !b.events[i].After(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
