// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package routing

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axonflow/routingcore/internal/errs"
	"github.com/axonflow/routingcore/internal/pipeline"
)

// Engine is the RoutingRulesEngine (spec §4.6): stateful owner of rules,
// strategies, registered pool capabilities, stats and a rule-evaluation
// cache.
type Engine struct {
	poolsMu sync.RWMutex
	pools   map[string]pipeline.Capabilities

	rulesMu sync.RWMutex
	rules   map[string]Rule

	strategiesMu sync.RWMutex
	strategies   map[string]Strategy

	statsMu sync.Mutex
	stats   Stats

	cache ruleCache

	lbRoundRobin atomic.Uint64
	randMu       sync.Mutex
	rng          *rand.Rand
}

// NewEngine constructs an Engine with the five baseline rules and three
// baseline strategies installed (spec §4.6), backed by the default
// in-memory rule-evaluation cache. Use WithRuleCache to swap in
// RedisRuleCache.
func NewEngine() *Engine {
	return &Engine{
		pools:      make(map[string]pipeline.Capabilities),
		rules:      defaultRules(),
		strategies: defaultStrategies(),
		stats:      Stats{RoutingUsage: make(map[string]int64)},
		cache:      newMemoryRuleCache(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRuleCache replaces the engine's rule-evaluation cache backend,
// closing the previous one.
func (e *Engine) WithRuleCache(c ruleCache) *Engine {
	if e.cache != nil {
		e.cache.Close()
	}
	e.cache = c
	return e
}

// Close releases the engine's background resources (the rule-cache sweep
// goroutine).
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// RegisterPool installs or replaces a pool's declared capabilities
// (spec §4.5: "register each pool's routingCapabilities with the
// engine").
func (e *Engine) RegisterPool(poolID string, caps pipeline.Capabilities) {
	e.poolsMu.Lock()
	defer e.poolsMu.Unlock()
	e.pools[poolID] = caps
}

// UnregisterPool removes a pool's capabilities, used by hot-reload's
// remove set.
func (e *Engine) UnregisterPool(poolID string) {
	e.poolsMu.Lock()
	defer e.poolsMu.Unlock()
	delete(e.pools, poolID)
}

// PutRule installs or overrides a rule (user-overridable baseline, spec §4.6).
func (e *Engine) PutRule(r Rule) {
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()
	e.rules[r.Name] = r
}

// PutStrategy installs or overrides a strategy.
func (e *Engine) PutStrategy(s Strategy) {
	e.strategiesMu.Lock()
	defer e.strategiesMu.Unlock()
	e.strategies[s.Name] = s
}

// StatsSnapshot returns a consistent copy of the engine's decision stats.
func (e *Engine) StatsSnapshot() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	usage := make(map[string]int64, len(e.stats.RoutingUsage))
	for k, v := range e.stats.RoutingUsage {
		usage[k] = v
	}
	snap := e.stats
	snap.RoutingUsage = usage
	return snap
}

// Decide implements spec §4.6's decide() algorithm.
func (e *Engine) Decide(analysis analysisInput, strategyName string) (*Decision, error) {
	start := time.Now()

	strategy, err := e.resolveStrategy(strategyName)
	if err != nil {
		return nil, err
	}

	firedWeights, firedNames := e.evaluateRules(analysis, strategy.Name)

	e.poolsMu.RLock()
	pools := make(map[string]pipeline.Capabilities, len(e.pools))
	for id, caps := range e.pools {
		pools[id] = caps
	}
	e.poolsMu.RUnlock()

	if len(pools) == 0 {
		return nil, errs.NoCandidates("no pools registered")
	}

	results := make([]MatchResult, 0, len(pools))
	for poolID, caps := range pools {
		results = append(results, scorePool(poolID, caps, analysis, strategy.Weights, firedWeights, firedNames))
	}

	candidates := filterCandidates(results, strategy.Thresholds.MinimumMatch)
	sortCandidates(candidates, pools)

	var decision *Decision
	if len(candidates) == 0 {
		if !strategy.EnableFallback {
			return nil, errs.NoCandidates("no pool cleared the minimum match threshold")
		}
		decision = e.makeFallback(pools, strategy.Name)
	} else {
		selected := candidates[0]
		loadBalanced := false
		if strategy.LoadBalancing.Enabled {
			if lb := loadBalanceCandidates(candidates, strategy.Thresholds.LoadBalance); len(lb) >= 2 {
				selected = e.reselect(lb, strategy.LoadBalancing.Algorithm)
				loadBalanced = true
			}
		}
		alternatives := runnersUp(candidates, selected.PoolID, strategy.MaxAlternatives)
		decision = &Decision{
			TargetRoutingID: selected.PoolID,
			SelectedPoolID:  selected.PoolID,
			MatchResult:     selected,
			Alternatives:    alternatives,
			StrategyUsed:    strategy.Name,
			DecisionReason:  "scored candidate selection",
			LoadBalanced:    loadBalanced,
		}
	}

	decision.RoutingTime = time.Since(start)
	e.recordStats(*decision)
	return decision, nil
}

func (e *Engine) resolveStrategy(name string) (Strategy, error) {
	e.strategiesMu.RLock()
	defer e.strategiesMu.RUnlock()

	if name != "" {
		if s, ok := e.strategies[name]; ok && s.Enabled {
			return s, nil
		}
	}
	for _, s := range e.strategies {
		if s.IsDefault && s.Enabled {
			return s, nil
		}
	}
	for _, s := range e.strategies {
		if s.Enabled {
			return s, nil
		}
	}
	return Strategy{}, errs.NoCandidates("no enabled routing strategy")
}

// evaluateRules fires every enabled, non-expired rule against analysis,
// consulting and populating the rule-evaluation cache first (spec §4.6
// step 2 / §5).
func (e *Engine) evaluateRules(analysis analysisInput, strategyName string) (map[string]float64, []string) {
	key := cacheKey(analysis, strategyName)
	if cached, ok := e.cache.Get(key); ok {
		return cached, ruleNames(cached)
	}

	e.rulesMu.RLock()
	rules := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r)
	}
	e.rulesMu.RUnlock()

	now := time.Now()
	fired := make(map[string]float64)
	for _, r := range rules {
		if evaluateRule(r, analysis, now) {
			fired[r.Name] = r.Weight
		}
	}
	e.cache.Set(key, fired)
	return fired, ruleNames(fired)
}

func ruleNames(fired map[string]float64) []string {
	names := make([]string, 0, len(fired))
	for name := range fired {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func filterCandidates(results []MatchResult, minimumMatch float64) []MatchResult {
	out := make([]MatchResult, 0, len(results))
	for _, r := range results {
		if r.IsMatch && r.MatchScore >= minimumMatch {
			out = append(out, r)
		}
	}
	return out
}

// sortCandidates orders descending by score, breaking ties by descending
// pool priority then lexical pool id (spec §4.6 step 4).
func sortCandidates(candidates []MatchResult, pools map[string]pipeline.Capabilities) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		pa, pb := pools[a.PoolID].Priority, pools[b.PoolID].Priority
		if pa != pb {
			return pa > pb
		}
		return a.PoolID < b.PoolID
	})
}

func loadBalanceCandidates(candidates []MatchResult, loadBalanceThreshold float64) []MatchResult {
	out := make([]MatchResult, 0, len(candidates))
	for _, c := range candidates {
		if c.MatchScore >= loadBalanceThreshold {
			out = append(out, c)
		}
	}
	return out
}

// reselect applies the strategy's load-balancing algorithm among
// qualifying candidates (spec §4.6's load-balancer algorithms list).
func (e *Engine) reselect(candidates []MatchResult, algo pipeline.LoadBalancing) MatchResult {
	switch algo {
	case pipeline.LoadBalancingRoundRobin:
		idx := e.lbRoundRobin.Add(1) - 1
		return candidates[int(idx)%len(candidates)]
	case pipeline.LoadBalancingWeighted:
		return e.reselectWeighted(candidates)
	case pipeline.LoadBalancingLeastConnection:
		return e.reselectLeastConnections(candidates)
	case pipeline.LoadBalancingRandom:
		fallthrough
	default:
		e.randMu.Lock()
		defer e.randMu.Unlock()
		return candidates[e.rng.Intn(len(candidates))]
	}
}

func (e *Engine) reselectWeighted(candidates []MatchResult) MatchResult {
	e.poolsMu.RLock()
	defer e.poolsMu.RUnlock()
	e.randMu.Lock()
	defer e.randMu.Unlock()

	total := 0.0
	for _, c := range candidates {
		w := e.pools[c.PoolID].LoadWeight
		if w <= 0 {
			w = 1.0
		}
		total += w
	}
	if total <= 0 {
		return candidates[e.rng.Intn(len(candidates))]
	}
	r := e.rng.Float64() * total
	for _, c := range candidates {
		w := e.pools[c.PoolID].LoadWeight
		if w <= 0 {
			w = 1.0
		}
		r -= w
		if r <= 0 {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

func (e *Engine) reselectLeastConnections(candidates []MatchResult) MatchResult {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	best := candidates[0]
	bestUsage := e.stats.RoutingUsage[best.PoolID]
	for _, c := range candidates[1:] {
		usage := e.stats.RoutingUsage[c.PoolID]
		if usage < bestUsage {
			best, bestUsage = c, usage
		}
	}
	return best
}

// makeFallback picks the pool with the highest declared availability
// (spec §4.6's fallback path).
func (e *Engine) makeFallback(pools map[string]pipeline.Capabilities, strategyName string) *Decision {
	var bestID string
	bestAvailability := -1.0
	ids := make([]string, 0, len(pools))
	for id := range pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if pools[id].Availability > bestAvailability {
			bestID = id
			bestAvailability = pools[id].Availability
		}
	}

	result := MatchResult{PoolID: bestID, IsMatch: true, MatchScore: bestAvailability, Availability: bestAvailability}
	return &Decision{
		TargetRoutingID: bestID,
		SelectedPoolID:  bestID,
		MatchResult:     result,
		StrategyUsed:    strategyName,
		DecisionReason:  "fallback to max-availability pool",
		FallbackUsed:    true,
	}
}

func runnersUp(candidates []MatchResult, selectedID string, max int) []MatchResult {
	out := make([]MatchResult, 0, max)
	for _, c := range candidates {
		if c.PoolID == selectedID {
			continue
		}
		if len(out) >= max {
			break
		}
		out = append(out, c)
	}
	return out
}

// recordStats folds one decision into the engine's running statistics
// (spec §4.6: "totals, moving-average decision time, moving-average
// match score, per-pool usage count, load-balanced counter").
func (e *Engine) recordStats(d Decision) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.stats.TotalDecisions++
	n := time.Duration(e.stats.TotalDecisions)
	e.stats.AvgDecisionTime = ((n-1)*e.stats.AvgDecisionTime + d.RoutingTime) / n
	e.stats.AvgMatchScore = (float64(n-1)*e.stats.AvgMatchScore + d.MatchResult.MatchScore) / float64(n)
	if e.stats.RoutingUsage == nil {
		e.stats.RoutingUsage = make(map[string]int64)
	}
	e.stats.RoutingUsage[d.SelectedPoolID]++
	if d.FallbackUsed {
		e.stats.FallbackDecisions++
	}
	if d.LoadBalanced {
		e.stats.LoadBalancedCount++
	}
}
