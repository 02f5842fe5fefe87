// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package pipeline

import (
	"testing"
	"time"
)

func TestPool_ActiveIsFirstInserted(t *testing.T) {
	pool := NewPool("default", Capabilities{})
	first := New("pl-a", nil, LoadBalancingRoundRobin, time.Minute, time.Second, 0, nil)
	second := New("pl-b", nil, LoadBalancingRoundRobin, time.Minute, time.Second, 0, nil)

	pool.Add(first)
	pool.Add(second)

	if pool.Active() != first {
		t.Errorf("expected first-inserted pipeline to remain active")
	}
	if pool.Empty() {
		t.Errorf("pool with two pipelines should not be empty")
	}
}

func TestPool_EmptyPoolIsKept(t *testing.T) {
	pool := NewPool("orphan", Capabilities{})
	if !pool.Empty() {
		t.Errorf("freshly constructed pool should be empty")
	}
	if pool.Active() != nil {
		t.Errorf("empty pool should have no active pipeline")
	}
}

func TestPool_ReplaceKeepsActiveIdentityForSameID(t *testing.T) {
	pool := NewPool("default", Capabilities{})
	original := New("pl-a", nil, LoadBalancingRoundRobin, time.Minute, time.Second, 0, nil)
	pool.Add(original)

	replacement := New("pl-a", nil, LoadBalancingWeighted, time.Minute, time.Second, 2, nil)
	pool.Replace(replacement)

	if pool.Active() != replacement {
		t.Errorf("expected hot-reload replacement to become active for the same pipeline id")
	}
}

func TestMetrics_MovingAverageLatency(t *testing.T) {
	m := &Metrics{}
	m.Record(true, 100*time.Millisecond)
	m.Record(true, 200*time.Millisecond)
	m.Record(false, 300*time.Millisecond)

	total, successful, failed, avg := m.Snapshot()
	if total != 3 || successful != 2 || failed != 1 {
		t.Fatalf("unexpected counters: total=%d successful=%d failed=%d", total, successful, failed)
	}
	want := 200 * time.Millisecond
	if avg != want {
		t.Errorf("expected moving average %v, got %v", want, avg)
	}
}
