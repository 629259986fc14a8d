package signal

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("s1") {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	if rl.Allow("s1") {
		t.Fatal("attempt over the limit should be denied")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)

	rl.Allow("s1")
	rl.Allow("s1")
	if rl.Allow("s1") {
		t.Fatal("window full, should deny")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("s1") {
		t.Fatal("window expired, should allow again")
	}
}

func TestRateLimiterSessionsIndependent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	rl.Allow("s1")
	if rl.Allow("s1") {
		t.Fatal("s1 exhausted")
	}
	if !rl.Allow("s2") {
		t.Fatal("s2 has its own window")
	}
}

func TestRateLimiterForgetResets(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)

	rl.Allow("s1")
	if rl.Allow("s1") {
		t.Fatal("s1 exhausted")
	}
	rl.Forget("s1")
	if !rl.Allow("s1") {
		t.Fatal("forgotten session starts fresh")
	}
}
