package core

import (
	"sort"
	"sync"
	"testing"

	"github.com/dkeye/Meet/internal/domain"
)

func TestJoinReturnsPriorMembers(t *testing.T) {
	reg := NewRoomRegistry()

	others := reg.Join("r1", "u1")
	if len(others) != 0 {
		t.Fatalf("first joiner should see nobody, got %v", others)
	}

	others = reg.Join("r1", "u2")
	if len(others) != 1 || others[0] != "u1" {
		t.Fatalf("second joiner should see [u1], got %v", others)
	}

	members := reg.Members("r1")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	reg := NewRoomRegistry()
	reg.Join("r1", "u1")
	reg.Join("r1", "u2")

	remaining := reg.Leave("r1", "u2")
	if len(remaining) != 1 || remaining[0] != "u1" {
		t.Fatalf("expected [u1] remaining, got %v", remaining)
	}

	// Second leave is a no-op.
	remaining = reg.Leave("r1", "u2")
	if len(remaining) != 1 || remaining[0] != "u1" {
		t.Fatalf("second leave changed the room: %v", remaining)
	}

	// Leaving a room never joined is not an error either.
	if got := reg.Leave("nope", "u9"); got != nil {
		t.Fatalf("unknown room leave should return nil, got %v", got)
	}
}

func TestRoomReapedWhenEmpty(t *testing.T) {
	reg := NewRoomRegistry()
	reg.Join("r1", "u1")
	reg.Leave("r1", "u1")

	if rooms := reg.Rooms(); len(rooms) != 0 {
		t.Fatalf("empty room should be reaped, still have %v", rooms)
	}

	// A new join on the same id gets a fresh room.
	others := reg.Join("r1", "u2")
	if len(others) != 0 {
		t.Fatalf("fresh room should be empty, got %v", others)
	}
}

func TestContains(t *testing.T) {
	reg := NewRoomRegistry()
	reg.Join("r1", "u1")

	if !reg.Contains("r1", "u1") {
		t.Fatal("u1 should be a member of r1")
	}
	if reg.Contains("r1", "u2") {
		t.Fatal("u2 should not be a member of r1")
	}
	if reg.Contains("r2", "u1") {
		t.Fatal("u1 should not be a member of r2")
	}

	reg.Leave("r1", "u1")
	if reg.Contains("r1", "u1") {
		t.Fatal("u1 should be gone after leave")
	}
}

// Concurrent joins on one room must observe a total order: the prior-member
// counts form a permutation of 0..N-1.
func TestConcurrentJoinsTotallyOrdered(t *testing.T) {
	const n = 32
	reg := NewRoomRegistry()

	var wg sync.WaitGroup
	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := SessionID(rune('a' + i))
			sizes[i] = len(reg.Join("room", sid))
		}(i)
	}
	wg.Wait()

	sort.Ints(sizes)
	for i, size := range sizes {
		if size != i {
			t.Fatalf("prior-member counts not a permutation of 0..%d: %v", n-1, sizes)
		}
	}
	if got := len(reg.Members("room")); got != n {
		t.Fatalf("expected %d members, got %d", n, got)
	}
}

func TestUnrelatedRoomsIndependent(t *testing.T) {
	reg := NewRoomRegistry()

	var wg sync.WaitGroup
	rooms := []domain.RoomID{"a", "b", "c", "d"}
	for _, room := range rooms {
		wg.Add(1)
		go func(room domain.RoomID) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				sid := SessionID(string(room) + "-member")
				reg.Join(room, sid)
				reg.Leave(room, sid)
			}
		}(room)
	}
	wg.Wait()

	if rooms := reg.Rooms(); len(rooms) != 0 {
		t.Fatalf("all rooms should be reaped, still have %v", rooms)
	}
}
