package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"treeguardian/core"
)

const (
	maxLevel = 16
	pFactor  = 0.25
)

// link points to the next node on one level. span is the number of level-0
// steps the link covers, which lets Get compute a rank without a scan.
type link struct {
	next *node
	span int
}

type node struct {
	e      Entry
	levels []link
}

// SkipList is an indexable skip list ordered by points descending, then
// player ascending. Update, Remove and Get are O(log n).
type SkipList struct {
	mu       sync.RWMutex
	head     *node
	lvl      int
	length   int
	byPlayer map[core.PlayerID]*node
	rng      *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &SkipList{
		head:     &node{levels: make([]link, maxLevel)},
		lvl:      1,
		byPlayer: map[core.PlayerID]*node{},
		rng:      rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

// before reports whether a ranks strictly ahead of b.
func before(a, b Entry) bool {
	if a.Points == b.Points {
		return a.Player < b.Player
	}
	return a.Points > b.Points
}

// Update inserts player or moves it to its new points total.
func (s *SkipList) Update(player core.PlayerID, points int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byPlayer[player]; ok {
		if old.e.Points == points {
			return
		}
		s.deleteLocked(old.e)
	}
	s.insertLocked(Entry{Player: player, Points: points})
}

func (s *SkipList) insertLocked(e Entry) {
	var update [maxLevel]*node
	var rank [maxLevel]int
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		if i < s.lvl-1 {
			rank[i] = rank[i+1]
		}
		for x.levels[i].next != nil && before(x.levels[i].next.e, e) {
			rank[i] += x.levels[i].span
			x = x.levels[i].next
		}
		update[i] = x
	}

	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
			s.head.levels[i].span = s.length
		}
		s.lvl = lvl
	}

	n := &node{e: e, levels: make([]link, lvl)}
	for i := 0; i < lvl; i++ {
		n.levels[i].next = update[i].levels[i].next
		update[i].levels[i].next = n
		n.levels[i].span = update[i].levels[i].span - (rank[0] - rank[i])
		update[i].levels[i].span = rank[0] - rank[i] + 1
	}
	for i := lvl; i < s.lvl; i++ {
		update[i].levels[i].span++
	}
	s.byPlayer[e.Player] = n
	s.length++
}

func (s *SkipList) deleteLocked(e Entry) {
	var update [maxLevel]*node
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.levels[i].next != nil && before(x.levels[i].next.e, e) {
			x = x.levels[i].next
		}
		update[i] = x
	}
	target := x.levels[0].next
	if target == nil || target.e.Player != e.Player {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].levels[i].next == target {
			update[i].levels[i].span += target.levels[i].span - 1
			update[i].levels[i].next = target.levels[i].next
		} else {
			update[i].levels[i].span--
		}
	}
	for s.lvl > 1 && s.head.levels[s.lvl-1].next == nil {
		s.lvl--
	}
	delete(s.byPlayer, e.Player)
	s.length--
}

func (s *SkipList) Remove(player core.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byPlayer[player]; ok {
		s.deleteLocked(n.e)
	}
}

func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, min(n, s.length))
	for cur := s.head.levels[0].next; cur != nil && len(out) < n; cur = cur.levels[0].next {
		e := cur.e
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out
}

// Get returns the player's entry with its 1-based rank.
func (s *SkipList) Get(player core.PlayerID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byPlayer[player]
	if !ok {
		return Entry{}, false
	}
	rank := 0
	x := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for x.levels[i].next != nil && (x.levels[i].next == n || before(x.levels[i].next.e, n.e)) {
			rank += x.levels[i].span
			x = x.levels[i].next
		}
		if x == n {
			break
		}
	}
	e := n.e
	e.Rank = rank
	return e, true
}

// Len returns the number of ranked players.
func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

var _ Board = (*SkipList)(nil)
