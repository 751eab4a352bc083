package memory

import (
	"fmt"
	"math/bits"

	"github.com/rotorcore/corert/internal/corerr"
	"github.com/rotorcore/corert/internal/metrics"
)

// Buddy manages a power-of-two sized range divided into levels, splitting
// and merging block pairs on demand. Level 0 is the single whole-range
// block; level L (= log2(max/min)) holds minimum-size leaf blocks.
//
// Buddy tracks offsets only; it does not own backing memory. Callers pair
// it with a Range (commonly the committed prefix of a memory.Reservation)
// and interpret returned offsets relative to that range.
type Buddy struct {
	min, max int
	levels   int // L

	freeOffsets [][]int // per level, LIFO stack of free block offsets
	split       [][]bool
	merge       [][]bool
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// NewBuddy constructs a buddy allocator over [0, max). min and max must be
// powers of two with max > min, and the resulting level count must be <=
// 16. If bytesReserved > 0, the smallest-size blocks starting at offset 0
// are pre-allocated (and never freed) to cover the reservation.
func NewBuddy(min, max, bytesReserved int) (*Buddy, error) {
	const op = "memory.NewBuddy"
	if !isPowerOfTwo(min) || !isPowerOfTwo(max) || max <= min {
		return nil, corerr.New(corerr.BuddyTooLarge, op, "min and max must be powers of two with max > min")
	}
	levels := bits.TrailingZeros(uint(max / min))
	if levels > 16 {
		return nil, corerr.New(corerr.BuddyTooLarge, op, fmt.Sprintf("level count %d exceeds limit of 16", levels))
	}

	b := &Buddy{
		min:         min,
		max:         max,
		levels:      levels,
		freeOffsets: make([][]int, levels+1),
		split:       make([][]bool, levels+1),
		merge:       make([][]bool, levels+1),
	}
	for l := 0; l <= levels; l++ {
		b.split[l] = make([]bool, 1<<uint(l))
		b.merge[l] = make([]bool, 1<<uint(l))
	}
	b.freeOffsets[0] = []int{0}

	if bytesReserved > 0 {
		n := (bytesReserved + min - 1) / min
		for i := 0; i < n; i++ {
			if _, err := b.Allocate(min, min); err != nil {
				return nil, corerr.Wrap(corerr.BuddyTooLarge, op, "pre-allocating reserved prefix", err)
			}
		}
	}
	return b, nil
}

func (b *Buddy) blockSize(level int) int { return b.max >> uint(level) }

func (b *Buddy) levelForSize(size int) int {
	return b.levels - bits.TrailingZeros(uint(size)/uint(b.min))
}

func roundUpPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << uint(bits.Len(uint(n-1)))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (b *Buddy) toggleMerge(level, idx int) {
	if level < 0 {
		return
	}
	b.merge[level][idx] = !b.merge[level][idx]
}

// removeFree removes offset from level's free list if present, returning
// whether it was found.
func (b *Buddy) removeFree(level, offset int) bool {
	list := b.freeOffsets[level]
	for i, v := range list {
		if v == offset {
			b.freeOffsets[level] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// descendSplit splits the block at (fromLevel, fromOffset) down to toLevel,
// pushing each right sibling to its level's free list and marking split
// bits along the way. It returns the offset of the final (left-descended)
// block at toLevel. The caller is responsible for accounting for the
// transition of the block at fromLevel itself leaving the free list.
func (b *Buddy) descendSplit(fromLevel, fromOffset, toLevel int) int {
	offset := fromOffset
	for lvl := fromLevel; lvl < toLevel; lvl++ {
		idx := offset / b.blockSize(lvl)
		b.split[lvl][idx] = true
		childSize := b.blockSize(lvl) / 2
		right := offset + childSize
		b.freeOffsets[lvl+1] = append(b.freeOffsets[lvl+1], right)
		b.merge[lvl][idx] = true // left consumed, right free: exactly one allocated
		// offset is unchanged: we always continue into the left (lower-address) child.
		metrics.Active().RecordBuddySplit()
	}
	return offset
}

// Allocate returns a Range whose size is the smallest power-of-two >=
// max(size, alignment, min). Fails with BuddyTooLarge if that exceeds the
// allocator's maximum; returns a zero-sized Range with no error if the
// allocator has no block available at any ancestor level.
func (b *Buddy) Allocate(size, alignment int) (Range, error) {
	const op = "memory.Buddy.Allocate"
	target := roundUpPow2(maxInt(maxInt(size, alignment), b.min))
	if target > b.max {
		return Range{}, corerr.New(corerr.BuddyTooLarge, op, fmt.Sprintf("requested %d bytes exceeds max %d", size, b.max))
	}
	targetLevel := b.levelForSize(target)

	cur := targetLevel
	for cur >= 0 && len(b.freeOffsets[cur]) == 0 {
		cur--
	}
	if cur < 0 {
		return Range{}, nil
	}

	n := len(b.freeOffsets[cur])
	offset := b.freeOffsets[cur][n-1]
	b.freeOffsets[cur] = b.freeOffsets[cur][:n-1]

	idx := offset / b.blockSize(cur)
	if cur > 0 {
		b.toggleMerge(cur-1, idx/2)
	}

	finalOffset := b.descendSplit(cur, offset, targetLevel)
	return Range{Offset: finalOffset, Size: target}, nil
}

// freeRec frees the block at (level, idx), merging upward while the
// buddy at each level is also fully free.
func (b *Buddy) freeRec(level, idx int) {
	offset := idx * b.blockSize(level)
	if level == 0 {
		b.freeOffsets[0] = append(b.freeOffsets[0], offset)
		return
	}
	parentLevel := level - 1
	parentIdx := idx / 2
	b.toggleMerge(parentLevel, parentIdx)
	if !b.merge[parentLevel][parentIdx] {
		buddyIdx := idx ^ 1
		buddyOffset := buddyIdx * b.blockSize(level)
		b.removeFree(level, buddyOffset)
		b.split[parentLevel][parentIdx] = false
		metrics.Active().RecordBuddyMerge()
		b.freeRec(parentLevel, parentIdx)
		return
	}
	b.freeOffsets[level] = append(b.freeOffsets[level], offset)
}

// Free returns a previously allocated range to the allocator, merging with
// its buddy wherever both halves are free.
func (b *Buddy) Free(r Range) {
	size := roundUpPow2(maxInt(r.Size, b.min))
	level := b.levelForSize(size)
	idx := r.Offset / b.blockSize(level)
	b.freeRec(level, idx)
}

// Reallocate adjusts an existing allocation to a new size, reusing the
// block in place when the buddy system topology allows it:
//
//  1. Same target level: no change.
//  2. Grow by exactly one level with a free buddy: merge in place.
//  3. Shrink by one or more levels: demote in place.
//  4. Otherwise: allocate fresh and free the old range; the caller must
//     copy data between the two.
func (b *Buddy) Reallocate(r Range, newSize, alignment int) (Range, bool, error) {
	const op = "memory.Buddy.Reallocate"
	oldSize := roundUpPow2(maxInt(r.Size, b.min))
	oldLevel := b.levelForSize(oldSize)
	oldIdx := r.Offset / b.blockSize(oldLevel)

	target := roundUpPow2(maxInt(maxInt(newSize, alignment), b.min))
	if target > b.max {
		return Range{}, false, corerr.New(corerr.BuddyTooLarge, op, fmt.Sprintf("requested %d bytes exceeds max %d", newSize, b.max))
	}
	newLevel := b.levelForSize(target)

	switch {
	case newLevel == oldLevel:
		return Range{Offset: r.Offset, Size: target}, true, nil

	case newLevel == oldLevel-1 && oldLevel > 0:
		buddyIdx := oldIdx ^ 1
		buddyOffset := buddyIdx * b.blockSize(oldLevel)
		if b.removeFree(oldLevel, buddyOffset) {
			parentLevel := oldLevel - 1
			parentIdx := oldIdx / 2
			b.split[parentLevel][parentIdx] = false
			b.merge[parentLevel][parentIdx] = false
			newOffset := minInt(r.Offset, buddyOffset)
			return Range{Offset: newOffset, Size: target}, true, nil
		}

	case newLevel > oldLevel:
		newOffset := b.descendSplit(oldLevel, r.Offset, newLevel)
		return Range{Offset: newOffset, Size: target}, true, nil
	}

	fresh, err := b.Allocate(newSize, alignment)
	if err != nil {
		return Range{}, false, err
	}
	b.Free(r)
	return fresh, false, nil
}

// BlockSize returns the size of the block currently occupying offset, by
// walking the split index from level 0 downward until it finds a block
// that has not itself been split further.
func (b *Buddy) BlockSize(offset int) int {
	level := 0
	for level < b.levels {
		idx := offset / b.blockSize(level)
		if !b.split[level][idx] {
			break
		}
		level++
	}
	return b.blockSize(level)
}

// Levels returns the number of non-root levels (L) in the allocator.
func (b *Buddy) Levels() int { return b.levels }

// Max returns the allocator's total managed size.
func (b *Buddy) Max() int { return b.max }

// Min returns the allocator's minimum block size.
func (b *Buddy) Min() int { return b.min }
