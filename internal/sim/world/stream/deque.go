package stream

import "sidecraft.ai/internal/sim/world/terrain/store"

// blockDeque is a block sequence with headroom on both ends. Pushes and drops cost O(n) in the
// number of blocks moved; a full copy only happens when one end runs out of headroom.
//
// Slots outside [head,tail) may still be visible through an older Frame. They are only
// rewritten by a later push, which under the one-transition-per-tick rule never touches the
// range of the frame being read during that tick.
type blockDeque struct {
	buf  []store.Block
	head int
	tail int
}

const minHeadroom = 64

func (d *blockDeque) Len() int { return d.tail - d.head }

// View is capped so holders cannot append into the deque's storage.
func (d *blockDeque) View() []store.Block {
	return d.buf[d.head:d.tail:d.tail]
}

func (d *blockDeque) PushBack(bs []store.Block) {
	if len(bs) == 0 {
		return
	}
	if d.tail+len(bs) > len(d.buf) {
		d.grow(0, len(bs))
	}
	copy(d.buf[d.tail:], bs)
	d.tail += len(bs)
}

func (d *blockDeque) PushFront(bs []store.Block) {
	if len(bs) == 0 {
		return
	}
	if d.head < len(bs) {
		d.grow(len(bs), 0)
	}
	d.head -= len(bs)
	copy(d.buf[d.head:], bs)
}

// DropFront and DropBack assume the caller checked n <= Len().
func (d *blockDeque) DropFront(n int) { d.head += n }

func (d *blockDeque) DropBack(n int) { d.tail -= n }

func (d *blockDeque) grow(front, back int) {
	n := d.Len()
	pad := max((n+front+back)/2, minHeadroom)
	buf := make([]store.Block, pad+front+n+back+pad)
	head := pad + front
	copy(buf[head:], d.buf[d.head:d.tail])
	d.buf = buf
	d.head = head
	d.tail = head + n
}
