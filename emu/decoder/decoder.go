/*
rvsim - Instruction decoder: binary trie keyed by opcode bits

	Copyright 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a copy
	of this software and associated documentation files (the "Software"), to deal
	in the Software without restriction, including without limitation the rights
	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
	copies of the Software, and to permit persons to whom the Software is
	furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
	SOFTWARE.
*/
package decoder

import "fmt"

// width is the bit width every code/mask/ir is routed over. Compressed
// (16-bit) words are zero-extended into this same 32-bit space before
// decode, so one trie serves both the 16- and 32-bit instruction formats.
const width = 32

// Entry is anything that can sit in the decoder trie: a fixed code/mask
// pair over the instruction word. Extension packages implement a richer
// Instruction interface (code/mask plus operand accessors and Execute);
// the decoder itself only needs this much to build and search the trie.
type Entry interface {
	Code() uint32
	Mask() uint32
}

type node struct {
	entries  []Entry
	children [2]*node
}

// Decoder is a binary trie over the 32-bit instruction word. Once built it
// is immutable and safe to share across harts.
type Decoder struct {
	root   *node
	seen   map[[2]uint32]bool
	locked bool
}

// New creates an empty, unlocked decoder.
func New() *Decoder {
	return &Decoder{root: &node{}, seen: make(map[[2]uint32]bool)}
}

// Register installs an entry in the trie. Registering the identical
// (code, mask) pair twice is a build-time panic, matching spec.md §4.1.
// Two entries with different masks may legitimately overlap — both are
// kept and Decode tries both at lookup time.
func (d *Decoder) Register(e Entry) {
	if d.locked {
		panic("decoder: Register called after Lock")
	}
	key := [2]uint32{e.Code(), e.Mask()}
	if d.seen[key] {
		panic(fmt.Sprintf("decoder: duplicate (code=%#x, mask=%#x) registration", e.Code(), e.Mask()))
	}
	d.seen[key] = true
	insert(d.root, e, e.Code(), 0)
}

func insert(n *node, e Entry, code uint32, depth int) {
	if depth == width {
		n.entries = append(n.entries, e)
		return
	}
	bit := (code >> uint(width-1-depth)) & 1
	if n.children[bit] == nil {
		n.children[bit] = &node{}
	}
	insert(n.children[bit], e, code, depth+1)
}

// Lock freezes the decoder against further Register calls. Safe to call
// more than once.
func (d *Decoder) Lock() {
	d.locked = true
}

// Decode looks up the handler for ir. Descent follows ir's bits first; when
// that subtree yields no match the sibling subtree is searched too, since
// an entry's code holds 0 at its don't-care positions. At a leaf,
// an entry is accepted only if ir&mask == code. ok is false on no match
// (the caller raises IllegalInstruction).
func (d *Decoder) Decode(ir uint32) (Entry, bool) {
	return search(d.root, ir, 0)
}

func search(n *node, ir uint32, depth int) (Entry, bool) {
	if n == nil {
		return nil, false
	}
	if depth == width {
		for _, e := range n.entries {
			if ir&e.Mask() == e.Code() {
				return e, true
			}
		}
		return nil, false
	}
	bit := (ir >> uint(width-1-depth)) & 1
	if e, ok := search(n.children[bit], ir, depth+1); ok {
		return e, true
	}
	return search(n.children[1-bit], ir, depth+1)
}
