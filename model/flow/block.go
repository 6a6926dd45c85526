package flow

import (
	"fmt"
)

// BlockType distinguishes final macro blocks from revertible micro blocks.
type BlockType uint8

const (
	// BlockTypeMicro is an ordinary block within a batch. Micro blocks can be reverted.
	BlockTypeMicro BlockType = iota + 1
	// BlockTypeMacro closes a batch. Macro blocks are final and never reverted.
	BlockTypeMacro
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeMicro:
		return "micro"
	case BlockTypeMacro:
		return "macro"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Header contains all meta-data for a block. The block ID is the hash of the header.
type Header struct {
	Type         BlockType
	Number       uint32     // height of the block in the chain
	View         uint32     // round within the height, used to break ties between proposals
	ParentID     Identifier // ID of the block this block extends
	Timestamp    uint64     // unix milliseconds
	ProposerSlot uint16     // slot of the validator that produced the block
	PayloadHash  Identifier
}

// ID returns a unique ID to singularly identify the header and its block.
func (h *Header) ID() Identifier {
	return MakeID(h)
}

// IsMacro returns true for batch-closing macro blocks.
func (h *Header) IsMacro() bool {
	return h.Type == BlockTypeMacro
}

// Block is the unit of chain extension. A block is immutable once constructed.
// Payload is nil when the block was loaded without its body.
type Block struct {
	Header        *Header
	Justification []byte // signature of the slot owner over the block ID
	Payload       *Payload
}

// NewBlock assembles a block and fills in the payload hash of the header.
func NewBlock(header Header, payload *Payload) *Block {
	if payload == nil {
		payload = &Payload{}
	}
	header.PayloadHash = payload.Hash()
	return &Block{
		Header:  &header,
		Payload: payload,
	}
}

// ID returns the ID of the header.
func (b *Block) ID() Identifier {
	return b.Header.ID()
}

// Number returns the height of the block.
func (b *Block) Number() uint32 {
	return b.Header.Number
}

// View returns the view number of the block.
func (b *Block) View() uint32 {
	return b.Header.View
}

// ParentID returns the ID of the predecessor.
func (b *Block) ParentID() Identifier {
	return b.Header.ParentID
}

// IsMacro returns true for batch-closing macro blocks.
func (b *Block) IsMacro() bool {
	return b.Header.IsMacro()
}

// HasBody returns true if the payload is present.
func (b *Block) HasBody() bool {
	return b.Payload != nil
}

// WithJustification returns a copy of the block carrying the given justification.
func (b *Block) WithJustification(justification []byte) *Block {
	return &Block{
		Header:        b.Header,
		Justification: justification,
		Payload:       b.Payload,
	}
}

// WithoutBody returns a copy of the block with the payload stripped.
func (b *Block) WithoutBody() *Block {
	return &Block{
		Header:        b.Header,
		Justification: b.Justification,
	}
}

// BlockIDs returns the IDs of the given blocks in the same order.
func BlockIDs(blocks []*Block) IdentifierList {
	ids := make(IdentifierList, 0, len(blocks))
	for _, block := range blocks {
		ids = append(ids, block.ID())
	}
	return ids
}
