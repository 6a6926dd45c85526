package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/onflow/pos-sync/model/flow"
)

// StoredChainInfo is the persisted form of a chain info. The block body is
// stored separately, so a fork record can be kept without its payload.
type StoredChainInfo struct {
	Header             *flow.Header
	Justification      []byte
	OnMainChain        bool
	MainChainSuccessor flow.Identifier
}

// NewStoredChainInfo strips the body from the chain info.
func NewStoredChainInfo(info *flow.ChainInfo) *StoredChainInfo {
	return &StoredChainInfo{
		Header:             info.Head.Header,
		Justification:      info.Head.Justification,
		OnMainChain:        info.OnMainChain,
		MainChainSuccessor: info.MainChainSuccessor,
	}
}

// ChainInfo converts the record back, attaching the given payload (nil for a
// bodiless chain info).
func (s *StoredChainInfo) ChainInfo(payload *flow.Payload) *flow.ChainInfo {
	return &flow.ChainInfo{
		Head: &flow.Block{
			Header:        s.Header,
			Justification: s.Justification,
			Payload:       payload,
		},
		OnMainChain:        s.OnMainChain,
		MainChainSuccessor: s.MainChainSuccessor,
	}
}

func UpsertChainInfo(blockID flow.Identifier, info *StoredChainInfo) func(*badger.Txn) error {
	return upsert(makePrefix(codeChainInfo, blockID), info)
}

func RetrieveChainInfo(blockID flow.Identifier, info *StoredChainInfo) func(*badger.Txn) error {
	return retrieve(makePrefix(codeChainInfo, blockID), info)
}

func ChainInfoExists(blockID flow.Identifier, found *bool) func(*badger.Txn) error {
	return exists(makePrefix(codeChainInfo, blockID), found)
}

func RemoveChainInfo(blockID flow.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeChainInfo, blockID))
}

func UpsertBody(blockID flow.Identifier, payload *flow.Payload) func(*badger.Txn) error {
	return upsert(makePrefix(codeBody, blockID), payload)
}

func RetrieveBody(blockID flow.Identifier, payload *flow.Payload) func(*badger.Txn) error {
	return retrieve(makePrefix(codeBody, blockID), payload)
}

func RemoveBody(blockID flow.Identifier) func(*badger.Txn) error {
	return remove(makePrefix(codeBody, blockID))
}
