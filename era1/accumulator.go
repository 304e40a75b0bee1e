package era1

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ssz "github.com/ferranbt/fastssz"
	"github.com/holiman/uint256"
)

// ComputeAccumulator returns the hash tree root of the SSZ list of header
// records built from the given block hashes and total difficulties.
//
//	header-record := { block-hash: Bytes32, total-difficulty: Uint256 }
//	accumulator   := hash_tree_root(List[header-record, 8192])
func ComputeAccumulator(hashes []common.Hash, tds []uint256.Int) (common.Hash, error) {
	if len(hashes) != len(tds) {
		return common.Hash{}, errors.New("era1: must have equal number of hashes and total difficulties")
	}
	if len(hashes) > MaxBlocks {
		return common.Hash{}, fmt.Errorf("%w: have %d, max %d", ErrTooManyBlocks, len(hashes), MaxBlocks)
	}
	hh := ssz.NewHasher()
	for i := range hashes {
		rec := headerRecord{hash: hashes[i], td: tds[i]}
		root, err := rec.HashTreeRoot()
		if err != nil {
			return common.Hash{}, err
		}
		hh.Append(root[:])
	}
	hh.MerkleizeWithMixin(0, uint64(len(hashes)), MaxBlocks)
	return hh.HashRoot()
}

type headerRecord struct {
	hash common.Hash
	td   uint256.Int
}

func (h *headerRecord) GetTree() (*ssz.Node, error) {
	return nil, nil
}

func (h *headerRecord) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(h)
}

func (h *headerRecord) HashTreeRootWith(hh ssz.HashWalker) error {
	indx := hh.Index()
	hh.PutBytes(h.hash[:])
	// SSZ integers are little-endian.
	td := h.td.Bytes32()
	for i, j := 0, len(td)-1; i < j; i, j = i+1, j-1 {
		td[i], td[j] = td[j], td[i]
	}
	hh.PutBytes(td[:])
	hh.Merkleize(indx)
	return nil
}
