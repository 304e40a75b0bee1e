package era1

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Filename returns the canonical name of an era1 file:
// <network>-<epoch, five digits>-<first four bytes of the root in hex>.era1.
func Filename(network string, epoch int, root common.Hash) string {
	return fmt.Sprintf("%s-%05d-%s.era1", network, epoch, common.Bytes2Hex(root[:4]))
}
