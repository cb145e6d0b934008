package fund

import (
	"errors"
	"math/big"

	"github.com/betbot/sharefund/pkg/persistence"
	"github.com/ethereum/go-ethereum/common"
)

// StoreSaver 把状态快照写入 persistence.Store
type StoreSaver struct {
	store persistence.Store
}

// NewStoreSaver 绑定存储
func NewStoreSaver(store persistence.Store) *StoreSaver {
	return &StoreSaver{store: store}
}

func (s *StoreSaver) SaveState(st State) error {
	return s.store.Save(st)
}

// LoadState 读取快照；不存在时 ok=false
func LoadState(store persistence.Store) (st State, ok bool, err error) {
	if err := store.Load(&st); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if st.SharesOf == nil {
		st.SharesOf = make(map[common.Address]*big.Int)
	}
	return st, true, nil
}
