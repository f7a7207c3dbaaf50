package chaintest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EventLog builds a log for event name of contractABI. indexed are the topic
// values in declaration order, data the non-indexed values.
func EventLog(contractABI abi.ABI, name string, address common.Address, indexed []interface{}, data ...interface{}) *types.Log {
	ev, ok := contractABI.Events[name]
	if !ok {
		panic(fmt.Sprintf("chaintest: abi has no event %s", name))
	}
	topics := []common.Hash{ev.ID}
	for _, v := range indexed {
		t, err := abi.MakeTopics([]interface{}{v})
		if err != nil {
			panic(fmt.Sprintf("chaintest: topic for %s: %v", name, err))
		}
		topics = append(topics, t[0][0])
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(fmt.Sprintf("chaintest: data for %s: %v", name, err))
	}
	return &types.Log{Address: address, Topics: topics, Data: packed}
}
