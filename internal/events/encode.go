package events

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"curveLaunch/internal/model"
)

// Encode turns a journal entry into an ABI-encoded log record.
func Encode(entry Entry, ingestedAt time.Time) (model.LogRecord, error) {
	marketABI, err := MarketABI()
	if err != nil {
		return model.LogRecord{}, err
	}
	event, ok := marketABI.Events[entry.Name]
	if !ok {
		return model.LogRecord{}, fmt.Errorf("unknown event: %s", entry.Name)
	}

	indexed, values, err := eventArgs(entry.Payload)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("encode %s: %w", entry.Name, err)
	}
	if want := len(indexedArguments(event.Inputs)); len(indexed) != want {
		return model.LogRecord{}, fmt.Errorf("encode %s: %d indexed values, want %d", entry.Name, len(indexed), want)
	}

	data, err := event.Inputs.NonIndexed().Pack(values...)
	if err != nil {
		return model.LogRecord{}, fmt.Errorf("pack %s: %w", entry.Name, err)
	}

	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, event.ID.Hex())
	for _, addr := range indexed {
		topics = append(topics, common.BytesToHash(addr.Bytes()).Hex())
	}

	return model.LogRecord{
		Seq:        entry.Seq,
		Address:    entry.Address.Hex(),
		Topics:     topics,
		Data:       hexutil.Encode(data),
		Timestamp:  uint64(entry.Timestamp.Unix()),
		IngestedAt: ingestedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// EncodeAll encodes entries in order, stopping at the first failure.
func EncodeAll(entries []Entry, ingestedAt time.Time) ([]model.LogRecord, error) {
	out := make([]model.LogRecord, 0, len(entries))
	for _, entry := range entries {
		record, err := Encode(entry, ingestedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func eventArgs(payload interface{}) ([]common.Address, []interface{}, error) {
	switch p := payload.(type) {
	case model.PoolCreatedEvent:
		return []common.Address{p.Pool, p.Creator},
			[]interface{}{p.Name, p.Ticker, p.Decimals, p.ReserveRatio, p.InitialReserve, p.Threshold}, nil
	case model.BuyExecutedEvent:
		return []common.Address{p.Pool, p.Buyer},
			[]interface{}{p.DepositAmount, p.TokensOut, p.Fee, p.NewPrice, p.NewSupply}, nil
	case model.SellExecutedEvent:
		return []common.Address{p.Pool, p.Seller},
			[]interface{}{p.SellAmount, p.DepositOut, p.Fee, p.NewPrice, p.NewSupply}, nil
	case model.FeeUpdatedEvent:
		return nil, []interface{}{p.BuyFeeBps, p.SellFeeBps}, nil
	case model.PoolSettingsUpdatedEvent:
		return []common.Address{p.Pool}, []interface{}{p.Threshold, p.TradingEnabled}, nil
	case model.AdminChangedEvent:
		return []common.Address{p.OldAdmin, p.NewAdmin}, nil, nil
	case model.TreasuryChangedEvent:
		return []common.Address{p.OldTreasury, p.NewTreasury}, nil, nil
	case model.AdminWithdrawalEvent:
		return []common.Address{p.Pool, p.Admin}, []interface{}{p.Amount}, nil
	case model.OraclePriceUpdatedEvent:
		return nil, []interface{}{p.PriceUSDCents, p.Source}, nil
	case model.MigrationReadyEvent:
		return []common.Address{p.Pool},
			[]interface{}{p.MarketCapCents, p.ReserveAmount, p.TokenAmount, p.Forced}, nil
	case model.MigrationCompletedEvent:
		return []common.Address{p.Pool}, []interface{}{p.DexPool, p.ReserveAmount, p.TokenAmount}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported payload %T", payload)
	}
}
